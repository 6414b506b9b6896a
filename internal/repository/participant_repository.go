package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"poll-service/internal/models"
	"poll-service/pkg/resilience"
)

type ParticipantRepository interface {
	Insert(ctx context.Context, participant *models.Participant) error
	// FindByNickname returns (nil, nil) when no participant holds the
	// nickname in the poll.
	FindByNickname(ctx context.Context, pollID primitive.ObjectID, nickname string) (*models.Participant, error)
	FindByConnection(ctx context.Context, connectionID string) (*models.Participant, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Participant, error)
	// Reconnect rebinds an existing row to a live connection.
	Reconnect(ctx context.Context, id primitive.ObjectID, connectionID string, at time.Time) error
	// Disconnect clears the connection binding but keeps the row.
	Disconnect(ctx context.Context, id primitive.ObjectID, at time.Time) error
	Touch(ctx context.Context, id primitive.ObjectID, at time.Time) error
	FindStale(ctx context.Context, cutoff time.Time) ([]*models.Participant, error)
	CountConnected(ctx context.Context, pollID primitive.ObjectID) (int64, error)
}

type participantRepository struct {
	collection *mongo.Collection
	exec       *resilience.Executor
}

func NewParticipantRepository(collection *mongo.Collection, exec *resilience.Executor) ParticipantRepository {
	return &participantRepository{
		collection: collection,
		exec:       exec,
	}
}

func (r *participantRepository) Insert(ctx context.Context, participant *models.Participant) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		res, err := r.collection.InsertOne(ctx, participant)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// Concurrent join with the same nickname; the store's
				// unique index is the authority.
				return models.ErrNicknameTaken
			}
			return err
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			participant.ID = id
		}
		return nil
	})
}

func (r *participantRepository) FindByNickname(ctx context.Context, pollID primitive.ObjectID, nickname string) (*models.Participant, error) {
	var participant models.Participant
	found := false
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"poll_id": pollID, "nickname": nickname}
		if err := r.collection.FindOne(ctx, filter).Decode(&participant); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepository) FindByConnection(ctx context.Context, connectionID string) (*models.Participant, error) {
	var participant models.Participant
	found := false
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"connection_id": connectionID, "connected": true}
		if err := r.collection.FindOne(ctx, filter).Decode(&participant); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Participant, error) {
	var participant models.Participant
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&participant); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.ErrParticipantNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepository) Reconnect(ctx context.Context, id primitive.ObjectID, connectionID string, at time.Time) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		update := bson.M{"$set": bson.M{
			"connection_id": connectionID,
			"connected":     true,
			"last_seen_at":  at,
		}}
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
		return err
	})
}

func (r *participantRepository) Disconnect(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		update := bson.M{"$set": bson.M{
			"connection_id": "",
			"connected":     false,
			"last_seen_at":  at,
		}}
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
		return err
	})
}

func (r *participantRepository) Touch(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		update := bson.M{"$set": bson.M{"last_seen_at": at}}
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
		return err
	})
}

func (r *participantRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*models.Participant, error) {
	var stale []*models.Participant
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"connected": true, "last_seen_at": bson.M{"$lt": cutoff}}
		cursor, err := r.collection.Find(ctx, filter)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		stale = nil
		return cursor.All(ctx, &stale)
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func (r *participantRepository) CountConnected(ctx context.Context, pollID primitive.ObjectID) (int64, error) {
	var count int64
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.collection.CountDocuments(ctx, bson.M{"poll_id": pollID, "connected": true})
		return err
	})
	return count, err
}
