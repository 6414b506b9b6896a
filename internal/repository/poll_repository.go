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

// ErrRoomCodeConflict signals that a generated room code collided with an
// active poll. Callers regenerate and retry.
var ErrRoomCodeConflict = errors.New("room code already in use")

type PollRepository interface {
	Create(ctx context.Context, poll *models.Poll) error
	GetByRoomCode(ctx context.Context, roomCode string) (*models.Poll, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Poll, error)
	// UpdateState flips state only if the stored state still equals from;
	// returns false when the document already moved on (last write wins).
	UpdateState(ctx context.Context, id primitive.ObjectID, from, to models.PollState) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type pollRepository struct {
	collection *mongo.Collection
	exec       *resilience.Executor
}

func NewPollRepository(collection *mongo.Collection, exec *resilience.Executor) PollRepository {
	return &pollRepository{
		collection: collection,
		exec:       exec,
	}
}

func (r *pollRepository) Create(ctx context.Context, poll *models.Poll) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		res, err := r.collection.InsertOne(ctx, poll)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// The partial unique index on room_code caught a collision
				// with another active poll.
				return ErrRoomCodeConflict
			}
			return err
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			poll.ID = id
		}
		return nil
	})
}

func (r *pollRepository) GetByRoomCode(ctx context.Context, roomCode string) (*models.Poll, error) {
	var poll models.Poll
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"room_code": roomCode, "is_active": true}
		if err := r.collection.FindOne(ctx, filter).Decode(&poll); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.ErrPollNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (r *pollRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Poll, error) {
	var poll models.Poll
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&poll); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.ErrPollNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (r *pollRepository) UpdateState(ctx context.Context, id primitive.ObjectID, from, to models.PollState) (bool, error) {
	var matched bool
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"_id": id, "state": from, "is_active": true}
		update := bson.M{"$set": bson.M{"state": to}}

		res, err := r.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return err
		}
		matched = res.MatchedCount > 0
		return nil
	})
	return matched, err
}

func (r *pollRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	var modified int64
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"is_active": true, "expires_at": bson.M{"$lte": now}}
		update := bson.M{"$set": bson.M{"is_active": false}}

		res, err := r.collection.UpdateMany(ctx, filter, update)
		if err != nil {
			return err
		}
		modified = res.ModifiedCount
		return nil
	})
	return modified, err
}
