package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"poll-service/pkg/resilience"
)

type VoteRepository interface {
	// Upsert records or changes the participant's vote as a single
	// conditional write. voted_at is only set on first insert.
	Upsert(ctx context.Context, pollID, participantID primitive.ObjectID, optionIndex int, at time.Time) error
	// CountByOption returns per-option vote counts for the poll, sized to
	// optionCount.
	CountByOption(ctx context.Context, pollID primitive.ObjectID, optionCount int) ([]int, error)
	// DeleteByParticipant cascades a participant deletion.
	DeleteByParticipant(ctx context.Context, participantID primitive.ObjectID) error
}

type voteRepository struct {
	collection *mongo.Collection
	exec       *resilience.Executor
}

func NewVoteRepository(collection *mongo.Collection, exec *resilience.Executor) VoteRepository {
	return &voteRepository{
		collection: collection,
		exec:       exec,
	}
}

func (r *voteRepository) Upsert(ctx context.Context, pollID, participantID primitive.ObjectID, optionIndex int, at time.Time) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		filter := bson.M{"participant_id": participantID}
		update := bson.M{
			"$set": bson.M{
				"option_index": optionIndex,
				"updated_at":   at,
			},
			"$setOnInsert": bson.M{
				"poll_id":  pollID,
				"voted_at": at,
			},
		}

		_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			// Two first-votes raced; the unique index let one insert win.
			// Retrying turns this attempt into a plain update.
			return resilience.MarkTransient(err)
		}
		return err
	})
}

func (r *voteRepository) CountByOption(ctx context.Context, pollID primitive.ObjectID, optionCount int) ([]int, error) {
	counts := make([]int, optionCount)
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"poll_id": pollID}}},
			{{Key: "$group", Value: bson.M{
				"_id":   "$option_index",
				"count": bson.M{"$sum": 1},
			}}},
		}

		cursor, err := r.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		var rows []struct {
			OptionIndex int `bson:"_id"`
			Count       int `bson:"count"`
		}
		if err := cursor.All(ctx, &rows); err != nil {
			return err
		}

		for i := range counts {
			counts[i] = 0
		}
		for _, row := range rows {
			if row.OptionIndex >= 0 && row.OptionIndex < optionCount {
				counts[row.OptionIndex] = row.Count
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *voteRepository) DeleteByParticipant(ctx context.Context, participantID primitive.ObjectID) error {
	return r.exec.Do(ctx, func(ctx context.Context) error {
		_, err := r.collection.DeleteOne(ctx, bson.M{"participant_id": participantID})
		return err
	})
}
