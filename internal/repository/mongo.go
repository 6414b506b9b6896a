package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"poll-service/config"
	"poll-service/pkg/resilience"
)

const (
	CollectionPolls        = "polls"
	CollectionParticipants = "participants"
	CollectionVotes        = "votes"
)

// Connect opens the mongo client and pings it once so wiring fails loudly at
// startup instead of on the first request.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// EnsureIndexes creates the uniqueness constraints the whole consistency story
// leans on. Room codes are unique only among active polls; nicknames are
// unique per poll; a participant holds at most one vote.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionPolls).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_code", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"is_active": true}),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionParticipants).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "poll_id", Value: 1}, {Key: "nickname", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "connection_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "connected", Value: 1}, {Key: "last_seen_at", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionVotes).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// TransientStore classifies mongo failures for the resilience wrapper.
// Network trouble and timeouts are retryable; constraint violations are not
// (the vote upsert race is the one exception and is marked at the call site).
func TransientStore(err error) bool {
	if resilience.IsTransient(err) {
		return true
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	return false
}
