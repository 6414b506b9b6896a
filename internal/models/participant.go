package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Participant is one nickname inside one poll. The row survives disconnects;
// a rejoin under the same nickname reuses it instead of inserting a new one.
type Participant struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PollID       primitive.ObjectID `bson:"poll_id" json:"poll_id"`
	Nickname     string             `bson:"nickname" json:"nickname"`
	ConnectionID string             `bson:"connection_id" json:"connection_id"`
	Connected    bool               `bson:"connected" json:"connected"`
	JoinedAt     time.Time          `bson:"joined_at" json:"joined_at"`
	LastSeenAt   time.Time          `bson:"last_seen_at" json:"last_seen_at"`
}
