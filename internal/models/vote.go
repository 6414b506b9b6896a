package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vote is a participant's current choice. At most one row exists per
// participant; changing a vote rewrites option_index and updated_at in place.
type Vote struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PollID        primitive.ObjectID `bson:"poll_id" json:"poll_id"`
	ParticipantID primitive.ObjectID `bson:"participant_id" json:"participant_id"`
	OptionIndex   int                `bson:"option_index" json:"option_index"`
	VotedAt       time.Time          `bson:"voted_at" json:"voted_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Tally is the derived per-option result set for a poll. It is recomputed on
// every vote mutation and never persisted.
type Tally struct {
	Votes       []int `json:"votes"`
	Percentages []int `json:"percentages"`
}

// NewTally derives percentages from raw per-option counts. Each percentage is
// round-half-up of 100*votes[i]/total; rounding error is not redistributed, so
// the sum may land at 99 or 101. With zero votes every percentage is 0.
func NewTally(counts []int) Tally {
	tally := Tally{
		Votes:       counts,
		Percentages: make([]int, len(counts)),
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return tally
	}

	for i, c := range counts {
		tally.Percentages[i] = int(math.Floor(float64(c)*100/float64(total) + 0.5))
	}
	return tally
}
