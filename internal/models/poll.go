package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PollState is the lifecycle state of a poll.
type PollState string

const (
	PollStateWaiting PollState = "waiting"
	PollStateOpen    PollState = "open"
	PollStateClosed  PollState = "closed"
)

// ValidState reports whether s names a known lifecycle state.
func ValidState(s string) bool {
	switch PollState(s) {
	case PollStateWaiting, PollStateOpen, PollStateClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle edge from s to next is legal.
// The only legal edges are waiting->open and open->closed.
func (s PollState) CanTransitionTo(next PollState) bool {
	switch s {
	case PollStateWaiting:
		return next == PollStateOpen
	case PollStateOpen:
		return next == PollStateClosed
	}
	return false
}

const (
	MinPollOptions = 2
	MaxPollOptions = 5
)

type Poll struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomCode  string             `bson:"room_code" json:"room_code"`
	Question  string             `bson:"question" json:"question"`
	Options   []string           `bson:"options" json:"options"`
	State     PollState          `bson:"state" json:"state"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at" json:"expires_at"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
}

// ValidOption reports whether idx addresses one of the poll's options.
func (p *Poll) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(p.Options)
}
