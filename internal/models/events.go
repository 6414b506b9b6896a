package models

import "time"

// Event types carried on the room broadcast channel (server -> clients).
const (
	EventParticipantJoined   = "participant-joined"
	EventParticipantRejoined = "participant-rejoined"
	EventParticipantLeft     = "participant-left"
	EventVoteUpdate          = "vote-update"
	EventPollStateChanged    = "poll-state-changed"
)

// Request types accepted over the socket (client -> server).
const (
	RequestJoinRoom        = "join-room"
	RequestSubmitVote      = "submit-vote"
	RequestChangePollState = "change-poll-state"
)

// Timestamp renders t the way every event payload carries time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParticipantEvent announces a join, rejoin or leave to a room.
type ParticipantEvent struct {
	Type      string `json:"type"`
	Nickname  string `json:"nickname"`
	Count     int64  `json:"count"`
	Timestamp string `json:"timestamp"`
}

// VoteUpdateEvent carries the full recomputed tally for a room.
type VoteUpdateEvent struct {
	Type        string `json:"type"`
	Votes       []int  `json:"votes"`
	Percentages []int  `json:"percentages"`
	Timestamp   string `json:"timestamp"`
}

// PollStateChangedEvent announces a lifecycle transition to a room.
type PollStateChangedEvent struct {
	Type      string    `json:"type"`
	State     PollState `json:"state"`
	Timestamp string    `json:"timestamp"`
}

// ClientRequest is the envelope for every inbound socket frame.
type ClientRequest struct {
	Type        string `json:"type"`
	RoomCode    string `json:"roomCode"`
	Nickname    string `json:"nickname"`
	OptionIndex *int   `json:"optionIndex,omitempty"`
	NewState    string `json:"newState,omitempty"`
	HostToken   string `json:"hostToken,omitempty"`
}

// Ack is the per-request acknowledgment sent back on the originating socket.
type Ack struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Poll    *Poll       `json:"poll,omitempty"`
	State   PollState   `json:"state,omitempty"`
	Tally   *Tally      `json:"tally,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// AckType is the frame type of every acknowledgment.
const AckType = "ack"

func OkAck(event string) Ack {
	return Ack{Type: AckType, Event: event, Success: true}
}

func FailAck(event string, err error) Ack {
	return Ack{Type: AckType, Event: event, Success: false, Error: ErrorMessage(err)}
}
