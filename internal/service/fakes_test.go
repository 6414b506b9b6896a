package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"poll-service/internal/models"
	"poll-service/internal/repository"
)

// In-memory stand-ins for the mongo repositories and the redis bus. They
// enforce the same uniqueness rules the real indexes do.

type fakePollRepo struct {
	mu        sync.Mutex
	polls     map[primitive.ObjectID]*models.Poll
	createErr error
	updateErr error
	getErr    error
	// beforeUpdate runs just before UpdateState applies, letting tests
	// interleave a competing writer between read and write.
	beforeUpdate func()
}

func (f *fakePollRepo) setState(id primitive.ObjectID, state models.PollState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if poll, ok := f.polls[id]; ok {
		poll.State = state
	}
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{polls: make(map[primitive.ObjectID]*models.Poll)}
}

func (f *fakePollRepo) Create(_ context.Context, poll *models.Poll) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.polls {
		if existing.IsActive && existing.RoomCode == poll.RoomCode {
			return repository.ErrRoomCodeConflict
		}
	}
	poll.ID = primitive.NewObjectID()
	clone := *poll
	f.polls[poll.ID] = &clone
	return nil
}

func (f *fakePollRepo) GetByRoomCode(_ context.Context, roomCode string) (*models.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, poll := range f.polls {
		if poll.IsActive && poll.RoomCode == roomCode {
			clone := *poll
			return &clone, nil
		}
	}
	return nil, models.ErrPollNotFound
}

func (f *fakePollRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	poll, ok := f.polls[id]
	if !ok {
		return nil, models.ErrPollNotFound
	}
	clone := *poll
	return &clone, nil
}

func (f *fakePollRepo) UpdateState(_ context.Context, id primitive.ObjectID, from, to models.PollState) (bool, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return false, f.updateErr
	}
	poll, ok := f.polls[id]
	if !ok || !poll.IsActive || poll.State != from {
		return false, nil
	}
	poll.State = to
	return true, nil
}

func (f *fakePollRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, poll := range f.polls {
		if poll.IsActive && !poll.ExpiresAt.After(now) {
			poll.IsActive = false
			n++
		}
	}
	return n, nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[primitive.ObjectID]*models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[primitive.ObjectID]*models.Participant)}
}

func (f *fakeParticipantRepo) Insert(_ context.Context, participant *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.PollID == participant.PollID && existing.Nickname == participant.Nickname {
			return models.ErrNicknameTaken
		}
	}
	participant.ID = primitive.NewObjectID()
	clone := *participant
	f.participants[participant.ID] = &clone
	return nil
}

func (f *fakeParticipantRepo) FindByNickname(_ context.Context, pollID primitive.ObjectID, nickname string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.PollID == pollID && p.Nickname == nickname {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipantRepo) FindByConnection(_ context.Context, connectionID string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.Connected && p.ConnectionID == connectionID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipantRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, models.ErrParticipantNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeParticipantRepo) Reconnect(_ context.Context, id primitive.ObjectID, connectionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[id]; ok {
		p.ConnectionID = connectionID
		p.Connected = true
		p.LastSeenAt = at
	}
	return nil
}

func (f *fakeParticipantRepo) Disconnect(_ context.Context, id primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[id]; ok {
		p.ConnectionID = ""
		p.Connected = false
		p.LastSeenAt = at
	}
	return nil
}

func (f *fakeParticipantRepo) Touch(_ context.Context, id primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[id]; ok {
		p.LastSeenAt = at
	}
	return nil
}

func (f *fakeParticipantRepo) FindStale(_ context.Context, cutoff time.Time) ([]*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stale []*models.Participant
	for _, p := range f.participants {
		if p.Connected && p.LastSeenAt.Before(cutoff) {
			clone := *p
			stale = append(stale, &clone)
		}
	}
	return stale, nil
}

func (f *fakeParticipantRepo) CountConnected(_ context.Context, pollID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, p := range f.participants {
		if p.PollID == pollID && p.Connected {
			count++
		}
	}
	return count, nil
}

func (f *fakeParticipantRepo) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.participants)
}

type fakeVoteRepo struct {
	mu    sync.Mutex
	votes map[primitive.ObjectID]*models.Vote
	// upsertFailures injects that many transient failures before writes
	// succeed, mirroring a flaky store.
	upsertFailures int
	upsertAttempts int
	failWith       error
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[primitive.ObjectID]*models.Vote)}
}

func (f *fakeVoteRepo) Upsert(_ context.Context, pollID, participantID primitive.ObjectID, optionIndex int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertAttempts++
	if f.upsertFailures > 0 {
		f.upsertFailures--
		return f.failWith
	}
	if vote, ok := f.votes[participantID]; ok {
		vote.OptionIndex = optionIndex
		vote.UpdatedAt = at
		return nil
	}
	f.votes[participantID] = &models.Vote{
		ID:            primitive.NewObjectID(),
		PollID:        pollID,
		ParticipantID: participantID,
		OptionIndex:   optionIndex,
		VotedAt:       at,
		UpdatedAt:     at,
	}
	return nil
}

func (f *fakeVoteRepo) CountByOption(_ context.Context, pollID primitive.ObjectID, optionCount int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make([]int, optionCount)
	for _, vote := range f.votes {
		if vote.PollID == pollID && vote.OptionIndex >= 0 && vote.OptionIndex < optionCount {
			counts[vote.OptionIndex]++
		}
	}
	return counts, nil
}

func (f *fakeVoteRepo) DeleteByParticipant(_ context.Context, participantID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes, participantID)
	return nil
}

func (f *fakeVoteRepo) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes)
}

// captureBus records everything published so tests can assert on broadcast
// order and count.
type captureBus struct {
	mu     sync.Mutex
	rooms  []string
	events []interface{}
}

func (b *captureBus) Publish(_ context.Context, room string, event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
	b.events = append(b.events, event)
}

func (b *captureBus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *captureBus) last() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}
