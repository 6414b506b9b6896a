package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"poll-service/internal/broadcast"
	"poll-service/internal/models"
	"poll-service/internal/repository"
	"poll-service/pkg/roomcode"
	"poll-service/pkg/zap"
)

// roomCodeAttempts bounds regeneration when a fresh code collides with an
// active poll. At 32^6 codes a second collision is already unlikely.
const roomCodeAttempts = 5

type PollService interface {
	Create(ctx context.Context, question string, options []string) (*models.CreatedPoll, error)
	GetSnapshot(ctx context.Context, roomCode string) (*models.PollSnapshot, error)
	GetByRoomCode(ctx context.Context, roomCode string) (*models.Poll, error)
	// ChangeState runs the lifecycle state machine. Only the holder of the
	// host token minted at creation may transition the poll.
	ChangeState(ctx context.Context, roomCode, newState, hostToken string) (models.PollState, error)
	// DeactivateExpired soft-deletes polls past their expiry. Called by
	// housekeeping.
	DeactivateExpired(ctx context.Context) (int64, error)
}

type pollService struct {
	polls        repository.PollRepository
	participants repository.ParticipantRepository
	votes        repository.VoteRepository
	bus          broadcast.Publisher
	secret       []byte
	retention    time.Duration
	log          zap.Logger
}

func NewPollService(
	polls repository.PollRepository,
	participants repository.ParticipantRepository,
	votes repository.VoteRepository,
	bus broadcast.Publisher,
	secret string,
	retention time.Duration,
	log zap.Logger,
) PollService {
	return &pollService{
		polls:        polls,
		participants: participants,
		votes:        votes,
		bus:          bus,
		secret:       []byte(secret),
		retention:    retention,
		log:          log,
	}
}

func (s *pollService) Create(ctx context.Context, question string, options []string) (*models.CreatedPoll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.Wrap(models.ErrValidation, "question is empty")
	}
	if len(options) < models.MinPollOptions || len(options) > models.MaxPollOptions {
		return nil, errors.Wrapf(models.ErrValidation, "expected %d-%d options, got %d",
			models.MinPollOptions, models.MaxPollOptions, len(options))
	}
	for i := range options {
		options[i] = strings.TrimSpace(options[i])
		if options[i] == "" {
			return nil, errors.Wrapf(models.ErrValidation, "option %d is empty", i)
		}
	}

	now := time.Now().UTC()
	poll := &models.Poll{
		Question:  question,
		Options:   options,
		State:     models.PollStateWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
		IsActive:  true,
	}

	var err error
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		poll.RoomCode, err = roomcode.Generate()
		if err != nil {
			return nil, err
		}
		err = s.polls.Create(ctx, poll)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrRoomCodeConflict) {
			return nil, err
		}
		s.log.Warnf("room code %s collided, regenerating", poll.RoomCode)
	}
	if err != nil {
		return nil, err
	}

	token, err := s.mintHostToken(poll)
	if err != nil {
		return nil, err
	}

	s.log.Infof("poll %s created, room %s", poll.ID.Hex(), poll.RoomCode)
	return &models.CreatedPoll{Poll: poll, HostToken: token}, nil
}

func (s *pollService) GetByRoomCode(ctx context.Context, code string) (*models.Poll, error) {
	return s.polls.GetByRoomCode(ctx, code)
}

func (s *pollService) GetSnapshot(ctx context.Context, code string) (*models.PollSnapshot, error) {
	poll, err := s.polls.GetByRoomCode(ctx, code)
	if err != nil {
		return nil, err
	}

	counts, err := s.votes.CountByOption(ctx, poll.ID, len(poll.Options))
	if err != nil {
		return nil, err
	}
	count, err := s.participants.CountConnected(ctx, poll.ID)
	if err != nil {
		return nil, err
	}

	return &models.PollSnapshot{
		Poll:  poll,
		Tally: models.NewTally(counts),
		Count: count,
	}, nil
}

func (s *pollService) ChangeState(ctx context.Context, code, newState, hostToken string) (models.PollState, error) {
	if !models.ValidState(newState) {
		return "", errors.Wrapf(models.ErrValidation, "unknown state %q", newState)
	}
	target := models.PollState(newState)

	poll, err := s.polls.GetByRoomCode(ctx, code)
	if err != nil {
		return "", err
	}

	if err := s.verifyHostToken(hostToken, poll); err != nil {
		return "", err
	}

	if !poll.State.CanTransitionTo(target) {
		return "", errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", poll.State, target)
	}

	matched, err := s.polls.UpdateState(ctx, poll.ID, poll.State, target)
	if err != nil {
		return "", err
	}
	if !matched {
		// State moved underneath us. Transitions are monotonic, so if it
		// already landed where we were headed the request is satisfied;
		// the winning writer has broadcast it.
		current, rerr := s.polls.GetByID(ctx, poll.ID)
		if rerr == nil && current.State == target {
			return target, nil
		}
		return "", errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", poll.State, target)
	}

	// Persistence succeeded; only now may the room hear about it.
	s.bus.Publish(ctx, poll.RoomCode, models.PollStateChangedEvent{
		Type:      models.EventPollStateChanged,
		State:     target,
		Timestamp: models.Timestamp(time.Now()),
	})

	s.log.Infof("poll %s: %s -> %s", poll.ID.Hex(), poll.State, target)
	return target, nil
}

func (s *pollService) DeactivateExpired(ctx context.Context) (int64, error) {
	return s.polls.DeactivateExpired(ctx, time.Now().UTC())
}

func (s *pollService) mintHostToken(poll *models.Poll) (string, error) {
	claims := jwt.MapClaims{
		"sub":  poll.ID.Hex(),
		"role": "host",
		"exp":  poll.ExpiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *pollService) verifyHostToken(tokenString string, poll *models.Poll) error {
	if tokenString == "" {
		return models.ErrNotHost
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return models.ErrNotHost
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.ErrNotHost
	}
	if role, _ := claims["role"].(string); role != "host" {
		return models.ErrNotHost
	}
	if sub, _ := claims["sub"].(string); sub != poll.ID.Hex() {
		return models.ErrNotHost
	}
	return nil
}
