package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"poll-service/internal/broadcast"
	"poll-service/internal/models"
	"poll-service/internal/repository"
	"poll-service/pkg/zap"
)

// JoinResult is what a successful join hands back to the session handler.
type JoinResult struct {
	Poll        *models.Poll
	Participant *models.Participant
	Rejoined    bool
}

type ParticipantService interface {
	// Join registers nickname in the room, or rebinds a previously
	// disconnected participant with the same nickname to the new
	// connection (a rejoin).
	Join(ctx context.Context, roomCode, nickname, connectionID string) (*JoinResult, error)
	// MarkDisconnected handles an explicit socket close. Connections that
	// never completed a join produce no broadcast.
	MarkDisconnected(ctx context.Context, connectionID string) error
	// MarkStaleDisconnected applies disconnect semantics to participants
	// unseen for longer than timeout, covering abrupt network loss.
	MarkStaleDisconnected(ctx context.Context, timeout time.Duration) (int, error)
}

type participantService struct {
	polls        repository.PollRepository
	participants repository.ParticipantRepository
	bus          broadcast.Publisher
	log          zap.Logger
}

func NewParticipantService(
	polls repository.PollRepository,
	participants repository.ParticipantRepository,
	bus broadcast.Publisher,
	log zap.Logger,
) ParticipantService {
	return &participantService{
		polls:        polls,
		participants: participants,
		bus:          bus,
		log:          log,
	}
}

func (s *participantService) Join(ctx context.Context, roomCode, nickname, connectionID string) (*JoinResult, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, errors.Wrap(models.ErrValidation, "nickname is empty")
	}

	poll, err := s.polls.GetByRoomCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	existing, err := s.participants.FindByNickname(ctx, poll.ID, nickname)
	if err != nil {
		return nil, err
	}

	result := &JoinResult{Poll: poll}
	switch {
	case existing != nil && existing.Connected:
		return nil, models.ErrNicknameTaken

	case existing != nil:
		// Same nickname, currently disconnected: rebind the existing row.
		if err := s.participants.Reconnect(ctx, existing.ID, connectionID, now); err != nil {
			return nil, err
		}
		existing.ConnectionID = connectionID
		existing.Connected = true
		existing.LastSeenAt = now
		result.Participant = existing
		result.Rejoined = true

	default:
		participant := &models.Participant{
			PollID:       poll.ID,
			Nickname:     nickname,
			ConnectionID: connectionID,
			Connected:    true,
			JoinedAt:     now,
			LastSeenAt:   now,
		}
		if err := s.participants.Insert(ctx, participant); err != nil {
			return nil, err
		}
		result.Participant = participant
	}

	count, err := s.participants.CountConnected(ctx, poll.ID)
	if err != nil {
		s.log.Warnf("count connected for poll %s: %v", poll.ID.Hex(), err)
	}

	eventType := models.EventParticipantJoined
	if result.Rejoined {
		eventType = models.EventParticipantRejoined
	}
	s.bus.Publish(ctx, poll.RoomCode, models.ParticipantEvent{
		Type:      eventType,
		Nickname:  nickname,
		Count:     count,
		Timestamp: models.Timestamp(now),
	})

	return result, nil
}

func (s *participantService) MarkDisconnected(ctx context.Context, connectionID string) error {
	participant, err := s.participants.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if participant == nil {
		// Disconnected before completing join; nothing to announce.
		return nil
	}
	return s.disconnect(ctx, participant)
}

func (s *participantService) MarkStaleDisconnected(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	stale, err := s.participants.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, participant := range stale {
		if err := s.disconnect(ctx, participant); err != nil {
			s.log.Warnf("sweep participant %s: %v", participant.ID.Hex(), err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *participantService) disconnect(ctx context.Context, participant *models.Participant) error {
	now := time.Now().UTC()
	if err := s.participants.Disconnect(ctx, participant.ID, now); err != nil {
		return err
	}

	poll, err := s.polls.GetByID(ctx, participant.PollID)
	if err != nil {
		return err
	}
	count, err := s.participants.CountConnected(ctx, poll.ID)
	if err != nil {
		s.log.Warnf("count connected for poll %s: %v", poll.ID.Hex(), err)
	}

	s.bus.Publish(ctx, poll.RoomCode, models.ParticipantEvent{
		Type:      models.EventParticipantLeft,
		Nickname:  participant.Nickname,
		Count:     count,
		Timestamp: models.Timestamp(now),
	})
	return nil
}
