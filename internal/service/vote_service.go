package service

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"poll-service/internal/broadcast"
	"poll-service/internal/models"
	"poll-service/internal/repository"
	"poll-service/pkg/zap"
)

type VoteService interface {
	// SubmitVote records a first vote or changes an existing one. At most
	// one vote row ever exists per participant; the store's unique
	// constraint, not application locking, resolves double submits.
	SubmitVote(ctx context.Context, roomCode, nickname string, optionIndex int) (models.Tally, error)
}

type voteService struct {
	polls        repository.PollRepository
	participants repository.ParticipantRepository
	votes        repository.VoteRepository
	bus          broadcast.Publisher
	log          zap.Logger
}

func NewVoteService(
	polls repository.PollRepository,
	participants repository.ParticipantRepository,
	votes repository.VoteRepository,
	bus broadcast.Publisher,
	log zap.Logger,
) VoteService {
	return &voteService{
		polls:        polls,
		participants: participants,
		votes:        votes,
		bus:          bus,
		log:          log,
	}
}

func (s *voteService) SubmitVote(ctx context.Context, roomCode, nickname string, optionIndex int) (models.Tally, error) {
	// State is read fresh on every submission; a closed poll must reject
	// votes immediately, not after a cache expires.
	poll, err := s.polls.GetByRoomCode(ctx, roomCode)
	if err != nil {
		return models.Tally{}, err
	}
	if poll.State != models.PollStateOpen {
		return models.Tally{}, errors.Wrapf(models.ErrPollNotOpen, "state is %s", poll.State)
	}
	if !poll.ValidOption(optionIndex) {
		return models.Tally{}, errors.Wrapf(models.ErrInvalidOption, "index %d of %d options", optionIndex, len(poll.Options))
	}

	participant, err := s.participants.FindByNickname(ctx, poll.ID, nickname)
	if err != nil {
		return models.Tally{}, err
	}
	if participant == nil || !participant.Connected {
		return models.Tally{}, models.ErrParticipantNotFound
	}

	now := time.Now().UTC()
	if err := s.votes.Upsert(ctx, poll.ID, participant.ID, optionIndex, now); err != nil {
		return models.Tally{}, err
	}
	if err := s.participants.Touch(ctx, participant.ID, now); err != nil {
		// Activity tracking is best effort; the vote is already durable.
		s.log.Warnf("touch participant %s: %v", participant.ID.Hex(), err)
	}

	counts, err := s.votes.CountByOption(ctx, poll.ID, len(poll.Options))
	if err != nil {
		return models.Tally{}, err
	}
	tally := models.NewTally(counts)

	s.bus.Publish(ctx, poll.RoomCode, models.VoteUpdateEvent{
		Type:        models.EventVoteUpdate,
		Votes:       tally.Votes,
		Percentages: tally.Percentages,
		Timestamp:   models.Timestamp(now),
	})

	return tally, nil
}
