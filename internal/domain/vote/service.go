package vote

import (
	"context"
	"errors"
	"time"

	"livepoll/internal/domain/poll"
	"livepoll/internal/identity"
)

var (
	ErrAlreadyVoted  = errors.New("you have already voted in this poll")
	ErrPollInactive  = errors.New("poll is no longer active")
	ErrInvalidOption = errors.New("invalid option selected")
	ErrVoteNotFound  = errors.New("vote not found")
)

type Service struct {
	repo      Repository
	polls     PollReader
	limiter   Limiter
	publisher Publisher
	ids       *identity.Deriver
	now       func() time.Time
}

func NewService(repo Repository, polls PollReader, limiter Limiter, publisher Publisher, ids *identity.Deriver) *Service {
	return &Service{
		repo:      repo,
		polls:     polls,
		limiter:   limiter,
		publisher: publisher,
		ids:       ids,
		now:       time.Now,
	}
}

// Submit derives the voter, charges the origin's rate windows, then checks
// the poll and records the ballot. Every attempt that reaches the limiter
// counts against the origin, whatever a later gate decides. The returned
// tally is the committed state right after this vote.
func (s *Service) Submit(ctx context.Context, b Ballot) (poll.Tally, error) {
	who := s.ids.Derive(b.Origin, b.UserAgent, b.AcceptLanguage)
	if err := s.limiter.Allow(who.OriginID, b.PollID); err != nil {
		return poll.Tally{}, err
	}

	p, err := s.polls.GetByID(ctx, b.PollID)
	if err != nil {
		return poll.Tally{}, err
	}
	if !p.ValidOption(b.OptionIndex) {
		return poll.Tally{}, ErrInvalidOption
	}
	now := s.now()
	if !p.AcceptsVotes(now) {
		return poll.Tally{}, ErrPollInactive
	}

	v := &Vote{
		PollID:            p.ID,
		OptionIndex:       b.OptionIndex,
		VoterID:           who.VoterID,
		OriginID:          who.OriginID,
		DeviceFingerprint: who.DeviceFingerprint,
		CreatedAt:         now.UTC(),
	}
	tally, err := s.repo.Record(ctx, v)
	if err != nil {
		return poll.Tally{}, err
	}

	s.publisher.Publish(TallyChanged{Tally: tally, At: now})
	return tally, nil
}

// HasVoted reports the option chosen by the voter behind origin and
// userAgent, or nil when they have not voted on pollID.
func (s *Service) HasVoted(ctx context.Context, pollID, origin, userAgent string) (*int, error) {
	if _, err := s.polls.GetByID(ctx, pollID); err != nil {
		return nil, err
	}
	v, err := s.repo.FindByVoter(ctx, pollID, s.ids.VoterID(origin, userAgent))
	if errors.Is(err, ErrVoteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx := v.OptionIndex
	return &idx, nil
}

// NotifyClosed publishes the final tally of a poll that was just closed so
// live viewers stop offering the vote buttons.
func (s *Service) NotifyClosed(p *poll.Poll) {
	s.publisher.Publish(TallyChanged{Tally: p.Tally(), At: s.now()})
}
