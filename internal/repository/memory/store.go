// Package memory keeps polls and votes in process memory. It is used for
// local runs and tests; state is lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

// Store implements both poll.Repository and vote.Repository. The map lock
// only guards membership; each poll carries its own lock so votes on
// different polls never contend.
type Store struct {
	mu    sync.RWMutex
	polls map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	poll    poll.Poll
	votes   map[string]vote.Vote
	removed bool
}

func NewStore() *Store {
	return &Store{polls: make(map[string]*entry)}
}

func (s *Store) Create(ctx context.Context, p *poll.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[p.ID]; ok {
		return poll.ErrDuplicateID
	}
	s.polls[p.ID] = &entry{poll: clonePoll(p), votes: make(map[string]vote.Vote)}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*poll.Poll, error) {
	e, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	p := clonePoll(&e.poll)
	return &p, nil
}

func (s *Store) Close(ctx context.Context, id string) error {
	e, err := s.lock(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.poll.IsActive = false
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.polls {
		e.mu.Lock()
		if !now.Before(e.poll.ExpiresAt) {
			e.removed = true
			delete(s.polls, id)
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (s *Store) Record(ctx context.Context, v *vote.Vote) (poll.Tally, error) {
	e, err := s.lock(v.PollID)
	if err != nil {
		return poll.Tally{}, err
	}
	defer e.mu.Unlock()

	if !e.poll.AcceptsVotes(v.CreatedAt) {
		return poll.Tally{}, vote.ErrPollInactive
	}
	if !e.poll.ValidOption(v.OptionIndex) {
		return poll.Tally{}, vote.ErrInvalidOption
	}
	if _, ok := e.votes[v.VoterID]; ok {
		return poll.Tally{}, vote.ErrAlreadyVoted
	}

	e.votes[v.VoterID] = *v
	e.poll.Options[v.OptionIndex].VoteCount++
	e.poll.TotalVotes++
	return e.poll.Tally(), nil
}

func (s *Store) FindByVoter(ctx context.Context, pollID, voterID string) (*vote.Vote, error) {
	e, err := s.lock(pollID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	v, ok := e.votes[voterID]
	if !ok {
		return nil, vote.ErrVoteNotFound
	}
	return &v, nil
}

// Len returns the number of stored polls.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.polls)
}

// lock returns the poll entry with its lock held.
func (s *Store) lock(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.polls[id]
	s.mu.RUnlock()
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, poll.ErrPollNotFound
	}
	return e, nil
}

func clonePoll(p *poll.Poll) poll.Poll {
	cp := *p
	cp.Options = append([]poll.Option(nil), p.Options...)
	return cp
}
