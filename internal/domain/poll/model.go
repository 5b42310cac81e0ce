package poll

import (
	"context"
	"time"
)

type Option struct {
	Text      string `json:"text"`
	VoteCount int64  `json:"voteCount"`
}

type Poll struct {
	ID         string    `json:"pollId"`
	Question   string    `json:"question"`
	Options    []Option  `json:"options"`
	TotalVotes int64     `json:"totalVotes"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// AcceptsVotes reports whether the poll is open at now. A poll past its
// expiry is treated as closed even before the janitor deletes it.
func (p *Poll) AcceptsVotes(now time.Time) bool {
	return p.IsActive && now.Before(p.ExpiresAt)
}

func (p *Poll) ValidOption(index int) bool {
	return index >= 0 && index < len(p.Options)
}

func (p *Poll) Tally() Tally {
	counts := make([]int64, len(p.Options))
	for i, o := range p.Options {
		counts[i] = o.VoteCount
	}
	return Tally{PollID: p.ID, Counts: counts, TotalVotes: p.TotalVotes}
}

// Tally is a point-in-time snapshot of a poll's counters.
type Tally struct {
	PollID     string  `json:"pollId"`
	Counts     []int64 `json:"counts"`
	TotalVotes int64   `json:"totalVotes"`
}

// Consistent reports whether TotalVotes equals the sum of Counts.
func (t Tally) Consistent() bool {
	var sum int64
	for _, c := range t.Counts {
		sum += c
	}
	return sum == t.TotalVotes
}

type Repository interface {
	Create(ctx context.Context, p *Poll) error
	GetByID(ctx context.Context, id string) (*Poll, error)
	Close(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
