package vote

import (
	"context"
	"time"

	"livepoll/internal/domain/poll"
)

// Vote is one accepted ballot. At most one exists per (PollID, VoterID).
type Vote struct {
	PollID            string    `json:"pollId"`
	OptionIndex       int       `json:"optionIndex"`
	VoterID           string    `json:"-"`
	OriginID          string    `json:"-"`
	DeviceFingerprint string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Repository stores votes together with the poll counters they feed.
type Repository interface {
	// Record inserts v if no vote exists for (v.PollID, v.VoterID) and
	// increments the option and total counters in the same atomic unit.
	// It returns ErrAlreadyVoted when the pair exists, ErrPollInactive when
	// the poll is closed or expired, poll.ErrPollNotFound when it is gone and
	// ErrInvalidOption when the index does not exist.
	Record(ctx context.Context, v *Vote) (poll.Tally, error)
	FindByVoter(ctx context.Context, pollID, voterID string) (*Vote, error)
}

type PollReader interface {
	GetByID(ctx context.Context, id string) (*poll.Poll, error)
}

type Limiter interface {
	Allow(originID, pollID string) error
}

// TallyChanged is emitted after a vote commits or a poll closes.
type TallyChanged struct {
	Tally poll.Tally
	At    time.Time
}

type Publisher interface {
	// Publish must not block.
	Publish(ev TallyChanged)
}

// Ballot is the raw request metadata of one vote attempt.
type Ballot struct {
	PollID         string
	OptionIndex    int
	Origin         string
	UserAgent      string
	AcceptLanguage string
}
