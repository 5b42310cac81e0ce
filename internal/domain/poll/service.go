package poll

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

const (
	MinOptions = 2
	MaxOptions = 20
)

var (
	ErrPollNotFound     = errors.New("poll not found")
	ErrDuplicateID      = errors.New("poll id already exists")
	ErrQuestionRequired = errors.New("poll must have a question")
	ErrNotEnoughOptions = errors.New("poll must have at least 2 options")
	ErrTooManyOptions   = errors.New("poll has too many options")
	ErrEmptyOption      = errors.New("poll options must not be empty")
)

type Service struct {
	repo  Repository
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now, newID: NewID}
}

func (s *Service) Create(ctx context.Context, question string, options []string) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrQuestionRequired
	}
	if len(options) < MinOptions {
		return nil, ErrNotEnoughOptions
	}
	if len(options) > MaxOptions {
		return nil, ErrTooManyOptions
	}

	opts := make([]Option, 0, len(options))
	for _, text := range options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrEmptyOption
		}
		opts = append(opts, Option{Text: text})
	}

	now := s.now().UTC()
	p := &Poll{
		Question:  question,
		Options:   opts,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	// a collision on a random 128-bit id means something is badly wrong,
	// one retry is enough to rule out plain bad luck
	for attempt := 0; ; attempt++ {
		p.ID = s.newID()
		err := s.repo.Create(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrDuplicateID) || attempt > 0 {
			return nil, err
		}
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Poll, error) {
	return s.repo.GetByID(ctx, id)
}

// Close stops a poll from accepting votes. Closing twice is not an error.
func (s *Service) Close(ctx context.Context, id string) (*Poll, error) {
	if err := s.repo.Close(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

type Result struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type Results struct {
	PollID     string    `json:"pollId"`
	Question   string    `json:"question"`
	Results    []Result  `json:"results"`
	TotalVotes int64     `json:"totalVotes"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Service) Results(ctx context.Context, id string) (*Results, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &Results{
		PollID:     p.ID,
		Question:   p.Question,
		Results:    make([]Result, 0, len(p.Options)),
		TotalVotes: p.TotalVotes,
		IsActive:   p.AcceptsVotes(s.now()),
		CreatedAt:  p.CreatedAt,
	}
	for i, o := range p.Options {
		var pct float64
		if p.TotalVotes > 0 {
			pct = math.Round(float64(o.VoteCount)*1000/float64(p.TotalVotes)) / 10
		}
		res.Results = append(res.Results, Result{
			Index:      i,
			Text:       o.Text,
			Votes:      o.VoteCount,
			Percentage: pct,
		})
	}
	return res, nil
}
