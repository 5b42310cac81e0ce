package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

var (
	_ poll.Repository = (*Store)(nil)
	_ vote.Repository = (*Store)(nil)
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string, options ...string) *poll.Poll {
	t.Helper()
	p := &poll.Poll{
		ID:        id,
		Question:  "Q?",
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	for _, o := range options {
		p.Options = append(p.Options, poll.Option{Text: o})
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func newVote(pollID string, idx int, voter string) *vote.Vote {
	return &vote.Vote{PollID: pollID, OptionIndex: idx, VoterID: voter, OriginID: "o", CreatedAt: now}
}

func TestStoreCreateAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seed(t, s, "p1", "a", "b")

	assert.ErrorIs(t, s.Create(ctx, p), poll.ErrDuplicateID)

	got, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Q?", got.Question)

	// returned polls are copies
	got.Options[0].VoteCount = 99
	again, _ := s.GetByID(ctx, "p1")
	assert.Equal(t, int64(0), again.Options[0].VoteCount)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, poll.ErrPollNotFound)
}

func TestStoreRecordGates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s, "p1", "a", "b")

	tally, err := s.Record(ctx, newVote("p1", 0, "v1"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0}, tally.Counts)

	_, err = s.Record(ctx, newVote("p1", 1, "v1"))
	assert.ErrorIs(t, err, vote.ErrAlreadyVoted)

	_, err = s.Record(ctx, newVote("p1", 5, "v2"))
	assert.ErrorIs(t, err, vote.ErrInvalidOption)

	require.NoError(t, s.Close(ctx, "p1"))
	_, err = s.Record(ctx, newVote("p1", 0, "v3"))
	assert.ErrorIs(t, err, vote.ErrPollInactive)

	v, err := s.FindByVoter(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, v.OptionIndex)

	_, err = s.FindByVoter(ctx, "p1", "v2")
	assert.ErrorIs(t, err, vote.ErrVoteNotFound)
}

func TestStoreConcurrentVotes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s, "p1", "a", "b", "c")
	seed(t, s, "p2", "a", "b")

	const n = 300
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Record(ctx, newVote("p1", i%3, fmt.Sprintf("voter-%d", i)))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			// every goroutine is the same voter on p2
			_, _ = s.Record(ctx, newVote("p2", i%2, "same"))
		}(i)
	}
	wg.Wait()

	p1, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), p1.TotalVotes)
	assert.True(t, p1.Tally().Consistent())

	p2, err := s.GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p2.TotalVotes)
}

func TestStoreDeleteExpired(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s, "p1", "a", "b")

	n, err := s.DeleteExpired(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, s.Len())

	_, err = s.Record(ctx, newVote("p1", 0, "v1"))
	assert.ErrorIs(t, err, poll.ErrPollNotFound)
}
