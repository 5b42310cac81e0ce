package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

func testVote(pollID string, idx int, voterID string) *vote.Vote {
	return &vote.Vote{
		PollID:            pollID,
		OptionIndex:       idx,
		VoterID:           voterID,
		OriginID:          "origin-" + voterID,
		DeviceFingerprint: "device-" + voterID,
		CreatedAt:         time.Now().UTC(),
	}
}

func TestVoteRepo_RecordUpdatesTally(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "Red", "Blue")

	tally, err := votes.Record(ctx, testVote("poll-1", 0, "voter-a"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0}, tally.Counts)
	assert.Equal(t, int64(1), tally.TotalVotes)

	_, err = votes.Record(ctx, testVote("poll-1", 1, "voter-a"))
	assert.ErrorIs(t, err, vote.ErrAlreadyVoted)

	tally, err = votes.Record(ctx, testVote("poll-1", 1, "voter-b"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, tally.Counts)
	assert.True(t, tally.Consistent())

	p, err := polls.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, tally, p.Tally())
}

func TestVoteRepo_RecordRejectsWithoutMutation(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "Red", "Blue")

	_, err := votes.Record(ctx, testVote("poll-1", 2, "voter-a"))
	assert.ErrorIs(t, err, vote.ErrInvalidOption)

	_, err = votes.Record(ctx, testVote("missing", 0, "voter-a"))
	assert.ErrorIs(t, err, poll.ErrPollNotFound)

	require.NoError(t, polls.Close(ctx, "poll-1"))
	_, err = votes.Record(ctx, testVote("poll-1", 0, "voter-a"))
	assert.ErrorIs(t, err, vote.ErrPollInactive)

	p, err := polls.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.TotalVotes)

	_, err = votes.FindByVoter(ctx, "poll-1", "voter-a")
	assert.ErrorIs(t, err, vote.ErrVoteNotFound)
}

func TestVoteRepo_ConcurrentSameVoter(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "Red", "Blue")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := votes.Record(ctx, testVote("poll-1", i%2, "same-voter"))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
			continue
		}
		require.True(t, errors.Is(err, vote.ErrAlreadyVoted), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, accepted)

	p, err := polls.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.TotalVotes)
	assert.True(t, p.Tally().Consistent())
}

func TestVoteRepo_ConcurrentDistinctVotersKeepCountsExact(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "a", "b", "c")

	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := votes.Record(ctx, testVote("poll-1", i%3, fmt.Sprintf("voter-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := polls.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), p.TotalVotes)
	for _, o := range p.Options {
		assert.Equal(t, int64(n/3), o.VoteCount)
	}

	v, err := votes.FindByVoter(ctx, "poll-1", "voter-4")
	require.NoError(t, err)
	assert.Equal(t, 1, v.OptionIndex)
	assert.Equal(t, "origin-voter-4", v.OriginID)
}

func TestVoteRepo_ReadsStayConsistentDuringWrites(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "a", "b")

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := votes.Record(ctx, testVote("poll-1", i%2, fmt.Sprintf("voter-%d-%d", w, i)))
				assert.NoError(t, err)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	reads := 0
	for {
		select {
		case <-done:
			p, err := polls.GetByID(ctx, "poll-1")
			require.NoError(t, err)
			assert.Equal(t, int64(writers*perWriter), p.TotalVotes)
			assert.True(t, p.Tally().Consistent())
			t.Logf("%d reads during writes", reads)
			return
		default:
		}
		p, err := polls.GetByID(ctx, "poll-1")
		require.NoError(t, err)
		require.True(t, p.Tally().Consistent(), "torn read: total %d, options %+v", p.TotalVotes, p.Options)
		reads++
	}
}

func TestVoteRepo_CancelledRecordLeavesNoState(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	createTestPoll(t, ctx, polls, "poll-1", "Red", "Blue")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := votes.Record(cancelled, testVote("poll-1", 0, "voter-a"))
	require.Error(t, err)

	expired, cancelExpired := context.WithTimeout(ctx, time.Nanosecond)
	defer cancelExpired()
	<-expired.Done()
	_, err = votes.Record(expired, testVote("poll-1", 1, "voter-b"))
	require.Error(t, err)

	var stored int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM votes WHERE poll_id = $1`, "poll-1").Scan(&stored))
	assert.Equal(t, 0, stored)

	p, err := polls.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.TotalVotes)
	assert.Equal(t, []int64{0, 0}, p.Tally().Counts)

	// the voter is free to vote once the request goes through
	_, err = votes.Record(ctx, testVote("poll-1", 0, "voter-a"))
	require.NoError(t, err)
}
