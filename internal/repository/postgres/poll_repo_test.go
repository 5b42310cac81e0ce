package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll/internal/domain/poll"
)

func TestPollRepo_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPollRepo(pool)

	created := createTestPoll(t, ctx, repo, "poll-1", "Red", "Green", "Blue")

	got, err := repo.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, created.Question, got.Question)
	assert.True(t, got.IsActive)
	assert.Equal(t, int64(0), got.TotalVotes)
	require.Len(t, got.Options, 3)
	assert.Equal(t, "Red", got.Options[0].Text)
	assert.Equal(t, "Blue", got.Options[2].Text)
	assert.True(t, created.ExpiresAt.Equal(got.ExpiresAt))
}

func TestPollRepo_DuplicateID(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPollRepo(pool)

	createTestPoll(t, ctx, repo, "poll-1", "a", "b")

	err := repo.Create(ctx, &poll.Poll{
		ID:        "poll-1",
		Question:  "again",
		Options:   []poll.Option{{Text: "x"}, {Text: "y"}},
		IsActive:  true,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, poll.ErrDuplicateID)
}

func TestPollRepo_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPollRepo(pool)

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, poll.ErrPollNotFound)
	assert.ErrorIs(t, repo.Close(ctx, "missing"), poll.ErrPollNotFound)
}

func TestPollRepo_CloseIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPollRepo(pool)

	createTestPoll(t, ctx, repo, "poll-1", "a", "b")

	require.NoError(t, repo.Close(ctx, "poll-1"))
	require.NoError(t, repo.Close(ctx, "poll-1"))

	got, err := repo.GetByID(ctx, "poll-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestPollRepo_DeleteExpiredCascades(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	polls := NewPollRepo(pool)
	votes := NewVoteRepo(pool)

	p := createTestPoll(t, ctx, polls, "poll-1", "a", "b")
	createTestPoll(t, ctx, polls, "poll-2", "a", "b")
	_, err := votes.Record(ctx, testVote("poll-1", 0, "voter-1"))
	require.NoError(t, err)

	n, err := polls.DeleteExpired(ctx, p.ExpiresAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = polls.DeleteExpired(ctx, p.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = polls.GetByID(ctx, "poll-1")
	assert.ErrorIs(t, err, poll.ErrPollNotFound)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM votes`).Scan(&remaining))
	assert.Equal(t, 0, remaining)
}
