package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"livepoll/internal/domain/poll"
	"livepoll/internal/platform/database"
)

// setupTestDB starts a throwaway PostgreSQL container and applies the
// embedded migrations. It is skipped in -short mode.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("livepoll"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewPostgres(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	// a second run must be a no-op
	require.NoError(t, database.Migrate(ctx, pool))

	return pool
}

func createTestPoll(t *testing.T, ctx context.Context, repo *PollRepo, id string, options ...string) *poll.Poll {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &poll.Poll{
		ID:        id,
		Question:  "Favourite colour?",
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	for _, o := range options {
		p.Options = append(p.Options, poll.Option{Text: o})
	}
	require.NoError(t, repo.Create(ctx, p))
	return p
}
