package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"livepoll/internal/domain/poll"
)

type PollRepo struct {
	db *pgxpool.Pool
}

func NewPollRepo(db *pgxpool.Pool) *PollRepo {
	return &PollRepo{db: db}
}

func (r *PollRepo) Create(ctx context.Context, p *poll.Poll) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO polls (id, question, total_votes, is_active, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, p.ID, p.Question, p.TotalVotes, p.IsActive, p.CreatedAt, p.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return poll.ErrDuplicateID
		}
		return err
	}

	batch := &pgx.Batch{}
	for i, o := range p.Options {
		batch.Queue(`
            INSERT INTO poll_options (poll_id, idx, text, vote_count)
            VALUES ($1, $2, $3, $4)
        `, p.ID, i, o.Text, o.VoteCount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID reads the poll row and its options from one snapshot so the total
// always matches the option counts.
func (r *PollRepo) GetByID(ctx context.Context, id string) (*poll.Poll, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p := &poll.Poll{}
	err = tx.QueryRow(ctx, `
        SELECT id, question, total_votes, is_active, created_at, expires_at
        FROM polls WHERE id = $1
    `, id).Scan(&p.ID, &p.Question, &p.TotalVotes, &p.IsActive, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, poll.ErrPollNotFound
		}
		return nil, err
	}

	rows, err := tx.Query(ctx, `
        SELECT text, vote_count
        FROM poll_options WHERE poll_id = $1
        ORDER BY idx
    `, id)
	if err != nil {
		return nil, err
	}
	p.Options, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (poll.Option, error) {
		var o poll.Option
		err := row.Scan(&o.Text, &o.VoteCount)
		return o, err
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PollRepo) Close(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE polls SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return poll.ErrPollNotFound
	}
	return nil
}

// DeleteExpired removes polls whose expiry has passed. Options and votes go
// with them through ON DELETE CASCADE.
func (r *PollRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM polls WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
