package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

type VoteRepo struct {
	db *pgxpool.Pool
}

func NewVoteRepo(db *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{db: db}
}

// Record locks the poll row, inserts the vote if the voter has none yet and
// bumps both counters before committing. The row lock serialises votes on
// one poll only, and the unique (poll_id, voter_id) key makes the insert
// itself the duplicate check.
func (r *VoteRepo) Record(ctx context.Context, v *vote.Vote) (poll.Tally, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return poll.Tally{}, err
	}
	defer tx.Rollback(ctx)

	var (
		active    bool
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, `
        SELECT is_active, expires_at FROM polls WHERE id = $1 FOR UPDATE
    `, v.PollID).Scan(&active, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.Tally{}, poll.ErrPollNotFound
		}
		return poll.Tally{}, err
	}
	if !active || !v.CreatedAt.Before(expiresAt) {
		return poll.Tally{}, vote.ErrPollInactive
	}

	var voteID int64
	err = tx.QueryRow(ctx, `
        INSERT INTO votes (poll_id, option_index, voter_id, origin_id, device_fingerprint, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (poll_id, voter_id) DO NOTHING
        RETURNING id
    `, v.PollID, v.OptionIndex, v.VoterID, v.OriginID, v.DeviceFingerprint, v.CreatedAt).Scan(&voteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.Tally{}, vote.ErrAlreadyVoted
		}
		if isUniqueViolation(err) {
			return poll.Tally{}, vote.ErrAlreadyVoted
		}
		return poll.Tally{}, err
	}

	tag, err := tx.Exec(ctx, `
        UPDATE poll_options SET vote_count = vote_count + 1
        WHERE poll_id = $1 AND idx = $2
    `, v.PollID, v.OptionIndex)
	if err != nil {
		return poll.Tally{}, err
	}
	if tag.RowsAffected() == 0 {
		return poll.Tally{}, vote.ErrInvalidOption
	}

	tally := poll.Tally{PollID: v.PollID}
	err = tx.QueryRow(ctx, `
        UPDATE polls SET total_votes = total_votes + 1
        WHERE id = $1
        RETURNING total_votes
    `, v.PollID).Scan(&tally.TotalVotes)
	if err != nil {
		return poll.Tally{}, err
	}

	rows, err := tx.Query(ctx, `
        SELECT vote_count FROM poll_options WHERE poll_id = $1 ORDER BY idx
    `, v.PollID)
	if err != nil {
		return poll.Tally{}, err
	}
	tally.Counts, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return poll.Tally{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return poll.Tally{}, err
	}
	return tally, nil
}

func (r *VoteRepo) FindByVoter(ctx context.Context, pollID, voterID string) (*vote.Vote, error) {
	v := &vote.Vote{}
	err := r.db.QueryRow(ctx, `
        SELECT poll_id, option_index, voter_id, origin_id, device_fingerprint, created_at
        FROM votes WHERE poll_id = $1 AND voter_id = $2
    `, pollID, voterID).Scan(&v.PollID, &v.OptionIndex, &v.VoterID, &v.OriginID, &v.DeviceFingerprint, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vote.ErrVoteNotFound
		}
		return nil, err
	}
	return v, nil
}
