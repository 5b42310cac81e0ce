// Package tarantool stores polls and votes in Tarantool. Every write that
// must be atomic runs as one Lua chunk on the server.
package tarantool

import (
	"context"
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

const createLua = `
local t = ...
if box.space.polls:get(t[1]) ~= nil then
    return 'duplicate'
end
box.space.polls:insert(t)
return 'ok'
`

const closeLua = `
local id = ...
if box.space.polls:get(id) == nil then
    return false
end
box.space.polls:update(id, {{'=', 6, false}})
return true
`

// recordLua checks the poll, inserts the vote and bumps the counters inside
// one transaction. It returns {status} or {'ok', counts, total}.
const recordLua = `
local poll_id, voter_id, idx, origin_id, device, ts = ...
return box.atomic(function()
    local p = box.space.polls:get(poll_id)
    if p == nil then
        return {'not_found'}
    end
    if not p[6] or ts >= p[8] then
        return {'inactive'}
    end
    local counts = p[4]
    if idx < 0 or idx >= #counts then
        return {'invalid_option'}
    end
    if box.space.votes:get({poll_id, voter_id}) ~= nil then
        return {'already_voted'}
    end
    box.space.votes:insert({poll_id, voter_id, idx, origin_id, device, ts})
    counts[idx + 1] = counts[idx + 1] + 1
    local total = p[5] + 1
    box.space.polls:update(poll_id, {{'=', 4, counts}, {'=', 5, total}})
    return {'ok', counts, total}
end)
`

const deleteExpiredLua = `
local now = ...
local ids = {}
for _, t in box.space.polls.index.expires:pairs(now, {iterator = 'LE'}) do
    table.insert(ids, t[1])
end
box.atomic(function()
    for _, id in ipairs(ids) do
        local keys = {}
        for _, v in box.space.votes:pairs({id}) do
            table.insert(keys, {v[1], v[2]})
        end
        for _, k in ipairs(keys) do
            box.space.votes:delete(k)
        end
        box.space.polls:delete(id)
    end
end)
return #ids
`

// Store implements poll.Repository and vote.Repository.
type Store struct {
	conn *tarantool.Connection
	log  *zap.Logger
}

func NewStore(conn *tarantool.Connection, log *zap.Logger) *Store {
	return &Store{conn: conn, log: log}
}

func (s *Store) Create(ctx context.Context, p *poll.Poll) error {
	resp, err := s.conn.Eval(createLua, []interface{}{pollToTuple(p)})
	if err != nil {
		return fmt.Errorf("tarantool create poll: %w", err)
	}
	status, err := firstString(resp.Data)
	if err != nil {
		return err
	}
	if status == "duplicate" {
		return poll.ErrDuplicateID
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*poll.Poll, error) {
	resp, err := s.conn.Select("polls", "primary", 0, 1, tarantool.IterEq, []interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("tarantool select poll: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, poll.ErrPollNotFound
	}
	t, ok := resp.Data[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("tarantool: unexpected poll tuple %T", resp.Data[0])
	}
	return pollFromTuple(t)
}

func (s *Store) Close(ctx context.Context, id string) error {
	resp, err := s.conn.Eval(closeLua, []interface{}{id})
	if err != nil {
		return fmt.Errorf("tarantool close poll: %w", err)
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("tarantool close poll: empty response")
	}
	if found, _ := resp.Data[0].(bool); !found {
		return poll.ErrPollNotFound
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	resp, err := s.conn.Eval(deleteExpiredLua, []interface{}{now.UnixMilli()})
	if err != nil {
		return 0, fmt.Errorf("tarantool delete expired: %w", err)
	}
	if len(resp.Data) == 0 {
		return 0, nil
	}
	return toInt64(resp.Data[0])
}

func (s *Store) Record(ctx context.Context, v *vote.Vote) (poll.Tally, error) {
	resp, err := s.conn.Eval(recordLua, []interface{}{
		v.PollID, v.VoterID, v.OptionIndex, v.OriginID, v.DeviceFingerprint, v.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return poll.Tally{}, fmt.Errorf("tarantool record vote: %w", err)
	}
	s.log.Debug("tarantool record", zap.String("poll_id", v.PollID), zap.Any("resp", resp.Data))
	return tallyFromRecord(v.PollID, resp.Data)
}

func (s *Store) FindByVoter(ctx context.Context, pollID, voterID string) (*vote.Vote, error) {
	resp, err := s.conn.Select("votes", "primary", 0, 1, tarantool.IterEq, []interface{}{pollID, voterID})
	if err != nil {
		return nil, fmt.Errorf("tarantool select vote: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, vote.ErrVoteNotFound
	}
	t, ok := resp.Data[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("tarantool: unexpected vote tuple %T", resp.Data[0])
	}
	return voteFromTuple(t)
}

// Ping reports whether the instance answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.conn.Ping()
	return err
}
