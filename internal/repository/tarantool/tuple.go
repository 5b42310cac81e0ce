package tarantool

import (
	"fmt"
	"time"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
)

func pollToTuple(p *poll.Poll) []interface{} {
	options := make([]interface{}, len(p.Options))
	counts := make([]interface{}, len(p.Options))
	for i, o := range p.Options {
		options[i] = o.Text
		counts[i] = o.VoteCount
	}
	return []interface{}{
		p.ID,
		p.Question,
		options,
		counts,
		p.TotalVotes,
		p.IsActive,
		p.CreatedAt.UnixMilli(),
		p.ExpiresAt.UnixMilli(),
	}
}

func pollFromTuple(t []interface{}) (*poll.Poll, error) {
	if len(t) < 8 {
		return nil, fmt.Errorf("tarantool: poll tuple has %d fields", len(t))
	}
	p := &poll.Poll{}
	var ok bool
	if p.ID, ok = t[0].(string); !ok {
		return nil, fmt.Errorf("tarantool: poll id is %T", t[0])
	}
	if p.Question, ok = t[1].(string); !ok {
		return nil, fmt.Errorf("tarantool: poll question is %T", t[1])
	}
	options, ok := t[2].([]interface{})
	if !ok {
		return nil, fmt.Errorf("tarantool: poll options are %T", t[2])
	}
	counts, err := toInt64Slice(t[3])
	if err != nil {
		return nil, err
	}
	if len(counts) != len(options) {
		return nil, fmt.Errorf("tarantool: %d options but %d counts", len(options), len(counts))
	}
	for i, raw := range options {
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("tarantool: option %d is %T", i, raw)
		}
		p.Options = append(p.Options, poll.Option{Text: text, VoteCount: counts[i]})
	}
	if p.TotalVotes, err = toInt64(t[4]); err != nil {
		return nil, err
	}
	if p.IsActive, ok = t[5].(bool); !ok {
		return nil, fmt.Errorf("tarantool: is_active is %T", t[5])
	}
	created, err := toInt64(t[6])
	if err != nil {
		return nil, err
	}
	expires, err := toInt64(t[7])
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.ExpiresAt = time.UnixMilli(expires).UTC()
	return p, nil
}

func voteFromTuple(t []interface{}) (*vote.Vote, error) {
	if len(t) < 6 {
		return nil, fmt.Errorf("tarantool: vote tuple has %d fields", len(t))
	}
	strs := make([]string, 0, 4)
	for _, i := range []int{0, 1, 3, 4} {
		s, ok := t[i].(string)
		if !ok {
			return nil, fmt.Errorf("tarantool: vote field %d is %T", i, t[i])
		}
		strs = append(strs, s)
	}
	idx, err := toInt64(t[2])
	if err != nil {
		return nil, err
	}
	created, err := toInt64(t[5])
	if err != nil {
		return nil, err
	}
	return &vote.Vote{
		PollID:            strs[0],
		VoterID:           strs[1],
		OptionIndex:       int(idx),
		OriginID:          strs[2],
		DeviceFingerprint: strs[3],
		CreatedAt:         time.UnixMilli(created).UTC(),
	}, nil
}

// tallyFromRecord maps the reply of recordLua onto a tally or domain error.
func tallyFromRecord(pollID string, data []interface{}) (poll.Tally, error) {
	if len(data) == 0 {
		return poll.Tally{}, fmt.Errorf("tarantool record vote: empty response")
	}
	reply, ok := data[0].([]interface{})
	if !ok || len(reply) == 0 {
		return poll.Tally{}, fmt.Errorf("tarantool record vote: unexpected reply %v", data[0])
	}
	status, _ := reply[0].(string)
	switch status {
	case "ok":
	case "not_found":
		return poll.Tally{}, poll.ErrPollNotFound
	case "inactive":
		return poll.Tally{}, vote.ErrPollInactive
	case "invalid_option":
		return poll.Tally{}, vote.ErrInvalidOption
	case "already_voted":
		return poll.Tally{}, vote.ErrAlreadyVoted
	default:
		return poll.Tally{}, fmt.Errorf("tarantool record vote: unknown status %v", reply[0])
	}
	if len(reply) < 3 {
		return poll.Tally{}, fmt.Errorf("tarantool record vote: short reply %v", reply)
	}

	counts, err := toInt64Slice(reply[1])
	if err != nil {
		return poll.Tally{}, err
	}
	total, err := toInt64(reply[2])
	if err != nil {
		return poll.Tally{}, err
	}
	return poll.Tally{PollID: pollID, Counts: counts, TotalVotes: total}, nil
}

func firstString(data []interface{}) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("tarantool: empty response")
	}
	s, ok := data[0].(string)
	if !ok {
		return "", fmt.Errorf("tarantool: expected string, got %T", data[0])
	}
	return s, nil
}

func toInt64Slice(v interface{}) ([]int64, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("tarantool: expected array, got %T", v)
	}
	out := make([]int64, len(raw))
	for i, r := range raw {
		n, err := toInt64(r)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// toInt64 accepts any integer msgpack may decode into, plus float64 for
// numbers Lua produced by arithmetic.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("tarantool: expected number, got %T", v)
	}
}
