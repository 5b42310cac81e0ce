// Package ratelimit throttles vote attempts per network origin with two
// independent sliding logs: a coarse one shared by every poll and a fine
// one kept separately for each poll.
//
// Logs are exact (one timestamp per attempt), so a burst can never exceed
// the limit at a window boundary the way fixed buckets allow.
package ratelimit

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

type Kind string

const (
	KindCoarse Kind = "coarse"
	KindFine   Kind = "fine"
)

// ErrRateLimited matches every *Error with errors.Is.
var ErrRateLimited = errors.New("rate limited")

// Error reports which throttle rejected an attempt and when the oldest
// counted attempt leaves that window.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Kind == KindFine {
		return fmt.Sprintf("too many rapid votes, retry in %s", e.RetryAfter)
	}
	return fmt.Sprintf("too many requests, retry in %s", e.RetryAfter)
}

func (e *Error) Is(target error) bool {
	return target == ErrRateLimited
}

type Rule struct {
	Limit  int
	Window time.Duration
}

type Config struct {
	Coarse Rule
	Fine   Rule
	// Shards defaults to 64.
	Shards int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Limiter struct {
	coarse Rule
	fine   Rule
	shards []*shard
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	origins map[string]*originLog
}

type originLog struct {
	all     []time.Time
	perPoll map[string][]time.Time
}

func New(cfg Config) *Limiter {
	n := cfg.Shards
	if n <= 0 {
		n = 64
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		coarse: cfg.Coarse,
		fine:   cfg.Fine,
		shards: make([]*shard, n),
		now:    now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{origins: make(map[string]*originLog)}
	}
	return l
}

// Allow checks both throttles for one attempt by originID on pollID and, if
// both pass, records the attempt in both logs. The attempt counts whether or
// not later gates accept the vote. Rejected attempts are not recorded.
func (l *Limiter) Allow(originID, pollID string) error {
	now := l.now()
	s := l.shardFor(originID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.origins[originID]
	if !ok {
		entry = &originLog{perPoll: make(map[string][]time.Time)}
	}

	entry.all = prune(entry.all, now, l.coarse.Window)
	if len(entry.all) >= l.coarse.Limit {
		s.keepOrDrop(originID, entry, ok)
		return &Error{Kind: KindCoarse, RetryAfter: retryAfter(entry.all, now, l.coarse.Window)}
	}

	pollLog := prune(entry.perPoll[pollID], now, l.fine.Window)
	if len(pollLog) >= l.fine.Limit {
		entry.perPoll[pollID] = pollLog
		s.keepOrDrop(originID, entry, ok)
		return &Error{Kind: KindFine, RetryAfter: retryAfter(pollLog, now, l.fine.Window)}
	}

	entry.all = append(entry.all, now)
	entry.perPoll[pollID] = append(pollLog, now)
	s.origins[originID] = entry
	return nil
}

// Sweep drops timestamps that left every window and forgets origins with
// nothing left. It returns how many origins were forgotten.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for origin, entry := range s.origins {
			entry.all = prune(entry.all, now, l.coarse.Window)
			for pollID, log := range entry.perPoll {
				log = prune(log, now, l.fine.Window)
				if len(log) == 0 {
					delete(entry.perPoll, pollID)
					continue
				}
				entry.perPoll[pollID] = log
			}
			if entry.empty() {
				delete(s.origins, origin)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Tracked returns the number of origins currently holding state.
func (l *Limiter) Tracked() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.origins)
		s.mu.Unlock()
	}
	return n
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

func (s *shard) keepOrDrop(origin string, entry *originLog, stored bool) {
	if entry.empty() {
		if stored {
			delete(s.origins, origin)
		}
		return
	}
	s.origins[origin] = entry
}

func (o *originLog) empty() bool {
	return len(o.all) == 0 && len(o.perPoll) == 0
}

// prune keeps timestamps strictly younger than window. log is sorted.
func prune(log []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

func retryAfter(log []time.Time, now time.Time, window time.Duration) time.Duration {
	if len(log) == 0 {
		return 0
	}
	d := log[0].Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
