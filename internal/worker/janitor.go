package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"livepoll/internal/metrics"
)

type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Sweeper interface {
	Sweep() int
}

// Janitor deletes expired polls and forgets idle rate-limit windows.
type Janitor struct {
	polls    Purger
	limiter  Sweeper
	interval time.Duration
	log      *zap.Logger
}

func NewJanitor(polls Purger, limiter Sweeper, interval time.Duration, log *zap.Logger) *Janitor {
	return &Janitor{polls: polls, limiter: limiter, interval: interval, log: log}
}

func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("janitor started", zap.Duration("interval", j.interval))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	n, err := j.polls.PurgeExpired(ctx)
	if err != nil {
		j.log.Error("purge expired polls", zap.Error(err))
	} else if n > 0 {
		metrics.AddPollsPurged(n)
		j.log.Info("expired polls purged", zap.Int64("count", n))
	}

	if swept := j.limiter.Sweep(); swept > 0 {
		metrics.AddRateWindowsSwept(swept)
		j.log.Debug("rate windows swept", zap.Int("origins", swept))
	}
}
