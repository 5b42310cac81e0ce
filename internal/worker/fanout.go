package worker

import (
	"context"

	"go.uber.org/zap"

	"livepoll/internal/broadcast"
	"livepoll/internal/domain/vote"
	"livepoll/internal/metrics"
)

type Broadcaster interface {
	Broadcast(pollID string, msg []byte) (delivered, dropped int)
}

// Fanout decouples committed tally changes from websocket delivery. The
// vote path only ever does a non-blocking send into ch.
type Fanout struct {
	ch  chan vote.TallyChanged
	hub Broadcaster
	log *zap.Logger
}

func NewFanout(buffer int, hub Broadcaster, log *zap.Logger) *Fanout {
	return &Fanout{
		ch:  make(chan vote.TallyChanged, buffer),
		hub: hub,
		log: log,
	}
}

// Publish implements vote.Publisher. When the queue is full the change is
// dropped; viewers still see it on their next fetch.
func (f *Fanout) Publish(ev vote.TallyChanged) {
	select {
	case f.ch <- ev:
	default:
		metrics.IncFanoutOverflow()
		f.log.Warn("fanout queue full, dropping tally change", zap.String("poll_id", ev.Tally.PollID))
	}
}

func (f *Fanout) Run(ctx context.Context) {
	f.log.Info("fanout worker started")
	for {
		select {
		case <-ctx.Done():
			f.log.Info("fanout worker stopped")
			return
		case ev := <-f.ch:
			f.deliver(ev)
		}
	}
}

func (f *Fanout) deliver(ev vote.TallyChanged) {
	msg, err := broadcast.ResultsUpdated(ev.Tally)
	if err != nil {
		f.log.Error("encode tally change", zap.Error(err))
		return
	}
	delivered, dropped := f.hub.Broadcast(ev.Tally.PollID, msg)
	metrics.AddNotifications(delivered, dropped)
	f.log.Debug("tally change delivered",
		zap.String("poll_id", ev.Tally.PollID),
		zap.Int64("total_votes", ev.Tally.TotalVotes),
		zap.Int("delivered", delivered),
		zap.Int("dropped", dropped))
}
