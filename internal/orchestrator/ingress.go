package orchestrator

import (
	"context"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

// ingressQueue is a bounded, drop-on-full channel of freshly received
// messages awaiting single-send delivery. Bounded channel + drop-on-full policy under
// load, so a burst on one guild can't stall delivery for the rest.
type ingressQueue struct {
	ch chan models.Message
}

func newIngressQueue(capacity int) *ingressQueue {
	return &ingressQueue{ch: make(chan models.Message, capacity)}
}

func (q *ingressQueue) tryPush(msg models.Message) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// runIngressLoop dequeues realtime gateway messages with a 1s timeout and
// delivers each with a single send via the sink client — the fast path for
// individual MESSAGE_CREATE dispatches. Bulk callers (initial backfill) use
// the separate batch path (see pushBatch) instead of this loop.
func (o *Orchestrator) runIngressLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-o.ingress.ch:
			o.sendSingle(ctx, msg)
		case <-time.After(time.Second):
			// periodic wakeup so ctx cancellation is observed promptly
			// even when the ingress queue is idle.
		}
	}
}

// sendSingle delivers one message via the sink client's single-send path
// and records success/error into stats. A per-message error updates
// last_error/last_error_time but never stops the loop.
func (o *Orchestrator) sendSingle(ctx context.Context, msg models.Message) {
	_, err := o.sink.Send(ctx, msg, o.cfg.ShowServerInMessage, o.cfg.ShowTimestamps)

	o.mu.Lock()
	if err != nil {
		o.stats.ErrorsLastHour++
		o.stats.LastError = err.Error()
		now := time.Now().UTC()
		o.stats.LastErrorTime = &now
	} else {
		o.stats.MessagesProcessedTotal++
		o.stats.MessagesProcessedToday++
	}
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("orchestrator: single-send failed", "channel_id", msg.ChannelID, "error", err)
		return
	}
	o.bumpDailyCounter(ctx, 1)
}
