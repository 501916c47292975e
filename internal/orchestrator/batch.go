package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

// batchQueue accumulates messages until either it reaches its configured
// size or a flush tick fires, whichever comes first. Same bounded-queue
// shape as ingressQueue but flushed by size/time instead of drained one at
// a time.
type batchQueue struct {
	mu      sync.Mutex
	pending []models.Message
	maxSize int
}

func newBatchQueue(maxSize int) *batchQueue {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &batchQueue{maxSize: maxSize}
}

func (b *batchQueue) add(msg models.Message) (flush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, msg)
	return len(b.pending) >= b.maxSize
}

func (b *batchQueue) drain() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

// pushBatch is the batch path's entry point for bulk callers (e.g. initial
// backfill): it appends each message to the batch queue and flushes
// immediately once the queue reaches message_batch_size, rather than
// waiting for the unconditional 5s tick.
func (o *Orchestrator) pushBatch(ctx context.Context, msgs []models.Message) {
	for _, m := range msgs {
		if o.batch.add(m) {
			o.flushBatch(ctx)
		}
	}
}

// runBatchLoop flushes whatever has accumulated every five seconds
// unconditionally — the size-triggered flush happens inline in pushBatch.
func (o *Orchestrator) runBatchLoop(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.flushBatch(ctx)
		}
	}
}

func (o *Orchestrator) flushBatch(ctx context.Context) {
	msgs := o.batch.drain()
	if len(msgs) == 0 {
		return
	}

	sent, err := o.sink.SendBatch(ctx, msgs, o.cfg.ShowServerInMessage, o.cfg.ShowTimestamps)
	o.mu.Lock()
	o.stats.MessagesProcessedTotal += sent
	o.stats.MessagesProcessedToday += sent
	if err != nil {
		o.stats.ErrorsLastHour++
		o.stats.LastError = err.Error()
		now := time.Now().UTC()
		o.stats.LastErrorTime = &now
	}
	o.mu.Unlock()
	o.bumpDailyCounter(ctx, sent)

	if err != nil {
		o.log.Warn("orchestrator: batch send failed partway", "sent", sent, "total", len(msgs), "error", err)
		o.enqueueDLQ(ctx, msgs[sent:])
	}
}
