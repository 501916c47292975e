package orchestrator

import (
	"testing"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

func newTestMessage(t *testing.T) models.Message {
	t.Helper()
	m, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "Guild", "general", "alice")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return m
}

func TestBatchQueue_AddSignalsFlushAtMaxSize(t *testing.T) {
	q := newBatchQueue(3)

	if flush := q.add(newTestMessage(t)); flush {
		t.Error("expected no flush signal after 1/3 messages")
	}
	if flush := q.add(newTestMessage(t)); flush {
		t.Error("expected no flush signal after 2/3 messages")
	}
	if flush := q.add(newTestMessage(t)); !flush {
		t.Error("expected flush signal once maxSize is reached")
	}
}

func TestBatchQueue_DefaultsMaxSize(t *testing.T) {
	q := newBatchQueue(0)
	if q.maxSize != 10 {
		t.Errorf("maxSize = %d, want default 10", q.maxSize)
	}
	q = newBatchQueue(-1)
	if q.maxSize != 10 {
		t.Errorf("maxSize = %d, want default 10 for negative input", q.maxSize)
	}
}

func TestBatchQueue_DrainEmptiesAndResets(t *testing.T) {
	q := newBatchQueue(5)
	q.add(newTestMessage(t))
	q.add(newTestMessage(t))

	drained := q.drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d messages, want 2", len(drained))
	}

	if again := q.drain(); again != nil {
		t.Errorf("expected nil on drain of empty queue, got %v", again)
	}
}

func TestIngressQueue_TryPushDropsWhenFull(t *testing.T) {
	q := newIngressQueue(1)

	if !q.tryPush(newTestMessage(t)) {
		t.Fatal("expected first push to succeed")
	}
	if q.tryPush(newTestMessage(t)) {
		t.Error("expected second push to a full queue to be dropped")
	}
}
