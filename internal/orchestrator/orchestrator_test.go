package orchestrator

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/sink"
)

// redirectTransport rewrites every outgoing request to point at a local
// httptest.Server, so sink.Client's hardcoded API base can be exercised
// without real network access.
type redirectTransport struct {
	base *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.base.Scheme
	req.URL.Host = rt.base.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestSinkClient(t *testing.T, handler http.HandlerFunc) *sink.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	httpClient := &http.Client{Transport: redirectTransport{base: base}}
	limiter := ratelimit.New("telegram_test", 0, 0, slog.Default())
	store := sink.NewFileStore(t.TempDir() + "/blob.json")
	return sink.NewClient("test-token", "123", false, httpClient, limiter, store, slog.Default())
}

func newTestOrchestrator(guilds map[string]*models.GuildRecord, ingressCapacity int) *Orchestrator {
	return &Orchestrator{
		guilds:  guilds,
		ingress: newIngressQueue(ingressCapacity),
		batch:   newBatchQueue(10),
		log:     slog.Default(),
	}
}

func TestOnMessage_QueueFullRecordsErrorStat(t *testing.T) {
	rec := models.NewGuildRecord("Guild", "1111111111111111", 10)
	rec.Channels["2222222222222222"] = &models.ChannelRecord{ChannelID: "2222222222222222", ChannelName: "general", HTTPAccessible: true}
	o := newTestOrchestrator(map[string]*models.GuildRecord{"1111111111111111": rec}, 0)

	msg, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "", "", "alice",
		models.WithIDs("3333333333333333", "2222222222222222", "1111111111111111"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	o.onMessage(t.Context(), nil, msg)

	if o.stats.ErrorsLastHour != 1 {
		t.Errorf("ErrorsLastHour = %d, want 1", o.stats.ErrorsLastHour)
	}
	if o.stats.LastError != "queue full" {
		t.Errorf("LastError = %q, want %q", o.stats.LastError, "queue full")
	}
	if o.stats.LastErrorTime == nil {
		t.Error("expected LastErrorTime to be set")
	}
}

func TestOnMessage_FlipsStreamAccessibleOnFirstDispatch(t *testing.T) {
	rec := models.NewGuildRecord("Guild", "1111111111111111", 10)
	rec.Channels["2222222222222222"] = &models.ChannelRecord{ChannelID: "2222222222222222", ChannelName: "general"}
	o := newTestOrchestrator(map[string]*models.GuildRecord{"1111111111111111": rec}, 10)

	msg, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "", "", "alice",
		models.WithIDs("3333333333333333", "2222222222222222", "1111111111111111"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	if rec.Channels["2222222222222222"].StreamAccessible {
		t.Fatal("StreamAccessible should start false")
	}

	o.onMessage(t.Context(), nil, msg)

	if !rec.Channels["2222222222222222"].StreamAccessible {
		t.Error("expected StreamAccessible to flip true after a MESSAGE_CREATE dispatch")
	}
	if rec.ActiveChannels != 1 {
		t.Errorf("ActiveChannels = %d, want 1 now that the channel is accessible via the gateway", rec.ActiveChannels)
	}
}

func TestOnMessage_UnknownGuildDropsSilently(t *testing.T) {
	o := newTestOrchestrator(map[string]*models.GuildRecord{}, 10)

	msg, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "", "", "alice",
		models.WithIDs("3333333333333333", "2222222222222222", "1111111111111111"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	o.onMessage(t.Context(), nil, msg)

	if o.stats.ErrorsLastHour != 0 {
		t.Errorf("ErrorsLastHour = %d, want 0 for an unresolved guild", o.stats.ErrorsLastHour)
	}
	select {
	case <-o.ingress.ch:
		t.Error("expected no message enqueued for an unknown guild")
	default:
	}
}

func TestPushBatch_FlushesImmediatelyAtMaxSize(t *testing.T) {
	sendCount := 0
	sinkClient := newTestSinkClient(t, func(w http.ResponseWriter, r *http.Request) {
		sendCount++
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d}}`, sendCount)
	})

	o := newTestOrchestrator(map[string]*models.GuildRecord{}, 10)
	o.sink = sinkClient
	o.batch = newBatchQueue(2)

	msgs := make([]models.Message, 2)
	for i := range msgs {
		m, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "Guild", "general", "alice")
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		msgs[i] = m
	}

	o.pushBatch(t.Context(), msgs)

	if sendCount != 2 {
		t.Errorf("sendCount = %d, want 2 (size-triggered flush should fire inline, not wait for the 5s tick)", sendCount)
	}
	if drained := o.batch.drain(); drained != nil {
		t.Errorf("expected batch queue to be empty after the size-triggered flush, got %v", drained)
	}
	if o.stats.MessagesProcessedTotal != 2 {
		t.Errorf("MessagesProcessedTotal = %d, want 2", o.stats.MessagesProcessedTotal)
	}
}

func TestSendSingle_UpdatesStatsOnSuccessAndError(t *testing.T) {
	ok := true
	sinkClient := newTestSinkClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ok {
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
			return
		}
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"boom"}`)
	})

	o := newTestOrchestrator(map[string]*models.GuildRecord{}, 10)
	o.sink = sinkClient

	msg, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "Guild", "general", "alice")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	o.sendSingle(t.Context(), msg)
	if o.stats.MessagesProcessedTotal != 1 {
		t.Errorf("MessagesProcessedTotal = %d, want 1 after a successful single send", o.stats.MessagesProcessedTotal)
	}

	ok = false
	o.sendSingle(t.Context(), msg)
	if o.stats.ErrorsLastHour != 1 {
		t.Errorf("ErrorsLastHour = %d, want 1 after a failed single send", o.stats.ErrorsLastHour)
	}
	if o.stats.LastError == "" {
		t.Error("expected LastError to be set after a failed single send")
	}
}
