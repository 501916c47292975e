package sink

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
)

// redirectTransport rewrites every outgoing request to point at a local
// httptest.Server instead of api.telegram.org, so Client's hardcoded API
// base can be exercised without real network access.
type redirectTransport struct {
	base *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.base.Scheme
	req.URL.Host = rt.base.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	httpClient := &http.Client{Transport: redirectTransport{base: base}}
	limiter := ratelimit.New("telegram_send_test", 0, 0, slog.Default())
	store := NewFileStore(t.TempDir() + "/blob.json")

	return NewClient("test-token", "123", true, httpClient, limiter, store, slog.Default())
}

func TestClient_GetMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"username":"bridgebot"}}`)
	})

	if err := client.GetMe(t.Context()); err != nil {
		t.Fatalf("GetMe: %v", err)
	}
}

func TestClient_GetMe_PropagatesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	})

	if err := client.GetMe(t.Context()); err == nil {
		t.Fatal("expected error for unauthorized response")
	}
}

func TestClient_TopicFor_CreatesAndCaches(t *testing.T) {
	creates, exists := 0, 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createForumTopic"):
			creates++
			if r.URL.Query().Get("name") != "🏰 My Guild" {
				t.Errorf("createForumTopic name = %q, want \"🏰 My Guild\"", r.URL.Query().Get("name"))
			}
			if r.URL.Query().Get("icon_color") != "7322096" {
				t.Errorf("createForumTopic icon_color = %q, want 7322096", r.URL.Query().Get("icon_color"))
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_thread_id":55}}`)
		case strings.HasSuffix(r.URL.Path, "/getForumTopic"):
			exists++
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		default:
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
	})

	id, err := client.TopicFor(t.Context(), "My Guild")
	if err != nil {
		t.Fatalf("TopicFor: %v", err)
	}
	if id != 55 {
		t.Errorf("TopicFor = %d, want 55", id)
	}

	// second call for the same guild reuses the cache after verifying the
	// cached topic still exists, rather than creating again
	id2, err := client.TopicFor(t.Context(), "My Guild")
	if err != nil {
		t.Fatalf("TopicFor (cached): %v", err)
	}
	if id2 != 55 {
		t.Errorf("cached TopicFor = %d, want 55", id2)
	}
	if creates != 1 {
		t.Errorf("expected exactly 1 createForumTopic call, got %d", creates)
	}
	if exists != 1 {
		t.Errorf("expected exactly 1 getForumTopic existence check, got %d", exists)
	}
}

func TestClient_TopicFor_RecreatesAfterCachedTopicDeleted(t *testing.T) {
	creates := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createForumTopic"):
			creates++
			fmt.Fprintf(w, `{"ok":true,"result":{"message_thread_id":%d}}`, 100+creates)
		case strings.HasSuffix(r.URL.Path, "/getForumTopic"):
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"thread not found"}`)
		default:
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
	})
	client.topics["My Guild"] = 999

	id, err := client.TopicFor(t.Context(), "My Guild")
	if err != nil {
		t.Fatalf("TopicFor: %v", err)
	}
	if id != 101 {
		t.Errorf("TopicFor = %d, want 101 (recreated after cache miss)", id)
	}
	if creates != 1 {
		t.Errorf("expected exactly 1 createForumTopic call, got %d", creates)
	}
}

func TestClient_TopicFor_DisabledReturnsZero(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no API call expected when topics are disabled")
	})
	client.useTopics = false

	id, err := client.TopicFor(t.Context(), "My Guild")
	if err != nil {
		t.Fatalf("TopicFor: %v", err)
	}
	if id != 0 {
		t.Errorf("TopicFor with topics disabled = %d, want 0", id)
	}
}

func TestClient_SendBatch_StopsAtFirstError(t *testing.T) {
	sendCount := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createForumTopic"):
			fmt.Fprint(w, `{"ok":true,"result":{"message_thread_id":1}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sendCount++
			if sendCount == 2 {
				fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests"}`)
				return
			}
			fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d}}`, sendCount)
		}
	})

	msgs := make([]models.Message, 3)
	for i := range msgs {
		m, err := models.NewMessage("hello", time.Now().Add(-time.Minute), "Guild", "general", "alice")
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		msgs[i] = m
	}

	sent, err := client.SendBatch(t.Context(), msgs, true, true)
	if err == nil {
		t.Fatal("expected error from second send")
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1 (stopped before the failing second message)", sent)
	}
}

func TestClient_CleanInvalidTopics_DropsFailingTopics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getForumTopic") {
			if r.URL.Query().Get("message_thread_id") == "10" {
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"thread not found"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		}
	})
	client.topics["stale"] = 10
	client.topics["fresh"] = 20

	removed := client.CleanInvalidTopics(t.Context())
	if len(removed) != 1 || removed[0] != "stale" {
		t.Errorf("removed = %v, want [stale]", removed)
	}
	if _, ok := client.topics["stale"]; ok {
		t.Error("expected stale topic to be dropped from cache")
	}
	if _, ok := client.topics["fresh"]; !ok {
		t.Error("expected fresh topic to remain cached")
	}
}
