package source

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
)

// redirectTransport rewrites every outgoing request to point at a local
// httptest.Server instead of discord.com, so Pool's hardcoded API base can
// be exercised without real network access.
type redirectTransport struct {
	base *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.base.Scheme
	req.URL.Host = rt.base.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestPoolDeps(t *testing.T, handler http.HandlerFunc) (*http.Client, *ratelimit.Limiter) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	httpClient := &http.Client{Transport: redirectTransport{base: base}}
	limiter := ratelimit.New("discord_test", 0, 0, slog.Default())
	return httpClient, limiter
}

func TestNewPool_RequiresMessageContentFlag(t *testing.T) {
	httpClient, limiter := newTestPoolDeps(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/@me/guilds"):
			fmt.Fprint(w, `[{"id":"g1"}]`)
		case strings.HasSuffix(r.URL.Path, "/users/@me"):
			fmt.Fprint(w, `{"id":"1","username":"bot","flags":0}`)
		}
	})

	_, err := NewPool(t.Context(), []string{"tok"}, httpClient, limiter, slog.Default())
	if err == nil {
		t.Fatal("expected NewPool to fail when MESSAGE_CONTENT flag is absent")
	}
}

func TestNewPool_RequiresAtLeastOneGuild(t *testing.T) {
	httpClient, limiter := newTestPoolDeps(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/@me/guilds"):
			fmt.Fprint(w, `[]`)
		case strings.HasSuffix(r.URL.Path, "/users/@me"):
			fmt.Fprintf(w, `{"id":"1","username":"bot","flags":%d}`, messageContentUserFlagBit)
		}
	})

	_, err := NewPool(t.Context(), []string{"tok"}, httpClient, limiter, slog.Default())
	if err == nil {
		t.Fatal("expected NewPool to fail when the bot has no guilds")
	}
}

func TestNewPool_AcceptsTokenPassingAllThreeChecks(t *testing.T) {
	httpClient, limiter := newTestPoolDeps(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/@me/guilds"):
			fmt.Fprint(w, `[{"id":"g1"},{"id":"g2"}]`)
		case strings.HasSuffix(r.URL.Path, "/users/@me"):
			fmt.Fprintf(w, `{"id":"1","username":"bot","flags":%d}`, messageContentUserFlagBit)
		}
	})

	pool, err := NewPool(t.Context(), []string{"tok"}, httpClient, limiter, slog.Default())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("pool.Len() = %d, want 1", pool.Len())
	}
}

func TestNewPool_DropsTokenFailingAuthentication(t *testing.T) {
	httpClient, limiter := newTestPoolDeps(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := NewPool(t.Context(), []string{"bad-tok"}, httpClient, limiter, slog.Default())
	if err == nil {
		t.Fatal("expected NewPool to fail when every token fails authentication")
	}
}
