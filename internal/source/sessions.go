package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/security"
)

// ErrNoSessions is returned when the pool has no usable tokens left, either
// because none were configured or every one of them failed validation.
var ErrNoSessions = errors.New("source: no valid sessions available")

const apiBase = "https://discord.com/api/v10"

// Session wraps a single bot token: its HTTP identity, fingerprint for log
// lines, and the per-session error counter used to retire a dead token.
//
// An in-process pool seeded from config rather than a DB-backed multi-row
// store, since this domain has only a fixed set of bot tokens, not
// per-user token storage.
type Session struct {
	Token       string
	Fingerprint string

	mu         sync.Mutex
	errorCount int
	disabled   bool
	userID     string
	username   string
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

func newSession(token string) *Session {
	return &Session{Token: token, Fingerprint: fingerprint(token)}
}

func (s *Session) markError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	if s.errorCount >= 5 {
		s.disabled = true
	}
}

func (s *Session) markSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorCount > 0 {
		s.errorCount--
	}
}

func (s *Session) isDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Pool round-robins across a fixed set of bot tokens, validating each at
// startup and skipping any that fail or are later disabled after repeated
// errors.
type Pool struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	log      *slog.Logger
	sessions []*Session
	cursor   uint64
}

// NewPool validates every configured token (see Pool.validate), dropping
// any token that fails authentication, lacks the MESSAGE_CONTENT intent
// flag, or belongs to a bot with no guilds.
func NewPool(ctx context.Context, tokens []string, httpClient *http.Client, limiter *ratelimit.Limiter, log *slog.Logger) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoSessions
	}

	p := &Pool{http: httpClient, limiter: limiter, log: log}
	for _, tok := range tokens {
		sess := newSession(tok)
		if err := p.validate(ctx, sess); err != nil {
			log.Warn("source: dropping invalid token", "fingerprint", sess.Fingerprint, "error", err)
			continue
		}
		p.sessions = append(p.sessions, sess)
	}

	if len(p.sessions) == 0 {
		return nil, ErrNoSessions
	}
	log.Info("source: session pool ready", "valid_tokens", len(p.sessions), "configured", len(tokens))
	return p, nil
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Flags    int64  `json:"flags"`
}

const messageContentUserFlagBit = 1 << 18

// validate runs the three-step token check: GET /users/@me (authenticates
// and records the bot's own user ID/username for logging), then the
// MESSAGE_CONTENT user flag (bit 18) on that same response, then
// GET /users/@me/guilds requiring at least one guild. A token failing any
// step is discarded by the caller.
func (p *Pool) validate(ctx context.Context, s *Session) error {
	me, err := p.fetchMe(ctx, s)
	if err != nil {
		return err
	}
	s.userID = me.ID
	s.username = me.Username

	if me.Flags&messageContentUserFlagBit == 0 {
		return errors.New("source: token lacks MESSAGE_CONTENT intent flag")
	}

	guildCount, err := p.fetchGuildCount(ctx, s)
	if err != nil {
		return err
	}
	if guildCount < 1 {
		return errors.New("source: token has no guilds")
	}
	return nil
}

func (p *Pool) fetchMe(ctx context.Context, s *Session) (meResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/users/@me", nil)
	if err != nil {
		return meResponse{}, err
	}
	req.Header.Set("Authorization", "Bot "+s.Token)

	if !p.limiter.WaitIfNeededSafe(ctx, "validate", 10*time.Second) {
		return meResponse{}, fmt.Errorf("source: rate limit wait timed out validating token")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.limiter.RecordError()
		return meResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.limiter.RecordError()
		return meResponse{}, fmt.Errorf("source: token validation failed with status %d", resp.StatusCode)
	}
	p.limiter.RecordSuccess()

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return meResponse{}, fmt.Errorf("source: decoding /users/@me response: %w", err)
	}
	return me, nil
}

func (p *Pool) fetchGuildCount(ctx context.Context, s *Session) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/users/@me/guilds", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bot "+s.Token)

	if !p.limiter.WaitIfNeededSafe(ctx, "validate", 10*time.Second) {
		return 0, fmt.Errorf("source: rate limit wait timed out fetching guilds")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.limiter.RecordError()
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.limiter.RecordError()
		return 0, fmt.Errorf("source: fetching /users/@me/guilds failed with status %d", resp.StatusCode)
	}
	p.limiter.RecordSuccess()

	var guilds []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&guilds); err != nil {
		return 0, fmt.Errorf("source: decoding /users/@me/guilds response: %w", err)
	}
	return len(guilds), nil
}

// Next returns the next live session in round-robin order, skipping any
// that have been disabled after repeated failures.
func (p *Pool) Next() (*Session, error) {
	n := len(p.sessions)
	if n == 0 {
		return nil, ErrNoSessions
	}
	for i := 0; i < n; i++ {
		idx := int(atomic.AddUint64(&p.cursor, 1)-1) % n
		sess := p.sessions[idx]
		if !sess.isDisabled() {
			return sess, nil
		}
	}
	return nil, ErrNoSessions
}

// All returns every live (non-disabled) session, used by the gateway
// manager to spin up one connection per token.
func (p *Pool) All() []*Session {
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		if !s.isDisabled() {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pool) Len() int { return len(p.sessions) }

// EncryptedFingerprints returns each live session's fingerprint paired with
// its token encrypted under encryptionKey, for an audit trail an operator
// can persist without ever writing a raw token to disk or logs. The bridge
// itself only logs how many entries the result holds and never decrypts
// these again.
// Uses AES-256-GCM encryption rather than a full token-storage-at-rest
// layer, since this domain's env-seeded token pool has nothing else to
// persist about a token.
func (p *Pool) EncryptedFingerprints(encryptionKey []byte) (map[string]string, error) {
	out := make(map[string]string, len(p.sessions))
	for _, s := range p.sessions {
		enc, err := security.EncryptToken(s.Token, encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("source: encrypting token %s for audit: %w", s.Fingerprint, err)
		}
		out[s.Fingerprint] = enc
	}
	return out, nil
}
