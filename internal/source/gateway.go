package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes, per the Discord gateway protocol.
const (
	opDispatch            = 0
	opHeartbeat            = 1
	opIdentify             = 2
	opResume               = 6
	opReconnect            = 7
	opInvalidSession       = 9
	opHello                = 10
	opHeartbeatACK         = 11
)

// intentsGuildsAndMessages = GUILDS (1<<0) | GUILD_MESSAGES (1<<9) |
// MESSAGE_CONTENT (1<<15) = 33281, the fixed intent set this bridge needs.
const intentsGuildsAndMessages = 33281

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int            `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	ResumeURL string `json:"resume_gateway_url"`
}

type gatewayMessageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// Handler is called for every well-formed, non-bot MESSAGE_CREATE event the
// gateway stream receives, except messages whose content starts with "!" or
// "/" and messages that models.NewMessage rejects; those are dropped.
type Handler func(ctx context.Context, sess *Session, msg models.Message)

// GatewayClient owns one websocket connection's full lifecycle: HELLO,
// IDENTIFY/RESUME, the heartbeat loop, and reconnect-with-backoff. One
// instance runs per session so each bot token keeps its own gateway
// connection, since gateway connections are scoped per-token.
//
// Implements the full HELLO/heartbeat/RESUME/reconnect state machine,
// narrowed to the single MESSAGE_CREATE dispatch path this bridge needs —
// presence/member events go unhandled since nothing here tracks identity.
type GatewayClient struct {
	sess    *Session
	handler Handler
	log     *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	sessionID     string
	resumeURL     string
	lastSeq       *int
	sessionStart  time.Time
}

func NewGatewayClient(sess *Session, handler Handler, log *slog.Logger) *GatewayClient {
	return &GatewayClient{sess: sess, handler: handler, log: log}
}

// Run connects and reconnects in a loop, with exponential backoff between
// attempts, until ctx is canceled. It never returns a non-nil error except
// via ctx.Err() on shutdown.
func (g *GatewayClient) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 60 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := g.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			g.log.Warn("source: gateway connection lost, reconnecting", "fingerprint", g.sess.Fingerprint, "error", err, "backoff", backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (g *GatewayClient) connectAndServe(ctx context.Context) error {
	target := gatewayURL
	g.mu.Lock()
	resuming := g.sessionID != "" && g.resumeURL != ""
	if resuming {
		target = g.resumeURL + "/?v=10&encoding=json"
	}
	g.mu.Unlock()

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("source: parsing gateway url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("source: dialing gateway: %w", err)
	}
	defer conn.Close()

	g.mu.Lock()
	g.conn = conn
	g.sessionStart = time.Now()
	g.mu.Unlock()

	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("source: reading hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("source: expected hello op, got %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return fmt.Errorf("source: decoding hello: %w", err)
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()

	ackCh := make(chan struct{}, 1)
	go g.heartbeatLoop(heartbeatCtx, time.Duration(hd.HeartbeatInterval)*time.Millisecond, ackCh)

	if resuming {
		if err := g.sendResume(conn); err != nil {
			return err
		}
	} else {
		if err := g.sendIdentify(conn); err != nil {
			return err
		}
	}

	// Watchdog: recycle the session once it has been open for an hour by
	// forcing a fresh reconnect.
	watchdog := time.NewTimer(time.Hour)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watchdog.C:
			return fmt.Errorf("source: session watchdog expired, forcing reconnect")
		default:
		}

		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return fmt.Errorf("source: reading gateway frame: %w", err)
		}
		if payload.S != nil {
			g.mu.Lock()
			g.lastSeq = payload.S
			g.mu.Unlock()
		}

		switch payload.Op {
		case opHeartbeatACK:
			select {
			case ackCh <- struct{}{}:
			default:
			}
		case opReconnect:
			return fmt.Errorf("source: gateway requested reconnect")
		case opInvalidSession:
			g.mu.Lock()
			g.sessionID = ""
			g.resumeURL = ""
			g.mu.Unlock()
			return fmt.Errorf("source: invalid session")
		case opDispatch:
			g.handleDispatch(ctx, payload)
		}
	}
}

func (g *GatewayClient) handleDispatch(ctx context.Context, payload gatewayPayload) {
	switch payload.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(payload.D, &ready); err == nil {
			g.mu.Lock()
			g.sessionID = ready.SessionID
			g.resumeURL = ready.ResumeURL
			g.mu.Unlock()
		}
	case "MESSAGE_CREATE":
		var m gatewayMessageCreate
		if err := json.Unmarshal(payload.D, &m); err != nil {
			g.log.Debug("source: discarding malformed MESSAGE_CREATE", "error", err)
			return
		}
		if m.Author.Bot {
			return
		}
		if _, ok := stripMentionNoise(m.Content); !ok {
			return
		}

		ts, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			ts = time.Now().UTC()
		}

		msg, err := models.NewMessage(m.Content, ts, "", "", m.Author.Username,
			models.WithIDs(m.ID, m.ChannelID, m.GuildID))
		if err != nil {
			return
		}
		if g.handler != nil {
			g.handler(ctx, g.sess, msg)
		}
	}
}

func (g *GatewayClient) heartbeatLoop(ctx context.Context, interval time.Duration, ack <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			conn := g.conn
			seq := g.lastSeq
			g.mu.Unlock()
			if conn == nil {
				return
			}
			var d []byte
			if seq != nil {
				d, _ = json.Marshal(*seq)
			} else {
				d = []byte("null")
			}
			if err := conn.WriteJSON(gatewayPayload{Op: opHeartbeat, D: d}); err != nil {
				return
			}
			select {
			case <-ack:
			case <-time.After(interval / 2):
				g.log.Warn("source: heartbeat ack timed out", "fingerprint", g.sess.Fingerprint)
			case <-ctx.Done():
				return
			}
		}
	}
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

func (g *GatewayClient) sendIdentify(conn *websocket.Conn) error {
	d, err := json.Marshal(identifyData{
		Token:   g.sess.Token,
		Intents: intentsGuildsAndMessages,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "discord-telegram-bridge",
			Device:  "discord-telegram-bridge",
		},
	})
	if err != nil {
		return err
	}
	return conn.WriteJSON(gatewayPayload{Op: opIdentify, D: d})
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
}

func (g *GatewayClient) sendResume(conn *websocket.Conn) error {
	g.mu.Lock()
	seq := 0
	if g.lastSeq != nil {
		seq = *g.lastSeq
	}
	d, err := json.Marshal(resumeData{Token: g.sess.Token, SessionID: g.sessionID, Seq: seq})
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return conn.WriteJSON(gatewayPayload{Op: opResume, D: d})
}
