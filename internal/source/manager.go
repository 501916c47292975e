package source

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Manager fans one GatewayClient out per live session in the pool and runs
// them concurrently — one gateway connection per token. Uses
// golang.org/x/sync/errgroup instead of a hand-rolled WaitGroup plus error
// channel, so one session's fatal error cancels the rest cleanly.
type Manager struct {
	pool    *Pool
	handler Handler
	log     *slog.Logger
}

func NewManager(pool *Pool, handler Handler, log *slog.Logger) *Manager {
	return &Manager{pool: pool, handler: handler, log: log}
}

// Run blocks until ctx is canceled or every gateway client's Run call
// returns a non-context error.
func (m *Manager) Run(ctx context.Context) error {
	sessions := m.pool.All()
	if len(sessions) == 0 {
		return ErrNoSessions
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		client := NewGatewayClient(sess, m.handler, m.log)
		g.Go(func() error {
			return client.Run(gctx)
		})
	}
	return g.Wait()
}
