// Package poller pulls platform updates over long-poll when no webhook is
// configured.
package poller

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/dispatch"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/platform"
)

// Poller drives the long-poll loop, tracking the update offset and backing
// off on transport errors.
type Poller struct {
	client         platform.Client
	router         *dispatch.Router
	timeoutSeconds int
}

// New returns a Poller with the given long-poll timeout.
func New(client platform.Client, router *dispatch.Router, timeoutSeconds int) *Poller {
	return &Poller{client: client, router: router, timeoutSeconds: timeoutSeconds}
}

// Run polls until ctx is cancelled. Transport failures back off
// exponentially up to a minute and never terminate the loop.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Logger.Warn("long-poll failed",
				slog.Duration("backoff", backoff),
				slog.Any("error", err))
			if !sleepContext(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second

		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
			p.router.HandleUpdate(ctx, update)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
