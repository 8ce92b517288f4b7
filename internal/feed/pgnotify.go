package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"vendorrisk/internal/config"
)

// StartPGNotify listens on the Postgres channel the record triggers notify
// and reconnects with backoff when the connection drops.
func StartPGNotify(ctx context.Context, cfg *config.Manager, out chan<- ChangeEvent, logger *slog.Logger) {
	current := cfg.Get().Feed.Postgres
	if !current.Enabled {
		if logger != nil {
			logger.Info("postgres notify feed disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("postgres notify feed enabled", "channel", current.Channel)
	}
	go func() {
		backoff := newRetry(500*time.Millisecond, 30*time.Second)
		for {
			err := listen(ctx, current, out, backoff, logger)
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("postgres notify connection lost", "err", err, "retry_in", backoff.next)
			}
			if !backoff.wait(ctx) {
				return
			}
		}
	}()
}

// listen holds one connection until it fails. The retry delay is reset once
// LISTEN succeeds.
func listen(ctx context.Context, cfg config.PGNotifyConfig, out chan<- ChangeEvent, backoff *retry, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{cfg.Channel}.Sanitize()); err != nil {
		return err
	}
	backoff.reset()
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		events, err := Decode([]byte(n.Payload))
		if err != nil {
			if logger != nil {
				logger.Warn("postgres notify decode error", "err", err, "channel", n.Channel)
			}
			continue
		}
		deliver(ctx, out, events, "postgres", logger)
	}
}
