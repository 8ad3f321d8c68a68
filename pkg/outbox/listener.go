package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listen subscribes to Channel with lib/pq and turns notifications into
// relay wakeups. The returned channel closes when ctx is done.
func Listen(ctx context.Context, dsn string, logger *slog.Logger) (<-chan struct{}, error) {
	l := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("outbox_listener_event", "event", int(ev), "error", err)
		}
	})
	if err := l.Listen(Channel); err != nil {
		_ = l.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer l.Close()

		keepalive := time.NewTicker(90 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.Notify:
				// a nil notification follows a reconnect; events may have
				// been missed, so it wakes the relay too
				select {
				case out <- struct{}{}:
				default:
				}
			case <-keepalive.C:
				if err := l.Ping(); err != nil {
					logger.Warn("outbox_listener_ping_failed", "error", err)
				}
			}
		}
	}()
	return out, nil
}
