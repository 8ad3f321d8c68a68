package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// KafkaPublisher routes every envelope to a topic chosen by its kind and
// keys it by aggregate id, so events of one order stay ordered.
type KafkaPublisher struct {
	Producer EventPublisher
	Route    func(kind string) string
}

func (p KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	return p.Producer.PublishEvent(ctx, p.Route(env.Kind), env.AggregateID.String(), env)
}

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

type Relay struct {
	DB        *gorm.DB
	Publisher Publisher
	Cfg       RelayConfig
	Logger    *slog.Logger

	// Wakeups, when set, triggers a dispatch before the next poll tick.
	Wakeups <-chan struct{}

	now func() time.Time
}

func NewRelay(db *gorm.DB, pub Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		DB:        db,
		Publisher: pub,
		Cfg:       cfg.withDefaults(),
		Logger:    logger.With("component", "outbox.relay"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches due events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-r.Wakeups:
			if !ok {
				r.Wakeups = nil
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.DispatchBatch(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.Logger.Error("dispatch_batch_failed", "error", err)
			}
			return
		}
		if n < r.Cfg.BatchSize {
			return
		}
	}
}

// DispatchBatch publishes up to BatchSize due events and returns how many
// it handled, successfully or not.
func (r *Relay) DispatchBatch(ctx context.Context) (int, error) {
	handled := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []Event
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", StatusPending, r.now()).
			Order("created_at ASC").Order("id ASC").
			Limit(r.Cfg.BatchSize).
			Find(&events).Error
		if err != nil {
			return err
		}

		for i := range events {
			ev := &events[i]
			if pubErr := r.Publisher.Publish(ctx, ev.Envelope()); pubErr != nil {
				if err := r.markFailedAttempt(tx, ev, pubErr); err != nil {
					return err
				}
			} else if err := r.markDispatched(tx, ev); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *Relay) markDispatched(tx *gorm.DB, ev *Event) error {
	now := r.now()
	return tx.Model(&Event{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":        StatusDispatched,
		"attempts":      ev.Attempts + 1,
		"dispatched_at": now,
		"last_error":    "",
	}).Error
}

func (r *Relay) markFailedAttempt(tx *gorm.DB, ev *Event, cause error) error {
	attempts := ev.Attempts + 1
	status := StatusPending
	if attempts >= r.Cfg.MaxAttempts {
		status = StatusFailed
	}

	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	l := r.Logger.With("event_id", ev.ID, "kind", ev.Kind, "attempts", attempts, "error", cause)
	if status == StatusFailed {
		l.Error("outbox_event_gave_up")
	} else {
		l.Warn("outbox_publish_failed")
	}

	return tx.Model(&Event{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":          status,
		"attempts":        attempts,
		"last_error":      msg,
		"next_attempt_at": r.now().Add(r.backoff(attempts)),
	}).Error
}

func (r *Relay) backoff(attempts int) time.Duration {
	d := r.Cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.Cfg.MaxBackoff {
			return r.Cfg.MaxBackoff
		}
	}
	return d
}
