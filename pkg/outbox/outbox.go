// Package outbox records side effects in the same transaction as the state
// change that causes them and relays them to the event bus afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is the PostgreSQL NOTIFY channel the relay listens on.
const Channel = "outbox_events"

type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"                                  json:"id"`
	Kind          string          `gorm:"size:64;not null;index"                                json:"kind"`
	AggregateID   uuid.UUID       `gorm:"type:uuid;not null;index"                              json:"aggregate_id"`
	Payload       json.RawMessage `gorm:"not null"                                              json:"payload"`
	Status        Status          `gorm:"size:16;not null;index:idx_outbox_due,priority:1"      json:"status"`
	Attempts      int             `gorm:"not null"                                              json:"attempts"`
	LastError     string          `gorm:"size:1024"                                             json:"last_error,omitempty"`
	NextAttemptAt time.Time       `gorm:"not null;index:idx_outbox_due,priority:2"              json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	DispatchedAt  *time.Time      `json:"dispatched_at,omitempty"`
}

func (Event) TableName() string {
	return "outbox_events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Envelope is the wire form published for every event.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

func (e *Event) Envelope() Envelope {
	return Envelope{
		ID:          e.ID,
		Kind:        e.Kind,
		AggregateID: e.AggregateID,
		OccurredAt:  e.CreatedAt,
		Payload:     e.Payload,
	}
}

// Enqueue stores a pending event using tx. The row commits or rolls back
// with the caller's transaction.
func Enqueue(ctx context.Context, tx *gorm.DB, kind string, aggregateID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal %s payload: %w", kind, err)
	}

	ev := &Event{
		Kind:          kind,
		AggregateID:   aggregateID,
		Payload:       data,
		Status:        StatusPending,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("outbox: insert %s: %w", kind, err)
	}

	if tx.Dialector.Name() == "postgres" {
		if err := tx.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", Channel, kind).Error; err != nil {
			return fmt.Errorf("outbox: notify: %w", err)
		}
	}
	return nil
}
