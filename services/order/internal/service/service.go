package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/outbox"
	"github.com/Skotchmaster/checkout/services/order/internal/coupon"
	"github.com/Skotchmaster/checkout/services/order/internal/payment"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

// Notifier records a notification inside the caller's transaction.
type Notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, kind string, orderID uuid.UUID, payload any) error
}

type OutboxNotifier struct{}

func (OutboxNotifier) Enqueue(ctx context.Context, tx *gorm.DB, kind string, orderID uuid.UUID, payload any) error {
	return outbox.Enqueue(ctx, tx, kind, orderID, payload)
}

type OrderService struct {
	Repo     *repo.GormRepo
	Notifier Notifier
	Coupons  coupon.Verifier
	Gateway  payment.Gateway

	// Dedup is optional; the webhook_events table stays the durable record.
	Dedup         webhook.Gate
	WebhookSecret []byte

	NumberPrefix string
	ShippingCost decimal.Decimal

	Now       func() time.Time
	NewNumber func(prefix string, now time.Time) (string, error)
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) notifier() Notifier {
	if s.Notifier == nil {
		return OutboxNotifier{}
	}
	return s.Notifier
}

func (s *OrderService) coupons() coupon.Verifier {
	if s.Coupons == nil {
		return coupon.RejectAll{}
	}
	return s.Coupons
}

// Actor is whoever asks for a state change. Admins may act on any order.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}
