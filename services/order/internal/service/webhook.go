package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

type WebhookResult struct {
	Duplicate bool
	Ignored   bool
	// Rejected is set when the order's state refused the event, e.g. a
	// payment for a cancelled order. The event still counts as processed.
	Rejected bool
}

// HandleWebhook authenticates the raw body before reading it. Redelivered
// events are dropped by the dedup gate and the webhook_events table; finalize
// stays idempotent on its own.
func (s *OrderService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if err := webhook.Verify(s.WebhookSecret, body, signature); err != nil {
		return nil, err
	}

	var p transport.WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrValidation)
	}
	if strings.TrimSpace(p.ID) == "" || p.Type == "" {
		return nil, fmt.Errorf("%w: id and type required", ErrValidation)
	}

	l := logging.FromContext(ctx).With("event_id", p.ID, "event_type", p.Type)

	seen, err := s.Repo.WebhookProcessed(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		return &WebhookResult{Duplicate: true}, nil
	}

	if s.Dedup != nil {
		ok, err := s.Dedup.Acquire(ctx, p.ID)
		switch {
		case err != nil:
			l.Warn("webhook_dedup_unavailable", "error", err)
		case !ok:
			return &WebhookResult{Duplicate: true}, nil
		}
	}

	res, err := s.dispatchWebhook(ctx, p)
	if err == nil {
		err = s.Repo.RecordWebhook(ctx, &models.WebhookEvent{EventID: p.ID, EventType: p.Type, ProcessedAt: s.now()})
	}
	if err != nil {
		if s.Dedup != nil {
			if rerr := s.Dedup.Release(context.WithoutCancel(ctx), p.ID); rerr != nil {
				l.Warn("webhook_dedup_release_failed", "error", rerr)
			}
		}
		return nil, err
	}
	return res, nil
}

func (s *OrderService) dispatchWebhook(ctx context.Context, p transport.WebhookPayload) (*WebhookResult, error) {
	if p.Type != EventPaymentSucceeded && p.Type != EventPaymentFailed {
		return &WebhookResult{Ignored: true}, nil
	}

	orderID, err := uuid.Parse(p.Data.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: data.order_id must be a uuid", ErrValidation)
	}

	if p.Type == EventPaymentSucceeded {
		_, err = s.FinalizePaidOrder(ctx, orderID, p.Data.PaymentReference)
	} else {
		_, err = s.MarkPaymentFailed(ctx, orderID, p.Data.PaymentReference)
	}
	if errors.Is(err, ErrInvalidTransition) {
		logging.FromContext(ctx).Warn("webhook_rejected",
			"event_id", p.ID, "event_type", p.Type, "order_id", orderID, "error", err)
		return &WebhookResult{Rejected: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &WebhookResult{}, nil
}
