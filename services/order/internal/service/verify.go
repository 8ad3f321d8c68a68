package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/payment"
)

// VerifyPayment confirms a client-reported payment with the provider before
// finalizing. The provider's status, order id and amount must all agree with
// the order.
func (s *OrderService) VerifyPayment(ctx context.Context, userID, orderID uuid.UUID, reference string) (*FinalizeResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: payment_reference required", ErrValidation)
	}

	order, err := s.Repo.FindOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.PaymentStatus == models.PaymentPaid {
		return &FinalizeResult{Order: order, AlreadyProcessed: true}, nil
	}

	if s.Gateway == nil {
		return nil, errors.New("payment gateway not configured")
	}
	p, err := s.Gateway.Retrieve(ctx, reference)
	if errors.Is(err, payment.ErrNotFound) {
		logging.FromContext(ctx).Warn("payment_lookup_not_found",
			"order_id", orderID, "payment_reference", reference, "error", err)
		return nil, fmt.Errorf("%w: payment %s not found", ErrPaymentNotConfirmed, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve payment: %w", err)
	}

	if p.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrPaymentNotConfirmed, reference, p.Status)
	}
	if p.OrderID != order.ID.String() && p.OrderID != order.OrderNumber {
		return nil, fmt.Errorf("%w: payment %s belongs to order %q", ErrPaymentNotConfirmed, reference, p.OrderID)
	}
	if !money.Round(p.Amount).Equal(order.AmountDue) {
		return nil, fmt.Errorf("%w: paid %s, due %s", ErrPaymentNotConfirmed, money.Fixed(p.Amount), money.Fixed(order.AmountDue))
	}

	return s.FinalizePaidOrder(ctx, orderID, reference)
}
