// Package payment looks up transactions at the payment provider. The
// provider's answer is authoritative for whether an order was paid.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("payment not found")

type Payment struct {
	Reference string
	OrderID   string
	Status    Status
	Amount    decimal.Decimal
}

type Gateway interface {
	Retrieve(ctx context.Context, reference string) (Payment, error)
}
