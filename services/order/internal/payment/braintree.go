package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

type BraintreeConfig struct {
	Environment string
	MerchantID  string
	PublicKey   string
	PrivateKey  string
}

type BraintreeGateway struct {
	bt *braintree.Braintree
}

func NewBraintreeGateway(cfg BraintreeConfig) *BraintreeGateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}
	return &BraintreeGateway{bt: braintree.New(env, cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey)}
}

func (g *BraintreeGateway) Retrieve(ctx context.Context, reference string) (Payment, error) {
	tx, err := g.bt.Transaction().Find(ctx, reference)
	if err != nil {
		var se interface{ StatusCode() int }
		if errors.As(err, &se) && se.StatusCode() == http.StatusNotFound {
			return Payment{}, fmt.Errorf("braintree transaction %s: %w", reference, ErrNotFound)
		}
		return Payment{}, fmt.Errorf("braintree find %s: %w", reference, err)
	}

	p := Payment{
		Reference: tx.Id,
		OrderID:   tx.OrderId,
		Status:    MapBraintreeStatus(tx.Status),
	}
	if tx.Amount != nil {
		p.Amount = decimal.New(tx.Amount.Unscaled, -int32(tx.Amount.Scale))
	}
	return p, nil
}

func MapBraintreeStatus(s braintree.TransactionStatus) Status {
	switch s {
	case braintree.TransactionStatusAuthorized,
		braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettled,
		braintree.TransactionStatusSettlementPending:
		return StatusSucceeded
	case braintree.TransactionStatusAuthorizing:
		return StatusPending
	default:
		return StatusFailed
	}
}
