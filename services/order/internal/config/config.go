package config

import (
	"os"
	"time"

	"github.com/shopspring/decimal"

	pkgcfg "github.com/Skotchmaster/checkout/pkg/config"
	"github.com/Skotchmaster/checkout/pkg/outbox"
	"github.com/Skotchmaster/checkout/services/order/internal/payment"
)

// Config covers the order API and the two workers built from this service:
// the outbox relay and the search indexer. Each main checks the values it
// needs.
type Config struct {
	pkgcfg.Config

	NumberPrefix  string
	ShippingCost  decimal.Decimal
	WebhookSecret []byte

	Braintree payment.BraintreeConfig

	CouponURL     string
	CouponTimeout time.Duration

	Relay outbox.RelayConfig

	OrderTopic   string
	IndexerGroup string
	OrdersIndex  string
}

func Load() Config {
	base := pkgcfg.Load()
	if base.ServiceName == "" {
		base.ServiceName = "order"
	}
	pkgcfg.MustNonEmpty(base.DatabaseURL, "DATABASE_URL")

	return Config{
		Config: base,

		NumberPrefix:  pkgcfg.EnvDefault("ORDER_NUMBER_PREFIX", "ORD"),
		ShippingCost:  envDecimal("SHIPPING_COST", decimal.Zero),
		WebhookSecret: []byte(os.Getenv("WEBHOOK_SECRET")),

		Braintree: payment.BraintreeConfig{
			Environment: pkgcfg.EnvDefault("BRAINTREE_ENV", "sandbox"),
			MerchantID:  os.Getenv("BRAINTREE_MERCHANT_ID"),
			PublicKey:   os.Getenv("BRAINTREE_PUBLIC_KEY"),
			PrivateKey:  os.Getenv("BRAINTREE_PRIVATE_KEY"),
		},

		CouponURL:     os.Getenv("COUPON_URL"),
		CouponTimeout: pkgcfg.EnvDurationDefault("COUPON_TIMEOUT", 3*time.Second),

		Relay: outbox.RelayConfig{
			BatchSize:    pkgcfg.EnvIntDefault("OUTBOX_BATCH_SIZE", 100),
			PollInterval: pkgcfg.EnvDurationDefault("OUTBOX_POLL_INTERVAL", 2*time.Second),
			MaxAttempts:  pkgcfg.EnvIntDefault("OUTBOX_MAX_ATTEMPTS", 10),
		},

		OrderTopic:   pkgcfg.EnvDefault("ORDER_TOPIC", "order_events"),
		IndexerGroup: pkgcfg.EnvDefault("INDEXER_GROUP", "order-indexer"),
		OrdersIndex:  pkgcfg.EnvDefault("ORDERS_INDEX", "orders"),
	}
}

func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}
