package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	pkgcfg "github.com/Skotchmaster/checkout/pkg/config"
	pkgdb "github.com/Skotchmaster/checkout/pkg/db"
	"github.com/Skotchmaster/checkout/pkg/logging"
	loggingmw "github.com/Skotchmaster/checkout/pkg/middleware/logging"

	ordercfg "github.com/Skotchmaster/checkout/services/order/internal/config"
	"github.com/Skotchmaster/checkout/services/order/internal/coupon"
	"github.com/Skotchmaster/checkout/services/order/internal/httpserver"
	"github.com/Skotchmaster/checkout/services/order/internal/indexer"
	"github.com/Skotchmaster/checkout/services/order/internal/payment"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
	"github.com/Skotchmaster/checkout/services/order/internal/service"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

func main() {
	if err := godotenv.Load("services/order/.env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := ordercfg.Load()
	pkgcfg.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")
	pkgcfg.MustNonEmptyBytes(cfg.WebhookSecret, "WEBHOOK_SECRET")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	if err := repo.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	svc := &service.OrderService{
		Repo:          &repo.GormRepo{DB: db},
		Notifier:      service.OutboxNotifier{},
		WebhookSecret: cfg.WebhookSecret,
		NumberPrefix:  cfg.NumberPrefix,
		ShippingCost:  cfg.ShippingCost,
	}

	if cfg.Braintree.MerchantID != "" {
		svc.Gateway = payment.NewBraintreeGateway(cfg.Braintree)
	} else {
		logger.Warn("braintree not configured, client payment verification disabled")
	}

	if cfg.CouponURL != "" {
		svc.Coupons = coupon.NewHTTPVerifier(cfg.CouponURL, cfg.CouponTimeout)
	} else {
		svc.Coupons = coupon.RejectAll{}
	}

	if cfg.RedisURL != "" {
		rdb, err := webhook.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		svc.Dedup = webhook.NewRedisGate(rdb)
	}

	admin := &httpserver.AdminHTTP{Svc: svc}
	if cfg.ElasticURL != "" {
		esCtx, esCancel := context.WithTimeout(context.Background(), 10*time.Second)
		es, err := indexer.NewClient(esCtx, indexer.ClientConfig{URL: cfg.ElasticURL, Username: cfg.ElasticUser, Password: cfg.ElasticPassword}, logger)
		esCancel()
		if err != nil {
			logger.Warn("order search disabled", "error", err)
		} else {
			admin.Search = &indexer.Searcher{ES: es, Index: cfg.OrdersIndex}
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		OrderHandler:   &httpserver.OrderHTTP{Svc: svc},
		AdminHandler:   admin,
		WebhookHandler: &httpserver.WebhookHTTP{Svc: svc},
		JWTSecret:      cfg.JWTAccessSecret,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("order listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = pkgdb.Close(db)

	log.Println("order stopped")
}
