package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	pkgdb "github.com/Skotchmaster/checkout/pkg/db"
	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/pkg/mykafka"
	"github.com/Skotchmaster/checkout/pkg/outbox"

	ordercfg "github.com/Skotchmaster/checkout/services/order/internal/config"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
)

func main() {
	if err := godotenv.Load("services/order/.env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := ordercfg.Load()

	logger := logging.New(cfg.LogLevel).With("service", "order-relay")
	slog.SetDefault(logger)

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(openCtx, cfg.DatabaseURL)
	openCancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer func() { _ = pkgdb.Close(db) }()

	if err := repo.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	producer, err := mykafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := outbox.NewRelay(db, outbox.KafkaPublisher{
		Producer: producer,
		Route: func(kind string) string {
			if strings.HasPrefix(kind, "order.") {
				return cfg.OrderTopic
			}
			return kind
		},
	}, cfg.Relay, logger)

	if pkgdb.IsPostgres(db) {
		wakeups, err := outbox.Listen(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("outbox listen unavailable, polling only", "error", err)
		} else {
			relay.Wakeups = wakeups
		}
	}

	logger.Info("relay started", "topic", cfg.OrderTopic, "poll_interval", cfg.Relay.PollInterval)
	if err := relay.Run(ctx); err != nil {
		log.Fatalf("relay: %v", err)
	}
	log.Println("relay stopped")
}
