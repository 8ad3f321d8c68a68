package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	pkgcfg "github.com/Skotchmaster/checkout/pkg/config"
	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/pkg/mykafka"

	ordercfg "github.com/Skotchmaster/checkout/services/order/internal/config"
	"github.com/Skotchmaster/checkout/services/order/internal/indexer"
)

func main() {
	if err := godotenv.Load("services/order/.env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := ordercfg.Load()
	pkgcfg.MustNonEmpty(cfg.ElasticURL, "ES_URL")

	logger := logging.New(cfg.LogLevel).With("service", "order-indexer")
	slog.SetDefault(logger)

	esCtx, esCancel := context.WithTimeout(context.Background(), 10*time.Second)
	es, err := indexer.NewClient(esCtx, indexer.ClientConfig{URL: cfg.ElasticURL, Username: cfg.ElasticUser, Password: cfg.ElasticPassword}, logger)
	esCancel()
	if err != nil {
		log.Fatalf("elasticsearch: %v", err)
	}

	reader, err := mykafka.NewReader(cfg.KafkaBrokers, cfg.IndexerGroup, cfg.OrderTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ix := indexer.New(es, reader, cfg.OrdersIndex, logger)
	logger.Info("indexer started", "topic", cfg.OrderTopic, "group", cfg.IndexerGroup, "index", ix.Index)
	if err := ix.Run(ctx); err != nil {
		log.Fatalf("indexer: %v", err)
	}
	log.Println("indexer stopped")
}
