package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v9"
)

type ClientConfig struct {
	URL      string
	Username string
	Password string
}

// NewClient connects to Elasticsearch and checks the cluster answers before
// returning.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*elasticsearch.Client, error) {
	logger.Info("connecting to elasticsearch", "url", cfg.URL, "user", cfg.Username)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("elasticsearch info: %s: %s", res.Status(), body)
	}

	logger.Info("connected to elasticsearch")
	return client, nil
}
