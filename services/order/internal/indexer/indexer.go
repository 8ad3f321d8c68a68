// Package indexer keeps the Elasticsearch orders index in step with the
// order events relayed from the outbox.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/checkout/pkg/mykafka"
	"github.com/Skotchmaster/checkout/pkg/outbox"
	"github.com/Skotchmaster/checkout/services/order/internal/events"
)

const DefaultIndex = "orders"

// ErrUndecodable marks messages that will never index; they are committed
// and skipped.
var ErrUndecodable = errors.New("undecodable order event")

type Indexer struct {
	ES     *elasticsearch.Client
	Reader mykafka.Reader
	Index  string
	Logger *slog.Logger

	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func New(es *elasticsearch.Client, reader mykafka.Reader, index string, logger *slog.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		ES:          es,
		Reader:      reader,
		Index:       index,
		Logger:      logger.With("component", "order.indexer"),
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
	}
}

// Run consumes until ctx is cancelled. A message is committed only after it
// is indexed or found undecodable, so index failures are retried in place.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		msg, err := ix.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.Logger.Error("fetch_message_failed", "error", err)
			if !ix.sleep(ctx, ix.BaseBackoff) {
				return nil
			}
			continue
		}

		if !ix.process(ctx, msg) {
			return nil
		}

		if err := ix.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.Logger.Error("commit_failed", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		}
	}
}

func (ix *Indexer) process(ctx context.Context, msg mykafka.Message) bool {
	backoff := ix.BaseBackoff
	for attempt := 1; ; attempt++ {
		err := ix.Handle(ctx, msg.Value)
		if err == nil {
			return true
		}
		l := ix.Logger.With("offset", msg.Offset, "partition", msg.Partition, "key", string(msg.Key), "error", err)
		if errors.Is(err, ErrUndecodable) {
			l.Warn("order_event_skipped")
			return true
		}

		l.Warn("index_failed", "attempt", attempt)
		if !ix.sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, ix.MaxBackoff)
	}
}

func (ix *Indexer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Handle decodes one relayed envelope and upserts the order document keyed
// by order id. Kinds outside order.* are ignored.
func (ix *Indexer) Handle(ctx context.Context, value []byte) error {
	var env outbox.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrUndecodable, err)
	}
	if !strings.HasPrefix(env.Kind, "order.") {
		return nil
	}

	var snap events.OrderSnapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrUndecodable, env.Kind, err)
	}
	if snap.OrderID.String() != env.AggregateID.String() {
		return fmt.Errorf("%w: payload order %s under aggregate %s", ErrUndecodable, snap.OrderID, env.AggregateID)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(documentFrom(env.Kind, env.OccurredAt, snap)); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := ix.ES.Index(ix.Index, &buf,
		ix.ES.Index.WithContext(ctx),
		ix.ES.Index.WithDocumentID(snap.OrderID.String()),
	)
	if err != nil {
		return fmt.Errorf("index order %s: %w", snap.OrderID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("index order %s: %s: %s", snap.OrderID, res.Status(), body)
	}
	return nil
}
