package mykafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

type Message = kafka.Message

// Reader is the subset of *kafka.Reader the consumers depend on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, groupID, topic string) (*kafka.Reader, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
	}), nil
}
