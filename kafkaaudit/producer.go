// Package kafkaaudit publishes claims mutation events to Kafka.
package kafkaaudit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the audit topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// Producer implements claimsx.Auditor.
type Producer struct {
	writer MessageWriter
	logger *zap.Logger
}

// New builds a Producer writing to cfg.Topic.
func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("kafka brokers and topic are required"))
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return NewWithWriter(writer, logger), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, logger: logger.Named("kafkaaudit")}
}

// Record implements claimsx.Auditor. Events for one identifier share a
// partition so consumers see them in order.
func (p *Producer) Record(ctx context.Context, event claimsx.ClaimsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Identifier),
		Value: payload,
		Time:  event.At,
	})
	if err != nil {
		p.logger.Error("failed to write audit event", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

var _ claimsx.Auditor = (*Producer)(nil)
