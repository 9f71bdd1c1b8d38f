package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/multistore/variants/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RelationEvent announces a change to a product's relation set. Downstream
// consumers (cache warmers, per-site search indexers) refresh anything
// derived from the listed SKUs.
type RelationEvent struct {
	EventType  string    `json:"event_type"` // relations.saved, relations.audited
	TenantID   string    `json:"tenant_id"`
	ProductSKU string    `json:"product_sku"`
	Touched    []string  `json:"touched_skus,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishRelationEvent publishes a relation event to Kafka
func (p *Producer) PublishRelationEvent(ctx context.Context, event *RelationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRelationEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.TenantID + "|" + event.ProductSKU),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish relation event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"product_sku": event.ProductSKU,
	}).Debug("Published relation event")

	return nil
}

// RelationsChanged publishes a relations.saved event. Publication is best
// effort: a broker outage must not fail the save that already committed, so
// errors are logged and swallowed here.
func (p *Producer) RelationsChanged(ctx context.Context, tenantID, productSKU string, touched []string) {
	event := &RelationEvent{
		EventType:  "relations.saved",
		TenantID:   tenantID,
		ProductSKU: productSKU,
		Touched:    touched,
	}
	if err := p.PublishRelationEvent(ctx, event); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"product_sku": productSKU,
		}).Error("Failed to publish relations changed event")
	}
}
