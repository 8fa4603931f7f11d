package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/playtower/chipbank/pkg/logger"
)

// KafkaPublisher writes transfer events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher configures a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// PublishTransferCompleted implements Publisher. Messages are keyed by
// transfer id so replays land in the same partition.
func (p *KafkaPublisher) PublishTransferCompleted(ctx context.Context, event TransferCompleted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transfer event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransferID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("publish transfer event %s: %w", event.TransferID, err)
	}
	return nil
}

// Name implements system.Service.
func (p *KafkaPublisher) Name() string { return "transfer-events" }

// Start implements system.Service. The writer connects lazily, so nothing to
// do here.
func (p *KafkaPublisher) Start(context.Context) error {
	p.log.WithField("topic", p.writer.Topic).Info("transfer event publisher started")
	return nil
}

// Stop implements system.Service.
func (p *KafkaPublisher) Stop(context.Context) error {
	return p.writer.Close()
}
