package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/dqmon/internal/alert"
)

// ErrKafkaNotConfigured is returned when brokers or topic are missing.
var ErrKafkaNotConfigured = errors.New("kafka requires brokers and a topic")

// KafkaConfig configures the Kafka notifier.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes alert events to a topic. Messages are keyed by alert key
// so every alert about one metric lands in the same partition.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka creates a Kafka notifier. Connections are made lazily on the
// first write.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, ErrKafkaNotConfigured
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &Kafka{writer: w, topic: cfg.Topic}, nil
}

// Name implements Notifier.
func (k *Kafka) Name() string { return "kafka" }

// Send implements Notifier.
func (k *Kafka) Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error {
	return k.publish(ctx, []byte(a.Key()), a.Severity.String(), alertEvent(a, channel, mentions))
}

// SendSummary implements Notifier.
func (k *Kafka) SendSummary(ctx context.Context, s alert.Summary, channel string) error {
	return k.publish(ctx, []byte(EventSummary), alert.Info.String(), summaryEvent(s, channel))
}

func (k *Kafka) publish(ctx context.Context, key []byte, severity string, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return deliveryError(k.Name(), fmt.Errorf("failed to encode event: %w", err))
	}
	msg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  ev.SentAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
			{Key: "severity", Value: []byte(severity)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return deliveryError(k.Name(), fmt.Errorf("failed to write to topic %s: %w", k.topic, err))
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
