package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nao1215/dqmon/internal/alert"
)

// ErrMQTTNotConfigured is returned when broker or topic are missing.
var ErrMQTTNotConfigured = errors.New("mqtt requires a broker and a topic")

// MQTTConfig configures the MQTT notifier.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// publishFunc publishes payload to topic with QoS 1 and waits for the ack.
type publishFunc func(ctx context.Context, topic string, payload []byte) error

// MQTT publishes alert events under <topic>/<severity>, and digests under
// <topic>/summary.
type MQTT struct {
	publish    publishFunc
	disconnect func()
	topic      string
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, ErrMQTTNotConfigured
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dqmon"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	publish := func(ctx context.Context, topic string, payload []byte) error {
		token := client.Publish(topic, 1, false, payload)
		select {
		case <-token.Done():
			return token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &MQTT{
		publish:    publish,
		disconnect: func() { client.Disconnect(250) },
		topic:      cfg.Topic,
	}, nil
}

// Name implements Notifier.
func (m *MQTT) Name() string { return "mqtt" }

// Send implements Notifier.
func (m *MQTT) Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error {
	return m.send(ctx, m.topic+"/"+a.Severity.String(), alertEvent(a, channel, mentions))
}

// SendSummary implements Notifier.
func (m *MQTT) SendSummary(ctx context.Context, s alert.Summary, channel string) error {
	return m.send(ctx, m.topic+"/"+EventSummary, summaryEvent(s, channel))
}

func (m *MQTT) send(ctx context.Context, topic string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return deliveryError(m.Name(), fmt.Errorf("failed to encode event: %w", err))
	}
	if err := m.publish(ctx, topic, payload); err != nil {
		return deliveryError(m.Name(), fmt.Errorf("failed to publish to %s: %w", topic, err))
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.disconnect != nil {
		m.disconnect()
	}
	return nil
}
