package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTSource subscribes to a broker topic carrying the sample envelope,
// one JSON message per sample. Trackers (or the simfeed publisher)
// publish; the daemon consumes.
type MQTTSource struct {
	broker string
	topic  string
	logger *slog.Logger
	client mqtt.Client
}

// NewMQTTSource creates a source reading from topic on broker.
func NewMQTTSource(broker, topic string, logger *slog.Logger) *MQTTSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSource{
		broker: broker,
		topic:  topic,
		logger: logger.With("component", "mqttfeed"),
	}
}

// Run connects, subscribes and blocks until ctx is done. Samples that
// fail to decode are logged and dropped; a bad message must not take
// down the feed.
func (m *MQTTSource) Run(ctx context.Context, sink Sink) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID("gazepatch-" + uuid.NewString()[:8]).
		SetAutoReconnect(true)

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("feed: mqtt connect %s: %w", m.broker, token.Error())
	}
	m.logger.Info("mqtt feed connected", "broker", m.broker, "topic", m.topic)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var sample Sample
		if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
			m.logger.Warn("sample dropped", "error", err)
			return
		}
		sink.HandleSample(sample)
	}
	if token := m.client.Subscribe(m.topic, 0, handler); token.Wait() && token.Error() != nil {
		m.client.Disconnect(250)
		return fmt.Errorf("feed: mqtt subscribe %s: %w", m.topic, token.Error())
	}

	<-ctx.Done()
	m.client.Unsubscribe(m.topic)
	m.client.Disconnect(250)
	return nil
}

// Close disconnects from the broker.
func (m *MQTTSource) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
