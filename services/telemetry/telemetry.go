// Package telemetry bridges the internal bus to an MQTT broker:
// retained stack samples and service state are republished as JSON so
// external dashboards and recorders can consume them.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	paho "github.com/eclipse/paho.mqtt.golang"

	"cellstack-go/bus"
)

// Config selects the broker and topic layout.
type Config struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// mqttClient is the slice of paho.Client the publisher uses; narrowed
// for fakes.
type mqttClient interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher forwards bus messages to MQTT.
type Publisher struct {
	client mqttClient
	cfg    Config
}

// New builds a publisher for the configured broker.
func New(cfg Config) (*Publisher, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("telemetry: broker_url is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "cellstack"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "cellstack"
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)
	return &Publisher{client: paho.NewClient(opts), cfg: cfg}, nil
}

// Connect blocks until the broker session is up or fails.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect: %w", err)
	}
	return nil
}

// Close tears the broker session down.
func (p *Publisher) Close() { p.client.Disconnect(250) }

// Run forwards the given bus topics until ctx is cancelled. Messages
// are JSON-encoded; the bus retained flag carries over to MQTT.
func (p *Publisher) Run(ctx context.Context, b *bus.Bus, topics ...bus.Topic) error {
	subs := make([]*bus.Subscription, len(topics))
	for i, topic := range topics {
		subs[i] = b.Subscribe(topic)
		defer subs[i].Unsubscribe()
	}

	// Funnel all subscriptions into one loop.
	merged := make(chan *bus.Message, 16)
	for _, sub := range subs {
		go func(sub *bus.Subscription) {
			for msg := range sub.Channel() {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-merged:
			if err := p.forward(msg); err != nil {
				log.Printf("[telemetry] publish %s failed: %v", msg.Topic, err)
			}
		}
	}
}

func (p *Publisher) forward(msg *bus.Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.mqttTopic(msg.Topic), p.cfg.QoS, msg.Retained, payload)
	token.Wait()
	return token.Error()
}

func (p *Publisher) mqttTopic(topic bus.Topic) string {
	return p.cfg.TopicPrefix + "/" + topic.String()
}
