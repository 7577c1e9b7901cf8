// Package mqtt publishes conversation lifecycle events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
)

const (
	defaultTopicPrefix = "voiceagent"
	defaultQoS         = byte(1)
	reconnectDelay     = 5 * time.Second
)

// ErrNotConnected is returned when publishing before the broker connection is up
var ErrNotConnected = errors.New("mqtt client not connected")

// Config holds configuration for the MQTT publisher
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher implements EventPublisher over MQTT
type Publisher struct {
	client      paho.Client
	topicPrefix string
	connected   atomic.Bool
	stop        chan struct{}
	logger      *zap.Logger
}

var _ repositories.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher and connects to the broker in the background
func NewPublisher(config Config, logger *zap.Logger) (*Publisher, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	broker := config.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "voiceagent-server"
		logger.Info("Using default MQTT client ID", zap.String("clientID", clientID))
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetMaxReconnectInterval(10 * time.Second)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		if config.Password != "" {
			opts.SetPassword(config.Password)
		}
	}

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(client paho.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", broker))
	})

	p := newPublisher(paho.NewClient(opts), config.TopicPrefix, logger)
	go p.connect()
	return p, nil
}

func newPublisher(client paho.Client, topicPrefix string, logger *zap.Logger) *Publisher {
	if topicPrefix == "" {
		topicPrefix = defaultTopicPrefix
	}
	return &Publisher{
		client:      client,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		stop:        make(chan struct{}),
		logger:      logger,
	}
}

// connect retries until the first connection succeeds; paho handles
// reconnects after that
func (p *Publisher) connect() {
	for {
		token := p.client.Connect()
		if token.Wait() && token.Error() == nil {
			p.connected.Store(true)
			return
		}

		p.logger.Warn("Failed to connect to MQTT broker, retrying",
			zap.Error(token.Error()),
			zap.Duration("retryIn", reconnectDelay))

		select {
		case <-time.After(reconnectDelay):
		case <-p.stop:
			return
		}
	}
}

// Topic returns the topic an event is published on. Events without a
// conversation go to the agents topic.
func (p *Publisher) Topic(event repositories.ConversationEvent) string {
	if event.ConversationID == "" {
		return p.topicPrefix + "/agents/events"
	}
	return fmt.Sprintf("%s/conversations/%s/events", p.topicPrefix, event.ConversationID)
}

// IsConnected reports whether the broker connection is open
func (p *Publisher) IsConnected() bool {
	return p.connected.Load() && p.client.IsConnectionOpen()
}

// Publish implements repositories.EventPublisher
func (p *Publisher) Publish(ctx context.Context, event repositories.ConversationEvent) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := p.client.Publish(p.Topic(event), defaultQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to publish event: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published conversation event",
		zap.String("type", event.Type),
		zap.String("conversationID", event.ConversationID))
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	close(p.stop)
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.connected.Store(false)
	p.logger.Info("Disconnected from MQTT broker")
}

// NoopPublisher drops every event
type NoopPublisher struct{}

var _ repositories.EventPublisher = NoopPublisher{}

// Publish implements repositories.EventPublisher
func (NoopPublisher) Publish(ctx context.Context, event repositories.ConversationEvent) error {
	return nil
}
