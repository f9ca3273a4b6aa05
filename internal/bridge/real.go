package bridge

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher talks to an MQTT broker through paho.
type RealPublisher struct {
	client  paho.Client
	topics  Topics
	handler *Handler
}

// Connect dials the broker and subscribes to the set topics. Subscriptions are
// re-established by the OnConnect hook after every reconnect.
func Connect(cfg config.MQTT, controller Controller) (*RealPublisher, error) {
	p := &RealPublisher{
		topics:  NewTopics(cfg.TopicPrefix),
		handler: NewHandler(controller),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.topics.Availability, "offline", 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Broker, err)
	}

	log.Info().Str("broker", cfg.Broker).Str("state_topic", p.topics.State).Msg("MQTT bridge connected")
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	c.Publish(p.topics.Availability, 1, true, "online")

	subs := map[string]func([]byte) error{
		p.topics.SetMode:  p.handler.HandleMode,
		p.topics.SetRange: p.handler.HandleRange,
	}
	for topic, handle := range subs {
		handle := handle
		token := c.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			if err := handle(msg.Payload()); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic()).Msg("MQTT request rejected")
			}
		})
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("MQTT subscribe failed")
		}
	}
}

// PublishStatus sends the retained state payload.
func (p *RealPublisher) PublishStatus(s coordinator.Status) error {
	payload, err := FormatStatus(s)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}

	// QoS 1, retained so new subscribers see the latest state
	token := p.client.Publish(p.topics.State, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish status: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// Close marks the bridge offline and disconnects.
func (p *RealPublisher) Close() error {
	token := p.client.Publish(p.topics.Availability, 1, true, "offline")
	token.WaitTimeout(publishTimeout)
	p.client.Disconnect(1000)
	log.Info().Msg("MQTT bridge disconnected")
	return nil
}
