package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
)

// MQTTConfig configures the broker subscription.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string // may contain one + wildcard for the entity id, e.g. tourists/+/location
	QoS      byte
	Username string
	Password string
}

// MQTTSource receives device telemetry from an MQTT broker. When the topic
// has a + wildcard, the matched segment fills a missing entity_id.
type MQTTSource struct {
	config MQTTConfig
	logger *zap.Logger
	client mqtt.Client

	entitySegment int // index of + in the topic, -1 if none

	mu     sync.RWMutex // guards out against close during delivery
	closed bool
	out    chan *domain.MovementSample
}

// NewMQTTSource creates an MQTT source. The connection is made in Subscribe.
func NewMQTTSource(cfg MQTTConfig, logger *zap.Logger) *MQTTSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	return &MQTTSource{
		config:        cfg,
		logger:        logger.With(zap.String("source", "mqtt"), zap.String("topic", cfg.Topic)),
		entitySegment: wildcardSegment(cfg.Topic),
		out:           make(chan *domain.MovementSample, 256),
	}
}

// Name implements Source.
func (s *MQTTSource) Name() string { return "mqtt" }

// Subscribe connects, subscribes and streams samples until ctx is cancelled.
// paho handles reconnects; the subscription is restored on each connect.
func (s *MQTTSource) Subscribe(ctx context.Context) (<-chan *domain.MovementSample, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
	}
	if s.config.Password != "" {
		opts.SetPassword(s.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.config.Topic, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.handle(ctx, msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			s.logger.Error("subscribe failed", zap.Error(token.Error()))
			return
		}
		s.logger.Info("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("connection lost", zap.Error(err))
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	go func() {
		<-ctx.Done()
		s.client.Disconnect(250)
		s.close()
	}()

	return s.out, nil
}

// handle decodes one message. Called from paho's router goroutine.
func (s *MQTTSource) handle(ctx context.Context, topic string, payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || ctx.Err() != nil {
		return
	}

	samples, err := DecodeSamples(payload)
	if err != nil {
		s.logger.Warn("undecodable message", zap.String("message_topic", topic), zap.Error(err))
		return
	}

	entity := s.entityFromTopic(topic)
	for _, sample := range samples {
		if sample.EntityID == "" {
			sample.EntityID = entity
		}
		select {
		case s.out <- sample:
		case <-ctx.Done():
			return
		}
	}
}

func (s *MQTTSource) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *MQTTSource) entityFromTopic(topic string) string {
	if s.entitySegment < 0 {
		return ""
	}
	parts := strings.Split(topic, "/")
	if s.entitySegment >= len(parts) {
		return ""
	}
	return parts[s.entitySegment]
}

func wildcardSegment(topic string) int {
	for i, p := range strings.Split(topic, "/") {
		if p == "+" {
			return i
		}
	}
	return -1
}
