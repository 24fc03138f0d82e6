package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
)

// Service status bodies. The same strings double as the canonical sensor
// payloads so downstream automations match on one vocabulary.
const (
	StatusOn  = "ON"
	StatusOff = "OFF"
)

const (
	connectTimeout = time.Second * 5
	statusTimeout  = time.Second * 5
	publishTimeout = time.Second * 10
)

type service struct {
	client  paho_mqtt.Client
	prefix  string
	logger  *zap.Logger
	metrics *metric.Metrics

	mu         sync.Mutex
	configured map[string]struct{}
}

func New(client paho_mqtt.Client, cfg *config.MqttConfig, metrics *metric.Metrics) *service {
	return &service{
		client:     client,
		prefix:     cfg.TopicPrefix,
		logger:     zap.L(),
		metrics:    metrics,
		configured: make(map[string]struct{}),
	}
}

// ClientOptions builds the paho options for cfg, including the offline will
// on the status topic so the broker reports the bridge down if it dies
// without a clean shutdown.
func ClientOptions(cfg *config.MqttConfig) *paho_mqtt.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("onvif-bridge-%s", uuid.NewString()[:8])
	}
	opts := paho_mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetWill(StatusTopic(cfg.TopicPrefix), StatusOff, 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(_ paho_mqtt.Client) {
		zap.L().Info("mqtt connected", zap.String("client_id", clientID))
	})
	opts.SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
		zap.L().Warn("mqtt connection lost", zap.Error(err))
	})
	return opts
}

// StatusTopic is where the bridge announces itself, and where the will
// fires.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(connectTimeout)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}

// Publish sends one message under the device's topic tree. Delivery is
// fire-and-forget: the token is watched on a goroutine and failures are
// logged, never fed back into the event path.
func (s *service) Publish(deviceID, subtopic, body string, retain bool) {
	topic := s.deviceTopic(deviceID, subtopic)
	token := s.client.Publish(topic, 0, retain, body)
	s.metrics.PublishesIssued.Inc()
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			s.metrics.PublishFailures.Inc()
			s.logger.Warn("publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			s.metrics.PublishFailures.Inc()
			s.logger.Error("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// PublishServiceStatus announces the bridge itself on the status topic. The
// wait is bounded so a shutdown publish cannot hang the process when the
// broker is already gone.
func (s *service) PublishServiceStatus(state string) error {
	token := s.client.Publish(StatusTopic(s.prefix), 1, true, state)
	if !token.WaitTimeout(statusTimeout) {
		return fmt.Errorf("mqtt: status publish timed out after %s", statusTimeout)
	}
	return token.Error()
}

func (s *service) deviceTopic(deviceID, subtopic string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, slug.Make(deviceID), subtopic)
}
