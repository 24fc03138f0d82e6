package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/debounce"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
	"github.com/anicoll/onvif-integration/internal/pkg/mqtt"
)

const defaultDebounceWindow = time.Second

// ErrClosed is returned by reload paths once the bridge has shut down.
var ErrClosed = errors.New("bridge: already shut down")

// Service wires the transport, subscription group and pipeline into the
// bridge lifecycle: announce online, bring devices up, react to config
// changes and tear everything down exactly once.
type Service struct {
	group     *SubscriptionGroup
	pipeline  *Pipeline
	transport transport
	metrics   *metric.Metrics
	logger    *zap.Logger
	window    time.Duration

	reloadMu    sync.Mutex
	devices     []config.DeviceConfig
	closed      bool
	dispatchers map[event.Kind]*debounce.Dispatcher

	shutdownOnce sync.Once
}

func New(cfg *config.Config, group *SubscriptionGroup, pipeline *Pipeline, t transport, metrics *metric.Metrics) *Service {
	window := cfg.Bridge.DebounceWindow
	if window <= 0 {
		window = defaultDebounceWindow
	}
	s := &Service{
		group:       group,
		pipeline:    pipeline,
		transport:   t,
		metrics:     metrics,
		logger:      zap.L(),
		window:      window,
		devices:     cfg.Onvif,
		dispatchers: make(map[event.Kind]*debounce.Dispatcher),
	}
	s.registerHandlers()
	return s
}

// registerHandlers builds one dispatcher per kind and chains it between the
// group's demux and the pipeline. State extraction happens before the
// debounce slot is touched, so a malformed payload cannot disturb a pending
// window.
func (s *Service) registerHandlers() {
	for _, kind := range event.Kinds {
		dispatcher := debounce.New(s.window, func(deviceID string, state bool) {
			s.pipeline.Publish(deviceID, kind, state)
		})
		s.dispatchers[kind] = dispatcher
		s.group.SetHandler(kind, func(deviceID string, values event.Values) {
			state, err := values.State()
			if err != nil {
				s.metrics.EventsMalformed.Inc()
				s.logger.Warn("malformed event dropped",
					zap.String("device", deviceID),
					zap.String("kind", kind.String()),
					zap.Error(err),
				)
				return
			}
			dispatcher.Dispatch(deviceID, state)
		})
	}
}

// Start connects the transport, announces the bridge online and brings the
// configured device set up. Device failures are logged, not fatal: a camera
// that is down at boot joins on the next rebuild.
func (s *Service) Start(ctx context.Context) error {
	if err := s.transport.Connect(); err != nil {
		return fmt.Errorf("bridge: transport connect: %w", err)
	}
	if err := s.transport.PublishServiceStatus(mqtt.StatusOn); err != nil {
		return fmt.Errorf("bridge: online status: %w", err)
	}
	s.metrics.ServiceStatus.Set(1)
	s.logger.Info("bridge online", zap.Int("devices", len(s.devices)))
	if err := s.Rebuild(ctx); err != nil {
		s.logger.Warn("initial subscription build incomplete", zap.Error(err))
	}
	return nil
}

// Reload applies a fresh configuration. Templates swap in place; the device
// set rebuilds only when it actually changed.
func (s *Service) Reload(ctx context.Context, cfg *config.Config) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.pipeline.SetTemplates(cfg.Api.Templates)
	if config.DevicesEqual(s.devices, cfg.Onvif) {
		s.logger.Debug("device set unchanged, skipping rebuild")
		return nil
	}
	s.devices = cfg.Onvif
	return s.rebuild(ctx)
}

// Rebuild tears down and resubscribes the current device set. The scheduled
// resubscribe path uses it to refresh wedged pull points.
func (s *Service) Rebuild(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.rebuild(ctx)
}

// rebuild tears down before resetting the dispatchers; the teardown's
// generation bump waits out in-flight deliveries, so no event can arm a
// fresh window after the reset.
func (s *Service) rebuild(ctx context.Context) error {
	err := s.group.Teardown(ctx)
	for _, d := range s.dispatchers {
		d.Reset()
	}
	return multierr.Append(err, s.group.Build(ctx, s.devices))
}

// Devices lists the names of the currently subscribed cameras.
func (s *Service) Devices() []string {
	return s.group.Devices()
}

// Shutdown releases every subscription, silences pending debounce windows
// and announces the bridge offline. Extra calls, including racing signal
// deliveries, are no-ops.
func (s *Service) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.reloadMu.Lock()
		s.closed = true
		s.reloadMu.Unlock()

		if err := s.group.Teardown(ctx); err != nil {
			s.logger.Warn("subscription teardown incomplete", zap.Error(err))
		}
		for _, d := range s.dispatchers {
			d.Reset()
		}
		s.metrics.ServiceStatus.Set(0)
		if err := s.transport.PublishServiceStatus(mqtt.StatusOff); err != nil {
			s.logger.Warn("offline status publish failed", zap.Error(err))
		}
		s.transport.Disconnect()
		s.logger.Info("bridge stopped")
	})
}
