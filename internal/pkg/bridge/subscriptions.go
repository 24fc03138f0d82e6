package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
	"github.com/anicoll/onvif-integration/internal/pkg/onvif"
)

// Handler consumes one classified event: the device it came from and its
// extracted payload values.
type Handler func(deviceID string, values event.Values)

// initialMotionTopic seeds every fresh subscription with a quiescent state,
// so consumers see motion=false until the camera reports otherwise.
const initialMotionTopic = "tns1:RuleEngine/CellMotionDetector/Motion"

// SubscriptionGroup owns the live camera subscriptions and demultiplexes
// their notifications onto per-kind handlers. Rebuilds are atomic from the
// consumer's view: a generation stamp makes events from a torn-down set
// no-ops even if they are still in flight.
type SubscriptionGroup struct {
	client  onvif.Client
	logger  *zap.Logger
	metrics *metric.Metrics

	mu         sync.RWMutex
	generation uint64
	subs       map[string]onvif.Subscription
	handlers   map[event.Kind]Handler
}

func NewSubscriptionGroup(client onvif.Client, metrics *metric.Metrics) *SubscriptionGroup {
	return &SubscriptionGroup{
		client:   client,
		logger:   zap.L(),
		metrics:  metrics,
		subs:     make(map[string]onvif.Subscription),
		handlers: make(map[event.Kind]Handler),
	}
}

// SetHandler replaces the handler for kind. It takes effect for the next
// event; a delivery already in flight keeps the handler it resolved.
func (g *SubscriptionGroup) SetHandler(kind event.Kind, h Handler) {
	g.mu.Lock()
	g.handlers[kind] = h
	g.mu.Unlock()
}

// Build tears down the current set and subscribes every device in devices.
// Per-device failures are logged and collected, never fatal to the rest of
// the set. Each new subscription dispatches one synthetic motion=false event
// through the normal demux path.
func (g *SubscriptionGroup) Build(ctx context.Context, devices []config.DeviceConfig) error {
	err := g.Teardown(ctx)

	g.mu.RLock()
	generation := g.generation
	g.mu.RUnlock()

	for _, device := range devices {
		sub, serr := g.client.Subscribe(ctx, device, g.callback(generation))
		if serr != nil {
			g.logger.Error("subscribe failed", zap.String("device", device.Name), zap.Error(serr))
			err = multierr.Append(err, fmt.Errorf("subscribe %s: %w", device.Name, serr))
			continue
		}
		g.mu.Lock()
		g.subs[device.Name] = sub
		g.mu.Unlock()

		g.dispatch(generation, device.Name, event.Raw{
			Topic: initialMotionTopic,
			Items: []event.SimpleItem{{Name: "IsMotion", Value: "false"}},
		})
	}

	g.mu.RLock()
	g.metrics.ActiveDevices.Set(float64(len(g.subs)))
	g.mu.RUnlock()
	g.metrics.Rebuilds.Inc()
	return err
}

// Teardown releases every subscription. The generation bump waits for
// deliveries already in flight, so once it returns no event from the old
// set can reach a handler.
func (g *SubscriptionGroup) Teardown(ctx context.Context) error {
	g.mu.Lock()
	g.generation++
	subs := g.subs
	g.subs = make(map[string]onvif.Subscription)
	g.mu.Unlock()

	var err error
	for name, sub := range subs {
		if uerr := sub.Unsubscribe(ctx); uerr != nil {
			g.logger.Warn("unsubscribe failed", zap.String("device", name), zap.Error(uerr))
			err = multierr.Append(err, fmt.Errorf("unsubscribe %s: %w", name, uerr))
		}
	}
	g.metrics.ActiveDevices.Set(0)
	return err
}

// Devices lists the currently subscribed device names.
func (g *SubscriptionGroup) Devices() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.subs))
	for name := range g.subs {
		names = append(names, name)
	}
	return names
}

func (g *SubscriptionGroup) callback(generation uint64) onvif.Handler {
	return func(deviceID string, raw event.Raw) {
		g.dispatch(generation, deviceID, raw)
	}
}

func (g *SubscriptionGroup) dispatch(generation uint64, deviceID string, raw event.Raw) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if generation != g.generation {
		return
	}
	kind, ok := event.Classify(raw.Topic)
	if !ok {
		g.metrics.EventsUnclassified.Inc()
		g.logger.Debug("unclassified event dropped",
			zap.String("device", deviceID),
			zap.String("topic", raw.Topic),
		)
		return
	}
	g.metrics.EventsReceived.WithLabelValues(deviceID, kind.String()).Inc()
	handler := g.handlers[kind]
	if handler == nil {
		return
	}
	// The read lock is held across the invocation so a teardown's
	// generation bump waits for deliveries already in flight.
	handler(deviceID, raw.Values())
}
