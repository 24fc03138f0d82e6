package onvif

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	goonvif "github.com/use-go/onvif"
	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
)

// Handler receives raw notifications as they are pulled off a device.
type Handler func(deviceID string, evt event.Raw)

// Client owns the device-side notification protocol. Consumers only ever
// see raw events through the Handler.
type Client interface {
	Subscribe(ctx context.Context, device config.DeviceConfig, onEvent Handler) (Subscription, error)
}

// Subscription is one live camera event feed.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

const (
	pullTimeout      = "PT5S"
	pullMessageLimit = 32
	httpTimeout      = time.Second * 12
	initialRetry     = time.Second * 2
	maxRetry         = time.Minute
)

type client struct {
	logger *zap.Logger
}

func NewClient() Client {
	return &client{logger: zap.L()}
}

// Subscribe starts the pull loop for one device. The loop reconnects with
// backoff on any device error and stops only on Unsubscribe; ctx gates the
// call itself, not the loop's lifetime.
func (c *client) Subscribe(ctx context.Context, device config.DeviceConfig, onEvent Handler) (Subscription, error) {
	if onEvent == nil {
		return nil, fmt.Errorf("onvif: subscribe %s: nil handler", device.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("onvif: subscribe %s: %w", device.Name, err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:     uuid.NewString(),
		device: device,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.logger.With(
			zap.String("device", device.Name),
			zap.String("host", device.Hostname),
		),
	}
	go sub.run(loopCtx, onEvent)
	return sub, nil
}

type subscription struct {
	id     string
	device config.DeviceConfig
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// Unsubscribe stops the pull loop and waits for it to wind down. The
// camera-side pull point is left to lapse at its termination time; devices
// reap unpulled subscriptions on their own.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("onvif: unsubscribe %s: %w", s.device.Name, ctx.Err())
	}
}

func (s *subscription) run(ctx context.Context, onEvent Handler) {
	defer close(s.done)
	retry := initialRetry
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := s.pull(ctx, onEvent)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > maxRetry {
			// The session was healthy for a while; treat this as a fresh
			// outage rather than a continuation of the last one.
			retry = initialRetry
		}
		s.logger.Warn("camera feed lost", zap.Error(err), zap.Duration("retry_in", retry))
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return
		}
		retry = min(retry*2, maxRetry)
	}
}

// pull connects to the device, creates a pull point and drains it until an
// error or cancellation.
func (s *subscription) pull(ctx context.Context, onEvent Handler) error {
	httpClient := &http.Client{Timeout: httpTimeout}
	dev, err := goonvif.NewDevice(goonvif.DeviceParams{
		Xaddr:      fmt.Sprintf("%s:%d", s.device.Hostname, s.device.Port),
		Username:   s.device.Username,
		Password:   s.device.Password,
		HttpClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("onvif: connect %s: %w", s.device.Name, err)
	}

	pp, err := createPullPoint(dev, s.device, httpClient)
	if err != nil {
		return err
	}
	s.logger.Info("camera subscribed",
		zap.String("subscription_id", s.id),
		zap.String("pull_endpoint", pp.endpoint),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		events, err := pp.pullMessages()
		if err != nil {
			return err
		}
		for _, evt := range events {
			onEvent(s.device.Name, evt)
		}
	}
}
