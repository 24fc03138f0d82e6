package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
	"github.com/anicoll/onvif-integration/internal/pkg/mqtt"
	"github.com/anicoll/onvif-integration/pkg/tap"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func testConfig(window time.Duration, names ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Bridge.DebounceWindow = window
	cfg.Onvif = devices(names...)
	return cfg
}

type testBridge struct {
	svc       *Service
	transport *fakeTransport
	client    *fakeOnvifClient
	metrics   *metric.Metrics
}

func newTestBridge(t *testing.T, cfg *config.Config) *testBridge {
	t.Helper()
	metrics := metric.New(prometheus.NewRegistry())
	client := &fakeOnvifClient{}
	transport := &fakeTransport{}
	group := NewSubscriptionGroup(client, metrics)
	pipeline := NewPipeline(transport, tap.NewHub[Event](8), metrics, false, cfg.Api.Templates)
	svc := New(cfg, group, pipeline, transport, metrics)
	return &testBridge{svc: svc, transport: transport, client: client, metrics: metrics}
}

func TestStartAnnouncesOnlineThenSeedsDevices(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))

	require.NoError(t, b.svc.Start(context.Background()))

	assert.Equal(t, []string{mqtt.StatusOn}, b.transport.allStatuses())
	require.Equal(t, 1, b.client.subscribeCount())

	// The synthetic seed debounces into one quiescent publish.
	require.Eventually(t, func() bool {
		return len(b.transport.allPublished()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	msg := b.transport.allPublished()[0]
	assert.Equal(t, "cam1", msg.deviceID)
	assert.Equal(t, "motion", msg.subtopic)
	assert.Equal(t, mqtt.StatusOff, msg.body)
}

func TestStartTransportErrors(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	b.transport.connectErr = errors.New("broker unreachable")
	assert.Error(t, b.svc.Start(context.Background()))

	b = newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	b.transport.statusErr = errors.New("publish refused")
	assert.Error(t, b.svc.Start(context.Background()))
	assert.Zero(t, b.client.subscribeCount(), "no subscriptions before the bridge is announced")
}

func TestMotionFlowsEndToEnd(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))

	b.client.latest("cam1").emit(motionRaw("true"))

	require.Eventually(t, func() bool {
		for _, msg := range b.transport.allPublished() {
			if msg.subtopic == "motion" && msg.body == mqtt.StatusOn {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFlapWithinWindowCoalesces(t *testing.T) {
	b := newTestBridge(t, testConfig(250*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))

	sub := b.client.latest("cam1")
	sub.emit(motionRaw("true"))
	sub.emit(motionRaw("false"))
	sub.emit(motionRaw("true"))

	require.Eventually(t, func() bool {
		return len(b.transport.allPublished()) == 1
	}, 3*time.Second, 5*time.Millisecond)

	time.Sleep(600 * time.Millisecond)
	msgs := b.transport.allPublished()
	require.Len(t, msgs, 1, "the seed and the flap collapse into one forward")
	assert.Equal(t, mqtt.StatusOn, msgs[0].body, "last state wins")
}

func TestMalformedEventIsDroppedBeforeDebounce(t *testing.T) {
	logs := observeLogs(t)
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(b.transport.allPublished()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	b.client.latest("cam1").emit(event.Raw{
		Topic: "tns1:RuleEngine/CellMotionDetector/Motion",
		Items: []event.SimpleItem{{Name: "Window", Value: "0"}},
	})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("malformed event dropped").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, b.transport.allPublished(), 1, "malformed events publish nothing")
	assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.EventsMalformed))
}

func TestShutdownPublishesOffExactlyOnce(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))
	sub := b.client.latest("cam1")

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.svc.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{mqtt.StatusOn, mqtt.StatusOff}, b.transport.allStatuses())
	assert.True(t, sub.unsubscribed.Load())
	b.transport.mu.Lock()
	assert.Equal(t, 1, b.transport.disconnects)
	b.transport.mu.Unlock()

	assert.ErrorIs(t, b.svc.Reload(context.Background(), testConfig(time.Second, "cam1")), ErrClosed)
	assert.ErrorIs(t, b.svc.Rebuild(context.Background()), ErrClosed)
}

func TestReloadTemplateOnlySkipsRebuild(t *testing.T) {
	cfg := testConfig(20*time.Millisecond, "cam1")
	b := newTestBridge(t, cfg)
	require.NoError(t, b.svc.Start(context.Background()))
	require.Equal(t, 1, b.client.subscribeCount())

	next := testConfig(20*time.Millisecond, "cam1")
	next.Api.Templates = []config.Template{{Subtopic: "alerts/{eventType}", Template: "{eventState}"}}
	require.NoError(t, b.svc.Reload(context.Background(), next))

	assert.Equal(t, 1, b.client.subscribeCount(), "same device set does not rebuild")

	b.client.latest("cam1").emit(motionRaw("true"))
	require.Eventually(t, func() bool {
		for _, msg := range b.transport.allPublished() {
			if msg.subtopic == "alerts/motion" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReloadDeviceChangeRebuilds(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))
	old := b.client.latest("cam1")

	require.NoError(t, b.svc.Reload(context.Background(), testConfig(20*time.Millisecond, "cam1", "cam2")))

	assert.Equal(t, 3, b.client.subscribeCount(), "both devices resubscribe")
	assert.True(t, old.unsubscribed.Load())
	assert.ElementsMatch(t, []string{"cam1", "cam2"}, b.svc.group.Devices())
}

func TestReloadDuringBurstSilencesRemovedDevice(t *testing.T) {
	window := 500 * time.Millisecond
	b := newTestBridge(t, testConfig(window, "camA"))
	require.NoError(t, b.svc.Start(context.Background()))

	// Each pass hammers the outgoing subscription's callback while the
	// reload swaps it away, then brings camA back for the next round.
	for range 12 {
		sub := b.client.latest("camA")
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					sub.emit(motionRaw("true"))
				}
			}
		}()

		require.NoError(t, b.svc.Reload(context.Background(), testConfig(window, "camB")))
		close(stop)
		wg.Wait()
		require.NoError(t, b.svc.Reload(context.Background(), testConfig(window, "camA")))
	}
	require.NoError(t, b.svc.Reload(context.Background(), testConfig(window, "camB")))

	time.Sleep(2 * window)
	for _, msg := range b.transport.allPublished() {
		assert.NotEqual(t, "camA", msg.deviceID, "a window armed during the swap must not survive it")
	}
}

func TestScheduledRebuildRefreshesSubscriptions(t *testing.T) {
	b := newTestBridge(t, testConfig(20*time.Millisecond, "cam1"))
	require.NoError(t, b.svc.Start(context.Background()))
	old := b.client.latest("cam1")

	require.NoError(t, b.svc.Rebuild(context.Background()))

	assert.Equal(t, 2, b.client.subscribeCount())
	assert.True(t, old.unsubscribed.Load())
	assert.NotSame(t, old, b.client.latest("cam1"))
	assert.Equal(t, float64(2), testutil.ToFloat64(b.metrics.Rebuilds))
}
