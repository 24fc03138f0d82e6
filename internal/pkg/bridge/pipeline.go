package bridge

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
	"github.com/anicoll/onvif-integration/internal/pkg/mqtt"
	"github.com/anicoll/onvif-integration/internal/pkg/template"
	"github.com/anicoll/onvif-integration/pkg/tap"
)

// transport is the slice of the MQTT service the pipeline consumes.
type transport interface {
	Connect() error
	Disconnect()
	Publish(deviceID, subtopic, body string, retain bool)
	PublishServiceStatus(state string) error
	RegisterSensor(deviceID string, kind event.Kind) error
}

// Event is the post-debounce view of one state change, as streamed on the
// status server's event tap.
type Event struct {
	Device string    `json:"device"`
	Kind   string    `json:"kind"`
	State  bool      `json:"state"`
	Time   time.Time `json:"time"`
}

// Pipeline turns one debounced state change into the publishes it implies:
// the canonical kind message first, then one message per operator template.
type Pipeline struct {
	transport transport
	hub       *tap.Hub[Event]
	logger    *zap.Logger
	metrics   *metric.Metrics
	discovery bool

	mu        sync.RWMutex
	templates []config.Template
}

func NewPipeline(t transport, hub *tap.Hub[Event], metrics *metric.Metrics, discovery bool, templates []config.Template) *Pipeline {
	return &Pipeline{
		transport: t,
		hub:       hub,
		logger:    zap.L(),
		metrics:   metrics,
		discovery: discovery,
		templates: templates,
	}
}

// SetTemplates swaps the operator templates. The next state change renders
// against the new set.
func (p *Pipeline) SetTemplates(templates []config.Template) {
	p.mu.Lock()
	p.templates = templates
	p.mu.Unlock()
}

// Publish emits every message implied by one state change. Template
// failures skip that template only; transport delivery is fire-and-forget
// throughout, so a broker outage never stalls the event path.
func (p *Pipeline) Publish(deviceID string, kind event.Kind, state bool) {
	p.metrics.EventsForwarded.WithLabelValues(deviceID, kind.String()).Inc()

	if p.discovery {
		if err := p.transport.RegisterSensor(deviceID, kind); err != nil {
			p.logger.Warn("discovery register failed",
				zap.String("device", deviceID),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
		}
	}

	body := mqtt.StatusOff
	if state {
		body = mqtt.StatusOn
	}
	p.transport.Publish(deviceID, kind.String(), body, false)

	values := template.Values{
		DeviceID: deviceID,
		Type:     kind.String(),
		State:    strconv.FormatBool(state),
	}
	p.mu.RLock()
	templates := p.templates
	p.mu.RUnlock()
	for i, tmpl := range templates {
		subtopic, err := template.RenderTopic(tmpl.Subtopic, values)
		if err != nil {
			p.logger.Warn("template skipped", zap.Int("template", i), zap.Error(err))
			continue
		}
		p.transport.Publish(deviceID, subtopic, template.Render(tmpl.Template, values), tmpl.Retain)
	}

	if p.hub != nil {
		p.hub.Publish(Event{Device: deviceID, Kind: kind.String(), State: state, Time: time.Now().UTC()})
	}
}
