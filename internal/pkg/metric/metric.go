package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "onvif_bridge"

// Metrics holds the bridge collectors exposed on the status server.
type Metrics struct {
	EventsReceived     *prometheus.CounterVec
	EventsUnclassified prometheus.Counter
	EventsMalformed    prometheus.Counter
	EventsForwarded    *prometheus.CounterVec
	PublishesIssued    prometheus.Counter
	PublishFailures    prometheus.Counter
	ActiveDevices      prometheus.Gauge
	Rebuilds           prometheus.Counter
	ServiceStatus      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Classified camera notifications received, per device and kind.",
		}, []string{"device", "kind"}),
		EventsUnclassified: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unclassified_total",
			Help:      "Notifications dropped because their topic is not in the classification table.",
		}),
		EventsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_malformed_total",
			Help:      "Notifications dropped because no boolean state could be derived.",
		}),
		EventsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_forwarded_total",
			Help:      "Debounced state changes handed to the publication pipeline.",
		}, []string{"device", "kind"}),
		PublishesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_issued_total",
			Help:      "MQTT publishes handed to the client.",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "MQTT publishes that failed or timed out.",
		}),
		ActiveDevices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_devices",
			Help:      "Devices with a live event subscription.",
		}),
		Rebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_rebuilds_total",
			Help:      "Full subscription set rebuilds, including scheduled resubscribes.",
		}),
		ServiceStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 while the bridge is announced online on the status topic.",
		}),
	}
}
