package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/onvif-integration/internal/pkg/bridge"
)

// eventSource is the slice of the event tap the server consumes.
type eventSource interface {
	Subscribe() (<-chan bridge.Event, func())
	Subscribers() int
}

// deviceLister reports the currently subscribed devices for health output.
type deviceLister interface {
	Devices() []string
}

type server struct {
	events   eventSource
	devices  deviceLister
	registry *prometheus.Registry
	logger   *zap.Logger
	started  time.Time
	upgrader websocket.Upgrader
}

func New(events eventSource, devices deviceLister, registry *prometheus.Registry) *server {
	return &server{
		events:   events,
		devices:  devices,
		registry: registry,
		logger:   zap.L(),
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler assembles the status mux: health, metrics and the live event tap.
func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/events", s.handleEvents)
	return LoggingMiddleware(mux)
}

type healthResponse struct {
	Status    string   `json:"status"`
	UptimeSec int64    `json:"uptime_seconds"`
	Devices   []string `json:"devices"`
	Watchers  int      `json:"event_watchers"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.started).Seconds()),
		Devices:   s.devices.Devices(),
		Watchers:  s.events.Subscribers(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Warn("health encode failed", zap.Error(err))
	}
}

// handleEvents streams post-debounce state changes over a websocket until
// the client hangs up.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.events.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
