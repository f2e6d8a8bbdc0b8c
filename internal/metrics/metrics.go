package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for mentorlink_events_total.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics owns the Prometheus collectors of one server. A nil *Metrics is
// valid and records nothing, so components can be built without it.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	connectionsActive  prometheus.Gauge
	roomMembers        prometheus.Gauge
	eventsTotal        *prometheus.CounterVec
	eventDuration      *prometheus.HistogramVec
	notificationsTotal *prometheus.CounterVec
	deliveriesTotal    *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec

	connections uint64
	events      uint64
	errors      uint64
	delivered   uint64
	dropped     uint64
}

// Snapshot is a cheap view of the counters for the stats endpoint.
type Snapshot struct {
	ConnectionsTotal     uint64    `json:"connectionsTotal"`
	EventsTotal          uint64    `json:"eventsTotal"`
	EventErrors          uint64    `json:"eventErrors"`
	NotificationsSent    uint64    `json:"notificationsDelivered"`
	NotificationsDropped uint64    `json:"notificationsDropped"`
	Goroutines           int       `json:"goroutines"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

// New registers the mentorlink collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	connectionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mentorlink_connections_active",
		Help: "Number of registered realtime connections",
	})

	roomMembers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mentorlink_room_members",
		Help: "Total memberships across all assignment rooms",
	})

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentorlink_events_total",
		Help: "Inbound realtime events by name and outcome",
	}, []string{"event", "outcome"})

	eventDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mentorlink_event_duration_seconds",
		Help:    "Time spent handling an inbound realtime event",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})

	notificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentorlink_notifications_total",
		Help: "Notification routing attempts by result",
	}, []string{"result"})

	deliveriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentorlink_broadcast_deliveries_total",
		Help: "Per-recipient broadcast deliveries by result",
	}, []string{"result"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentorlink_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mentorlink_goroutines",
		Help: "Number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(connectionsActive, roomMembers, eventsTotal, eventDuration,
		notificationsTotal, deliveriesTotal, httpRequests, goroutines)

	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		connectionsActive:  connectionsActive,
		roomMembers:        roomMembers,
		eventsTotal:        eventsTotal,
		eventDuration:      eventDuration,
		notificationsTotal: notificationsTotal,
		deliveriesTotal:    deliveriesTotal,
		httpRequests:       httpRequests,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	atomic.AddUint64(&m.connections, 1)
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// RoomMembersChanged applies a delta to the membership gauge.
func (m *Metrics) RoomMembersChanged(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.roomMembers.Add(float64(delta))
}

// ObserveEvent records one handled inbound event.
func (m *Metrics) ObserveEvent(event string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeError
		atomic.AddUint64(&m.errors, 1)
	}
	m.eventsTotal.WithLabelValues(event, outcome).Inc()
	m.eventDuration.WithLabelValues(event).Observe(duration.Seconds())
	atomic.AddUint64(&m.events, 1)
}

// ObserveNotification records whether a notification reached a live connection.
func (m *Metrics) ObserveNotification(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.notificationsTotal.WithLabelValues("delivered").Inc()
		atomic.AddUint64(&m.delivered, 1)
		return
	}
	m.notificationsTotal.WithLabelValues("dropped").Inc()
	atomic.AddUint64(&m.dropped, 1)
}

// ObserveDelivery records the outcome of one broadcast send.
func (m *Metrics) ObserveDelivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.deliveriesTotal.WithLabelValues("sent").Inc()
		return
	}
	m.deliveriesTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Goroutines: runtime.NumGoroutine(), GeneratedAt: time.Now().UTC()}
	}
	return Snapshot{
		ConnectionsTotal:     atomic.LoadUint64(&m.connections),
		EventsTotal:          atomic.LoadUint64(&m.events),
		EventErrors:          atomic.LoadUint64(&m.errors),
		NotificationsSent:    atomic.LoadUint64(&m.delivered),
		NotificationsDropped: atomic.LoadUint64(&m.dropped),
		Goroutines:           runtime.NumGoroutine(),
		GeneratedAt:          time.Now().UTC(),
	}
}
