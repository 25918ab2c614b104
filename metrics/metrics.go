// Package metrics exposes prometheus counters for drag sessions and drop
// sites. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	// Namespace is the metrics namespace (default: "dnd").
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	// Buckets for the drag duration histogram.
	// Default: prometheus.DefBuckets
	Buckets []float64
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

func WithSubsystem(s string) Option {
	return func(c *Config) { c.Subsystem = s }
}

func WithConstLabels(l prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = l }
}

func WithBuckets(b []float64) Option {
	return func(c *Config) { c.Buckets = b }
}

func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = r }
}

func defaultConfig() Config {
	return Config{
		Namespace: "dnd",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

//----------

type Metrics struct {
	dragsStarted   prometheus.Counter
	dragsFinished  *prometheus.CounterVec
	dragDuration   prometheus.Histogram
	activeDrags    prometheus.Gauge
	grabFailures   *prometheus.CounterVec
	staleEvents    *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	messagesRecv   *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec
	brokerRecreate prometheus.Counter
	dropSites      prometheus.Gauge
	dropSiteRetry  prometheus.Counter
}

func New(opts ...Option) *Metrics {
	c := defaultConfig()
	for _, o := range opts {
		o(&c)
	}
	f := promauto.With(c.Registry)
	co := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.ConstLabels,
		}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts(co(name, help))
	}
	return &Metrics{
		dragsStarted:  f.NewCounter(co("drags_started_total", "Drag sessions started")),
		dragsFinished: f.NewCounterVec(co("drags_finished_total", "Drag sessions ended, by result"), []string{"result"}),
		dragDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "drag_duration_seconds",
			Help:        "Time from drag start to teardown",
			ConstLabels: c.ConstLabels,
			Buckets:     c.Buckets,
		}),
		activeDrags:    f.NewGauge(gaugeOpts("drags_active", "Drag sessions in progress")),
		grabFailures:   f.NewCounterVec(co("grab_failures_total", "Input grabs refused, by device and status"), []string{"device", "status"}),
		staleEvents:    f.NewCounterVec(co("stale_events_total", "Events discarded by timestamp, by kind"), []string{"kind"}),
		messagesSent:   f.NewCounterVec(co("messages_sent_total", "Protocol messages sent, by dialect and kind"), []string{"dialect", "kind"}),
		messagesRecv:   f.NewCounterVec(co("messages_received_total", "Protocol messages decoded, by dialect and kind"), []string{"dialect", "kind"}),
		sendErrors:     f.NewCounterVec(co("send_errors_total", "Failed message sends, by dialect"), []string{"dialect"}),
		brokerRecreate: f.NewCounter(co("broker_recreated_total", "Broker windows created")),
		dropSites:      f.NewGauge(gaugeOpts("drop_sites", "Registered drop sites")),
		dropSiteRetry:  f.NewCounter(co("drop_site_retries_total", "Deferred drop site registrations scheduled")),
	}
}

//----------

func (m *Metrics) DragStarted() {
	if m == nil {
		return
	}
	m.dragsStarted.Inc()
	m.activeDrags.Inc()
}

// DragEnded records a teardown; result is "success", "failure" or "cancel".
func (m *Metrics) DragEnded(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.dragsFinished.WithLabelValues(result).Inc()
	m.dragDuration.Observe(d.Seconds())
	m.activeDrags.Dec()
}

func (m *Metrics) GrabFailed(device, status string) {
	if m == nil {
		return
	}
	m.grabFailures.WithLabelValues(device, status).Inc()
}

func (m *Metrics) Stale(kind string) {
	if m == nil {
		return
	}
	m.staleEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Sent(dialect, kind string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(dialect, kind).Inc()
}

func (m *Metrics) Received(dialect, kind string) {
	if m == nil {
		return
	}
	m.messagesRecv.WithLabelValues(dialect, kind).Inc()
}

func (m *Metrics) SendError(dialect string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(dialect).Inc()
}

func (m *Metrics) BrokerRecreated() {
	if m == nil {
		return
	}
	m.brokerRecreate.Inc()
}

func (m *Metrics) DropSiteAdded() {
	if m == nil {
		return
	}
	m.dropSites.Inc()
}

func (m *Metrics) DropSiteRemoved() {
	if m == nil {
		return
	}
	m.dropSites.Dec()
}

func (m *Metrics) DropSiteRetry() {
	if m == nil {
		return
	}
	m.dropSiteRetry.Inc()
}
