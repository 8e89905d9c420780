// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// the ingestion pipeline.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Join outcomes recorded by ChannelJoins.
const (
	JoinJoined      = "joined"
	JoinNotFound    = "not_found"
	JoinPrivate     = "private"
	JoinRateLimited = "rate_limited"
	JoinError       = "error"
)

// Drop reasons recorded by EventsDropped.
const (
	DropNotRunning = "not_running"
	DropFiltered   = "filtered"
	DropMalformed  = "malformed"
	DropSerialize  = "serialize"
)

var (
	once sync.Once

	// Counters
	EventsReceived   prometheus.Counter
	EventsDropped    *prometheus.CounterVec
	RecordsEnqueued  prometheus.Counter
	EnqueueFailures  prometheus.Counter
	RecordsDelivered prometheus.Counter
	DeliveryFailures prometheus.Counter
	ChannelJoins     *prometheus.CounterVec

	// Histograms (seconds)
	DispatchDuration prometheus.Observer
	RateLimitWait    prometheus.Observer

	// Gauges
	JoinedChannels  prometheus.Gauge
	ControllerState prometheus.Gauge
	CachedNames     prometheus.Gauge
)

// Init registers metrics with the default registry (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "telegram_ingest_events_received_total", Help: "Inbound platform events handed to the dispatcher"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "telegram_ingest_events_dropped_total", Help: "Events dropped before publish, by reason"}, []string{"reason"})
		RecordsEnqueued = promauto.NewCounter(prometheus.CounterOpts{Name: "telegram_ingest_records_enqueued_total", Help: "Records accepted by the Kafka producer queue"})
		EnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "telegram_ingest_enqueue_failures_total", Help: "Records rejected by the Kafka producer at enqueue time"})
		RecordsDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "telegram_ingest_records_delivered_total", Help: "Records acknowledged by the broker"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "telegram_ingest_delivery_failures_total", Help: "Records whose asynchronous delivery failed"})
		ChannelJoins = promauto.NewCounterVec(prometheus.CounterOpts{Name: "telegram_ingest_channel_joins_total", Help: "Channel join attempts, by outcome"}, []string{"outcome"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "telegram_ingest_dispatch_duration_seconds", Help: "Normalize and publish duration per event", Buckets: prometheus.DefBuckets})
		RateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{Name: "telegram_ingest_rate_limit_wait_seconds", Help: "Provider-imposed waits served during channel joins", Buckets: []float64{1, 5, 15, 30, 60, 300, 900}})
		JoinedChannels = promauto.NewGauge(prometheus.GaugeOpts{Name: "telegram_ingest_joined_channels", Help: "Channels joined at startup"})
		ControllerState = promauto.NewGauge(prometheus.GaugeOpts{Name: "telegram_ingest_controller_state", Help: "Current ingestion controller state ordinal"})
		CachedNames = promauto.NewGauge(prometheus.GaugeOpts{Name: "telegram_ingest_cached_channel_names", Help: "Channel names held by the name cache"})
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncEventsReceived counts an inbound event.
func IncEventsReceived() {
	if EventsReceived != nil {
		EventsReceived.Inc()
	}
}

// IncEventsDropped counts a dropped event under reason.
func IncEventsDropped(reason string) {
	if EventsDropped != nil {
		EventsDropped.WithLabelValues(reason).Inc()
	}
}

// IncEnqueued counts a record accepted by the producer.
func IncEnqueued() {
	if RecordsEnqueued != nil {
		RecordsEnqueued.Inc()
	}
}

// IncEnqueueFailures counts a record rejected at enqueue time.
func IncEnqueueFailures() {
	if EnqueueFailures != nil {
		EnqueueFailures.Inc()
	}
}

// ObserveDelivery counts a delivery report.
func ObserveDelivery(failed bool) {
	if failed {
		if DeliveryFailures != nil {
			DeliveryFailures.Inc()
		}
		return
	}
	if RecordsDelivered != nil {
		RecordsDelivered.Inc()
	}
}

// IncChannelJoin counts a join attempt under outcome.
func IncChannelJoin(outcome string) {
	if ChannelJoins != nil {
		ChannelJoins.WithLabelValues(outcome).Inc()
	}
}

// ObserveRateLimitWait records a served rate-limit wait.
func ObserveRateLimitWait(d time.Duration) {
	if RateLimitWait != nil {
		RateLimitWait.Observe(d.Seconds())
	}
}

// SetJoinedChannels records the number of channels joined at startup.
func SetJoinedChannels(n int) {
	if JoinedChannels != nil {
		JoinedChannels.Set(float64(n))
	}
}

// SetControllerState records the controller state ordinal.
func SetControllerState(ordinal int) {
	if ControllerState != nil {
		ControllerState.Set(float64(ordinal))
	}
}

// SetCachedNames records the number of names held by the name cache.
func SetCachedNames(n int) {
	if CachedNames != nil {
		CachedNames.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
