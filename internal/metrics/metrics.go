package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	CheckoutsStarted   prometheus.Counter
	StepTransitions    *prometheus.CounterVec
	OrdersCreated      *prometheus.CounterVec
	PaymentResolutions *prometheus.CounterVec
	PaymentDuration    *prometheus.HistogramVec
	CartCacheLookups   *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "sessions_started_total",
			Help:      "Checkout sessions entered with a non-empty cart.",
		}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "step_transitions_total",
			Help:      "Checkout step transition attempts by step and outcome.",
		}, []string{"step", "outcome"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Order creation attempts by result.",
		}, []string{"result"}),
		PaymentResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "resolutions_total",
			Help:      "Resolved payments by method and final status.",
		}, []string{"method", "status"}),
		PaymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "resolution_duration_seconds",
			Help:      "Time from payment start to resolution.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"method"}),
		CartCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "cache_lookups_total",
			Help:      "Cart cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.CheckoutsStarted,
		m.StepTransitions,
		m.OrdersCreated,
		m.PaymentResolutions,
		m.PaymentDuration,
		m.CartCacheLookups,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObservePayment(method, status string, elapsed time.Duration) {
	m.PaymentResolutions.WithLabelValues(method, status).Inc()
	m.PaymentDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
