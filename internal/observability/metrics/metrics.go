package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for the settlement core.
type Metrics struct {
	settlementEvents *prometheus.CounterVec
	paymentIntents   *prometheus.CounterVec
	dealTransitions  *prometheus.CounterVec
	tierUpgrades     prometheus.Counter
	providerLatency  prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the instruments on the provided registerer. Passing nil uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		settlementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mngr_settlement_events_total",
			Help: "Settlement webhook events by type and result.",
		}, []string{"event_type", "result"}),
		paymentIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mngr_payment_intents_total",
			Help: "Payment intent orchestrations by result.",
		}, []string{"result"}),
		dealTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mngr_deal_transitions_total",
			Help: "Deal status transitions by target status.",
		}, []string{"to_status"}),
		tierUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mngr_creator_tier_upgrades_total",
			Help: "Creator fee tier upgrades applied by settlement.",
		}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mngr_payment_provider_latency_seconds",
			Help:    "Latency of calls to the payment provider.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mngr_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mngr_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.settlementEvents,
		m.paymentIntents,
		m.dealTransitions,
		m.tierUpgrades,
		m.providerLatency,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) RecordSettlementEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.settlementEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) RecordPaymentIntent(result string) {
	if m == nil {
		return
	}
	m.paymentIntents.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDealTransition(toStatus string) {
	if m == nil {
		return
	}
	m.dealTransitions.WithLabelValues(toStatus).Inc()
}

func (m *Metrics) RecordTierUpgrade() {
	if m == nil {
		return
	}
	m.tierUpgrades.Inc()
}

func (m *Metrics) ObserveProviderCall(d time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.Observe(d.Seconds())
}

// GinMiddleware records per-request counters and latency.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
