package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking transitions
// and check-in flows. All methods are nil-safe so wiring stays optional.
type SchedulingMetrics struct {
	transitionsTotal *prometheus.CounterVec
	checkinTotal     *prometheus.CounterVec
	bookingLatency   prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinidesk",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Total booking coordinator transitions by outcome",
		}, []string{"transition", "outcome"}),
		checkinTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinidesk",
			Subsystem: "scheduling",
			Name:      "checkin_total",
			Help:      "Total check-in code operations by result",
		}, []string{"operation", "result"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinidesk",
			Subsystem: "scheduling",
			Name:      "booking_latency_seconds",
			Help:      "Latency of the booking transition",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.checkinTotal, m.bookingLatency)
	return m
}

func (m *SchedulingMetrics) ObserveTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(transition, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveCheckin(operation, result string) {
	if m == nil {
		return
	}
	m.checkinTotal.WithLabelValues(operation, result).Inc()
}

func (m *SchedulingMetrics) ObserveBookingLatency(seconds float64) {
	if m == nil {
		return
	}
	m.bookingLatency.Observe(seconds)
}
