package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RankingMetrics tracks batch recomputation and realtime fan-out health.
type RankingMetrics struct {
	batchDuration prometheus.Histogram
	rankedUsers   prometheus.Gauge
	coalesced     prometheus.Counter
	eventsOut     *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
}

// NewRankingMetrics registers ranking and realtime metrics on the provided registerer.
func NewRankingMetrics(reg prometheus.Registerer) *RankingMetrics {
	if reg == nil {
		return &RankingMetrics{}
	}
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gamification",
		Name:      "ranking_batch_duration_seconds",
		Help:      "Duration of full ranking generation builds in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	rankedUsers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamification",
		Name:      "ranking_users_ranked",
		Help:      "Users ranked in the most recent published generation.",
	})
	coalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification",
		Name:      "ranking_batch_coalesced_total",
		Help:      "Batch runs skipped because a run was already in flight.",
	})
	eventsOut := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification",
		Name:      "realtime_events_dispatched_total",
		Help:      "Realtime events dispatched to listeners by event type.",
	}, []string{"event_type"})
	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification",
		Name:      "realtime_events_dropped_total",
		Help:      "Realtime events dropped due to slow listeners by event type.",
	}, []string{"event_type"})
	reg.MustRegister(batchDuration, rankedUsers, coalesced, eventsOut, eventsDropped)
	return &RankingMetrics{
		batchDuration: batchDuration,
		rankedUsers:   rankedUsers,
		coalesced:     coalesced,
		eventsOut:     eventsOut,
		eventsDropped: eventsDropped,
	}
}

// ObserveBatchDuration records how long a generation build took.
func (m *RankingMetrics) ObserveBatchDuration(d time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// SetRankedUsers records the user count of the published generation.
func (m *RankingMetrics) SetRankedUsers(n int64) {
	if m == nil || m.rankedUsers == nil {
		return
	}
	m.rankedUsers.Set(float64(n))
}

// IncCoalesced counts a skipped concurrent batch request.
func (m *RankingMetrics) IncCoalesced() {
	if m == nil || m.coalesced == nil {
		return
	}
	m.coalesced.Inc()
}

// IncDispatched counts a delivered realtime event.
func (m *RankingMetrics) IncDispatched(eventType string) {
	if m == nil || m.eventsOut == nil {
		return
	}
	m.eventsOut.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDropped counts a realtime event dropped on a full listener buffer.
func (m *RankingMetrics) IncDropped(eventType string) {
	if m == nil || m.eventsDropped == nil {
		return
	}
	m.eventsDropped.WithLabelValues(normalizeLabel(eventType)).Inc()
}
