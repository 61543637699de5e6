package cachegate

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine-wide Prometheus instrumentation, generalizing the
// teacher's wrapper/metrics/prometheus collector from a single Cache
// decorator to every component named in spec.md §2's share table.
type Metrics struct {
	verdicts        *prometheus.CounterVec
	revalidations   *prometheus.CounterVec
	purges          *prometheus.CounterVec
	collapsedFetch  prometheus.Counter
	collapsedJoined *prometheus.CounterVec
	streamBytes     prometheus.Counter
	streamDuration  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "lookup_verdicts_total",
			Help:      "Lookup classification outcomes (spec.md §4.2).",
		}, []string{"verdict"}),
		revalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "revalidations_total",
			Help:      "Revalidation path outcomes (spec.md §4.4).",
		}, []string{"tag"}),
		purges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "purges_total",
			Help:      "Purge path outcomes by resulting status code.",
		}, []string{"status"}),
		collapsedFetch: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "collapsed_fetch_started_total",
			Help:      "Upstream revalidation fetches started by a collapsed-revalidation initiator or by a non-collapsed request.",
		}),
		collapsedJoined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "collapsed_join_total",
			Help:      "Revalidating requests by collapse role; role none counts requests that did not collapse.",
		}, []string{"role"}),
		streamBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "stream_bytes_total",
			Help:      "Bytes copied from the store to the next stream node.",
		}),
		streamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cachegate",
			Name:      "stream_duration_seconds",
			Help:      "Wall time of one store-copy delivery cycle in the streaming pump.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
	}
}

func (m *Metrics) observeVerdict(v Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(v.String()).Inc()
}

func (m *Metrics) observeRevalidation(tag Tag) {
	if m == nil {
		return
	}
	m.revalidations.WithLabelValues(string(tag)).Inc()
}

func (m *Metrics) observePurge(status int) {
	if m == nil {
		return
	}
	m.purges.WithLabelValues(httpStatusLabel(status)).Inc()
}

func (m *Metrics) observeCollapseJoin(role CollapseRole, startedFetch bool) {
	if m == nil {
		return
	}
	m.collapsedJoined.WithLabelValues(role.String()).Inc()
	if startedFetch {
		m.collapsedFetch.Inc()
	}
}

func (m *Metrics) observeStream(n int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.streamBytes.Add(float64(n))
	if elapsed > 0 {
		m.streamDuration.Observe(elapsed.Seconds())
	}
}

func httpStatusLabel(status int) string {
	switch status {
	case 0:
		return "unknown"
	default:
		return strconv.Itoa(status)
	}
}
