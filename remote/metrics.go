package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	polls        *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	posts        *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
	lastSweep    prometheus.Gauge
}

// NewMetrics registers the collectors with reg. streamErrors reports the
// receiver's chunk error count.
func NewMetrics(reg prometheus.Registerer, streamErrors func() uint64) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "specan_param_polls_total",
			Help: "Parameter polls by result",
		}, []string{"result"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "specan_measurement_cycles_total",
			Help: "Measurement cycles by result",
		}, []string{"result"}),
		posts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "specan_result_posts_total",
			Help: "Result uploads by result",
		}, []string{"result"}),
		cycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "specan_measurement_cycle_seconds",
			Help:    "Duration of a dual antenna measurement cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastSweep: f.NewGauge(prometheus.GaugeOpts{
			Name: "specan_last_sweep_timestamp_seconds",
			Help: "Unix time of the last completed sweep",
		}),
	}
	if streamErrors != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "specan_stream_errors_total",
			Help: "Receive chunks reported with an error code",
		}, func() float64 { return float64(streamErrors()) })
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) poll(err error) {
	if m != nil {
		m.polls.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) post(err error) {
	if m != nil {
		m.posts.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) cycle(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result(err)).Inc()
	m.cycleSeconds.Observe(d.Seconds())
	if err == nil {
		m.lastSweep.SetToCurrentTime()
	}
}
