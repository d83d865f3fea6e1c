package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chatshop-Plugin/chatshop-sub001/metric"
)

const metricsSubsystem = "loader"

// loaderMetrics instruments load activity. All record methods are safe on a
// nil receiver so the loader works without a metrics registry.
type loaderMetrics struct {
	loadsTotal       *prometheus.CounterVec
	loadDuration     prometheus.Histogram
	componentsLoaded prometheus.Gauge
}

// newLoaderMetrics registers the loader collectors. A nil registry yields a
// nil *loaderMetrics, which is valid to record against.
func newLoaderMetrics(registry *metric.MetricsRegistry) (*loaderMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &loaderMetrics{
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatshop",
			Subsystem: metricsSubsystem,
			Name:      "loads_total",
			Help:      "Component load attempts by outcome",
		}, []string{"component", "status"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatshop",
			Subsystem: metricsSubsystem,
			Name:      "load_duration_seconds",
			Help:      "Duration of individual component loads",
			Buckets:   prometheus.DefBuckets,
		}),
		componentsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatshop",
			Subsystem: metricsSubsystem,
			Name:      "components_loaded",
			Help:      "Number of components with a live instance",
		}),
	}

	if err := registry.RegisterCounterVec(metricsSubsystem, "loads_total", m.loadsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(metricsSubsystem, "load_duration_seconds", m.loadDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(metricsSubsystem, "components_loaded", m.componentsLoaded); err != nil {
		return nil, err
	}

	return m, nil
}

// recordLoad counts one load attempt with its outcome
func (m *loaderMetrics) recordLoad(componentID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(componentID, status).Inc()
	m.loadDuration.Observe(duration.Seconds())
}

// setLoaded publishes the current live-instance count
func (m *loaderMetrics) setLoaded(n int) {
	if m == nil {
		return
	}
	m.componentsLoaded.Set(float64(n))
}
