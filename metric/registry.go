// Package metric manages Prometheus metric registration for the component
// lifecycle manager. Subsystems register their collectors under a namespaced
// key so duplicate registration is caught before Prometheus sees it.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
)

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with Go runtime metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// RegisterCounter registers a counter metric for a subsystem
func (r *MetricsRegistry) RegisterCounter(subsystem, metricName string, counter prometheus.Counter) error {
	return r.register(subsystem, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a subsystem
func (r *MetricsRegistry) RegisterGauge(subsystem, metricName string, gauge prometheus.Gauge) error {
	return r.register(subsystem, metricName, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a subsystem
func (r *MetricsRegistry) RegisterHistogram(subsystem, metricName string, histogram prometheus.Histogram) error {
	return r.register(subsystem, metricName, "RegisterHistogram", histogram)
}

// RegisterCounterVec registers a counter vector metric for a subsystem
func (r *MetricsRegistry) RegisterCounterVec(subsystem, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register(subsystem, metricName, "RegisterCounterVec", counterVec)
}

// RegisterHistogramVec registers a histogram vector metric for a subsystem
func (r *MetricsRegistry) RegisterHistogramVec(
	subsystem, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register(subsystem, metricName, "RegisterHistogramVec", histogramVec)
}

// register adds a collector under a namespaced key, rejecting duplicates
func (r *MetricsRegistry) register(subsystem, metricName, operation string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", subsystem, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for subsystem %s", metricName, subsystem),
			"MetricsRegistry", operation, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", operation,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", operation,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(subsystem, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", subsystem, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}
