// Package metrics exposes Prometheus instrumentation for config loads and
// after-prefork hooks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resque_pool"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics owns a registry so each pool instance can be scraped and tested in
// isolation.
type Metrics struct {
	registry *prometheus.Registry

	ConfigLoads     *prometheus.CounterVec
	ConfigEntries   prometheus.Gauge
	HookRuns        *prometheus.CounterVec
	HooksRegistered prometheus.Gauge
}

// New creates the collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ConfigLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_loads_total",
			Help:      "Pool configuration loads by result.",
		}, []string{"result"}),
		ConfigEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_entries",
			Help:      "Worker keys in the effective configuration.",
		}),
		HookRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_runs_total",
			Help:      "After-prefork hook chain runs by result.",
		}, []string{"result"}),
		HooksRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hooks_registered",
			Help:      "Registered after-prefork hooks.",
		}),
	}
}

// ObserveLoad records a configuration load outcome.
func (m *Metrics) ObserveLoad(entries int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ConfigLoads.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.ConfigLoads.WithLabelValues(ResultSuccess).Inc()
	m.ConfigEntries.Set(float64(entries))
}

// ObserveHookRun records a hook chain run outcome.
func (m *Metrics) ObserveHookRun(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.HookRuns.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.HookRuns.WithLabelValues(ResultSuccess).Inc()
}

// SetHooksRegistered records the current hook count.
func (m *Metrics) SetHooksRegistered(n int) {
	if m == nil {
		return
	}
	m.HooksRegistered.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
