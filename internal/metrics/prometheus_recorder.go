package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	pluginDuration *prom.HistogramVec
	pluginResults  *prom.CounterVec
	buildDuration  prom.Histogram
	buildOutcome   *prom.CounterVec
	targetResults  *prom.CounterVec
	cacheResults   *prom.CounterVec
	rebuilds       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.pluginDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "plugin_duration_seconds",
			Help:      "Duration of individual pipeline plugins",
			Buckets:   prom.DefBuckets,
		}, []string{"plugin"})
		pr.pluginResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "plugin_results_total",
			Help:      "Plugin result counts by outcome",
		}, []string{"plugin", "result"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.targetResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "target_results_total",
			Help:      "Targets rendered, skipped or failed",
		}, []string{"result"})
		pr.cacheResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by key and state (hit, miss, expired, bypass, corrupt)",
		}, []string{"key", "state"})
		pr.rebuilds = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "rebuilds_total",
			Help:      "Watch mode rebuilds by trigger",
		}, []string{"trigger"})
		reg.MustRegister(pr.pluginDuration, pr.pluginResults, pr.buildDuration, pr.buildOutcome, pr.targetResults, pr.cacheResults, pr.rebuilds)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePluginDuration(plugin string, d time.Duration) {
	if p == nil || p.pluginDuration == nil {
		return
	}
	p.pluginDuration.WithLabelValues(plugin).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPluginResult(plugin string, result ResultLabel) {
	if p == nil || p.pluginResults == nil {
		return
	}
	p.pluginResults.WithLabelValues(plugin, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncTargetResult(result TargetResultLabel) {
	if p == nil || p.targetResults == nil {
		return
	}
	p.targetResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCacheResult(key, state string) {
	if p == nil || p.cacheResults == nil {
		return
	}
	p.cacheResults.WithLabelValues(key, state).Inc()
}

func (p *PrometheusRecorder) IncRebuild(trigger string) {
	if p == nil || p.rebuilds == nil {
		return
	}
	p.rebuilds.WithLabelValues(trigger).Inc()
}
