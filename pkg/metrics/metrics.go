// Package metrics records pipeline events. The pipeline only records;
// exposing the numbers is left to the serving layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline events
type Recorder interface {
	ItemValidated()
	ItemRejected(reason string)
	CacheLookup(hit bool)
	ClassificationLatency(stage string, d time.Duration)
	EarlyExit(stage string)
	ItemOutcome(status string)
	BatchSize(n int)
}

// Nop discards every event
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) ItemValidated() {}
func (Nop) ItemRejected(string) {}
func (Nop) CacheLookup(bool) {}
func (Nop) ClassificationLatency(string, time.Duration) {}
func (Nop) EarlyExit(string) {}
func (Nop) ItemOutcome(string) {}
func (Nop) BatchSize(int) {}

// Prometheus records events on its own registry
type Prometheus struct {
	registry *prometheus.Registry

	validated   prometheus.Counter
	rejected    *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	earlyExit   *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	batchSize   prometheus.Histogram
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus registers the docclass collectors plus the Go and process
// collectors on a private registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		validated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docclass_items_validated_total",
			Help: "Items that passed validation.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docclass_items_rejected_total",
			Help: "Items rejected by validation, by reason.",
		}, []string{"reason"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docclass_cache_lookups_total",
			Help: "Result cache lookups, by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docclass_classification_seconds",
			Help:    "Time spent in each classifier stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		earlyExit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docclass_early_exit_total",
			Help: "Items accepted before the last stage, by stage.",
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docclass_item_outcomes_total",
			Help: "Final item outcomes, by status.",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docclass_batch_size",
			Help:    "Items per submitted batch.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}

	p.registry.MustRegister(
		p.validated, p.rejected, p.cacheLookup, p.latency, p.earlyExit, p.outcomes, p.batchSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ItemValidated() { p.validated.Inc() }

func (p *Prometheus) ItemRejected(reason string) { p.rejected.WithLabelValues(reason).Inc() }

func (p *Prometheus) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookup.WithLabelValues(result).Inc()
}

func (p *Prometheus) ClassificationLatency(stage string, d time.Duration) {
	p.latency.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) EarlyExit(stage string) { p.earlyExit.WithLabelValues(stage).Inc() }

func (p *Prometheus) ItemOutcome(status string) { p.outcomes.WithLabelValues(status).Inc() }

func (p *Prometheus) BatchSize(n int) { p.batchSize.Observe(float64(n)) }

// Registry exposes the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
