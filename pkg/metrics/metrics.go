package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/crucible/pkg/common"
)

// Collector implements common.Metrics on top of a prometheus registerer.
// Collectors are created lazily on first use and cached by sanitized name,
// so call sites can reference metrics by dotted names without pre-registration.
type Collector struct {
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.Mutex
}

// NewCollector creates a metrics collector backed by the given registerer.
// Pass prometheus.DefaultRegisterer for process-wide metrics.
func NewCollector(registerer prometheus.Registerer) *Collector {
	return &Collector{
		registerer: registerer,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// NewNoopMetrics creates a collector whose metrics are never exported.
func NewNoopMetrics() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

// Counter returns the counter registered under name, creating it on first use.
func (c *Collector) Counter(name string, labels ...common.Label) common.Counter {
	c.mu.Lock()
	vec, exists := c.counters[name]
	if !exists {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sanitize(name),
			Help: name,
		}, labelNames(labels))
		c.registerer.MustRegister(vec)
		c.counters[name] = vec
	}
	c.mu.Unlock()

	return vec.WithLabelValues(labelValues(labels)...)
}

// Gauge returns the gauge registered under name, creating it on first use.
func (c *Collector) Gauge(name string, labels ...common.Label) common.Gauge {
	c.mu.Lock()
	vec, exists := c.gauges[name]
	if !exists {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: sanitize(name),
			Help: name,
		}, labelNames(labels))
		c.registerer.MustRegister(vec)
		c.gauges[name] = vec
	}
	c.mu.Unlock()

	return vec.WithLabelValues(labelValues(labels)...)
}

// Histogram returns the histogram registered under name, creating it on
// first use with default buckets.
func (c *Collector) Histogram(name string, labels ...common.Label) common.Histogram {
	c.mu.Lock()
	vec, exists := c.histograms[name]
	if !exists {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    sanitize(name),
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		c.registerer.MustRegister(vec)
		c.histograms[name] = vec
	}
	c.mu.Unlock()

	return vec.WithLabelValues(labelValues(labels)...)
}

// sanitize converts dotted metric names into the prometheus character set.
func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelNames(labels []common.Label) []string {
	names := make([]string, len(labels))
	for i, label := range labels {
		names[i] = label.Name
	}
	return names
}

func labelValues(labels []common.Label) []string {
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = label.Value
	}
	return values
}
