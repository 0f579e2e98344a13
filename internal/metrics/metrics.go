package metrics

import (
	"net/http"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the engine's Prometheus series. A nil *Collector is valid and
// records nothing, so engine code can run without metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	// runsTotal counts finished runs by status
	runsTotal *prometheus.CounterVec
	// runsActive is the number of runs currently executing
	runsActive prometheus.Gauge
	// periodsTotal counts vehicle-periods processed
	periodsTotal prometheus.Counter
	// ownershipAdjustments counts vehicle-periods whose ownership had to be rescaled
	ownershipAdjustments prometheus.Counter
	// irrUnavailable counts IRR evaluations that produced no result
	irrUnavailable prometheus.Counter
	// synthesizedBalances counts end balances assumed from start + cash flow
	synthesizedBalances prometheus.Counter
	// jobDuration tracks worker job latency by job kind
	jobDuration *prometheus.HistogramVec
}

// New registers the engine series on a fresh registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "navgraph_runs_total",
			Help: "Finished calculation runs by status",
		}, []string{"status"}),
		runsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "navgraph_runs_active",
			Help: "Calculation runs currently executing",
		}),
		periodsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "navgraph_vehicle_periods_total",
			Help: "Vehicle-periods processed",
		}),
		ownershipAdjustments: f.NewCounter(prometheus.CounterOpts{
			Name: "navgraph_ownership_adjustments_total",
			Help: "Vehicle-periods whose owner percentages were rescaled to 100",
		}),
		irrUnavailable: f.NewCounter(prometheus.CounterOpts{
			Name: "navgraph_irr_unavailable_total",
			Help: "IRR evaluations that produced no result",
		}),
		synthesizedBalances: f.NewCounter(prometheus.CounterOpts{
			Name: "navgraph_synthesized_balances_total",
			Help: "End balances synthesized from start balance plus cash flow",
		}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "navgraph_job_duration_seconds",
			Help:    "Worker job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"kind"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsActive.Inc()
}

func (c *Collector) RunFinished(status models.RunStatus) {
	if c == nil {
		return
	}
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(string(status)).Inc()
}

func (c *Collector) PeriodProcessed() {
	if c == nil {
		return
	}
	c.periodsTotal.Inc()
}

func (c *Collector) OwnershipAdjusted() {
	if c == nil {
		return
	}
	c.ownershipAdjustments.Inc()
}

func (c *Collector) IRRUnavailable() {
	if c == nil {
		return
	}
	c.irrUnavailable.Inc()
}

func (c *Collector) BalanceSynthesized() {
	if c == nil {
		return
	}
	c.synthesizedBalances.Inc()
}

// ObserveJob records how long one worker job took
func (c *Collector) ObserveJob(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}
