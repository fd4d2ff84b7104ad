package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the country module.
// Tracks mutation counts, store latency per operation and cache effectiveness.
type Metrics struct {
	Submitted     prometheus.Counter
	Updated       prometheus.Counter
	Deleted       prometheus.Counter
	StoreDuration *prometheus.HistogramVec
	StoreErrors   *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
}

// New creates the module metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "countries_submitted_total",
			Help: "Total number of country records written through /submit",
		}),
		Updated: factory.NewCounter(prometheus.CounterOpts{
			Name: "countries_updated_total",
			Help: "Total number of country records updated",
		}),
		Deleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "countries_deleted_total",
			Help: "Total number of country records deleted",
		}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "countries_store_duration_seconds",
			Help:    "Duration of country store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "countries_store_errors_total",
			Help: "Store failures surfaced as internal errors",
		}, []string{"op"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "countries_cache_hits_total",
			Help: "Lookups served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "countries_cache_misses_total",
			Help: "Lookups that fell through to the store",
		}),
	}
}

// ObserveStore records the duration of a store operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	m.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementStoreErrors(op string) {
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementSubmitted() { m.Submitted.Inc() }
func (m *Metrics) IncrementUpdated()   { m.Updated.Inc() }
func (m *Metrics) IncrementDeleted()   { m.Deleted.Inc() }
func (m *Metrics) IncrementCacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) IncrementCacheMiss() { m.CacheMisses.Inc() }
