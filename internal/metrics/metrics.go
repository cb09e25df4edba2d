// Package metrics defines the narrow hooks interface the retrieval core
// reports through and a Prometheus-backed implementation whose collectors
// register against a private *prometheus.Registry, not the global default
// one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ar-io/gatewaycore/internal/types"
)

// Hooks is the narrow surface the data-retrieval core reports into. A
// caller-supplied implementation (or Noop) is threaded through every
// constructor, never read from a package global.
type Hooks interface {
	IncFailure(kind types.ErrorKind)
	IncCacheHit()
	IncCacheMiss()
	SetCacheKeptFiles(n int64)
	SetCacheKeptBytes(n int64)
	ObservePeerWeight(category, peerURL string, weight int)
	IncImported()
	IncIndexed()
	IncVerified(ok bool)
	IncOffsetRepaired()
}

// Noop discards every call; useful where a caller doesn't care about
// metrics (tests, one-off CLI subcommands).
type Noop struct{}

func (Noop) IncFailure(types.ErrorKind)                       {}
func (Noop) IncCacheHit()                                      {}
func (Noop) IncCacheMiss()                                     {}
func (Noop) SetCacheKeptFiles(int64)                           {}
func (Noop) SetCacheKeptBytes(int64)                           {}
func (Noop) ObservePeerWeight(category, peerURL string, w int) {}
func (Noop) IncImported()                                      {}
func (Noop) IncIndexed()                                       {}
func (Noop) IncVerified(bool)                                  {}
func (Noop) IncOffsetRepaired()                                {}

// Prometheus implements Hooks against a private registry rather than
// touching prometheus.DefaultRegisterer; callers own exposing it over
// HTTP.
type Prometheus struct {
	Registry *prometheus.Registry

	failureCounter   *prometheus.CounterVec
	cacheHitCounter  prometheus.Counter
	cacheMissCounter prometheus.Counter
	keptFilesGauge   prometheus.Gauge
	keptBytesGauge   prometheus.Gauge
	peerWeightGauge  *prometheus.GaugeVec

	importedCounter       prometheus.Counter
	indexedCounter        prometheus.Counter
	verifiedCounter       *prometheus.CounterVec
	offsetRepairedCounter prometheus.Counter
}

// NewPrometheus registers every metric against a fresh private registry and
// returns the Hooks implementation backed by it.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		Registry: reg,
		failureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewaycore_retrieval_failures_total",
			Help: "Data retrieval failures by error kind.",
		}, []string{"kind"}),
		cacheHitCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewaycore_cache_hits_total",
			Help: "Filesystem cache hits.",
		}),
		cacheMissCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewaycore_cache_misses_total",
			Help: "Filesystem cache misses.",
		}),
		keptFilesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatewaycore_cache_kept_files",
			Help: "Files retained by the last completed cleanup traversal.",
		}),
		keptBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatewaycore_cache_kept_bytes",
			Help: "Bytes retained by the last completed cleanup traversal.",
		}),
		peerWeightGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatewaycore_peer_weight",
			Help: "Current weight of a peer within a category.",
		}, []string{"category", "peer"}),
		importedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewaycore_worker_imported_total",
			Help: "Transactions recorded by the data importer worker.",
		}),
		indexedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewaycore_worker_indexed_total",
			Help: "Data items recorded by the data-item indexer worker.",
		}),
		verifiedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewaycore_worker_verified_total",
			Help: "Background verification outcomes.",
		}, []string{"result"}),
		offsetRepairedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewaycore_worker_offset_repaired_total",
			Help: "Root-tx records completed by the offset repair worker.",
		}),
	}
	reg.MustRegister(p.failureCounter, p.cacheHitCounter, p.cacheMissCounter, p.keptFilesGauge, p.keptBytesGauge, p.peerWeightGauge,
		p.importedCounter, p.indexedCounter, p.verifiedCounter, p.offsetRepairedCounter)
	return p
}

func (p *Prometheus) IncFailure(kind types.ErrorKind) {
	p.failureCounter.WithLabelValues(kind.String()).Inc()
}

func (p *Prometheus) IncCacheHit()  { p.cacheHitCounter.Inc() }
func (p *Prometheus) IncCacheMiss() { p.cacheMissCounter.Inc() }

func (p *Prometheus) IncImported() { p.importedCounter.Inc() }
func (p *Prometheus) IncIndexed()  { p.indexedCounter.Inc() }

func (p *Prometheus) IncVerified(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	p.verifiedCounter.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncOffsetRepaired() { p.offsetRepairedCounter.Inc() }

func (p *Prometheus) SetCacheKeptFiles(n int64) { p.keptFilesGauge.Set(float64(n)) }
func (p *Prometheus) SetCacheKeptBytes(n int64) { p.keptBytesGauge.Set(float64(n)) }

func (p *Prometheus) ObservePeerWeight(category, peerURL string, weight int) {
	p.peerWeightGauge.WithLabelValues(category, peerURL).Set(float64(weight))
}
