// Package peer implements the weighted peer manager: a live set of peer
// URLs grouped by category, with exponentially-updated weights driving
// cheap weighted-random sampling. Registry refresh runs under a circuit
// breaker; concurrent RefreshPeers calls are not serialized, so each may
// have its own registry call outstanding.
package peer

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/breaker"
	"github.com/ar-io/gatewaycore/internal/types"
)

// DefaultSelectionCacheTTL is how long a computed selection stays valid
// absent any report or refresh.
const DefaultSelectionCacheTTL = 5 * time.Second

// RequestWindowCount bounds the trailing-mean window used by reportSuccess
// to decide whether a response was "fast".
const RequestWindowCount = 20

// Registry is the upstream collaborator that supplies the live peer set for
// a category; refreshPeers calls it under a circuit breaker.
type Registry interface {
	ListPeers(ctx context.Context, category string) ([]types.Peer, error)
}

type categoryState struct {
	mu      sync.RWMutex
	weights map[string]int // peer URL -> weight
	samples map[string][]types.LatencySample

	selCacheMu  sync.Mutex
	selCache    map[string]selCacheEntry
}

type selCacheEntry struct {
	peers   []string
	expires time.Time
}

// Manager maintains per-category peer sets and weights.
type Manager struct {
	log      *logrus.Logger
	registry Registry
	breaker  *breaker.Breaker
	cfg      WeightConfig

	mu         sync.RWMutex
	categories map[string]*categoryState
}

// WeightConfig holds the weight-update and selection-cache tunables.
type WeightConfig struct {
	TemperatureDelta int
	SelectionTTL     time.Duration
}

// DefaultWeightConfig returns the built-in defaults.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{TemperatureDelta: 5, SelectionTTL: DefaultSelectionCacheTTL}
}

// NewManager constructs a Manager. registry may be nil if refreshPeers is
// never called (e.g. in tests that seed peers directly via Seed).
func NewManager(registry Registry, log *logrus.Logger, cfg WeightConfig) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		log:        log,
		registry:   registry,
		breaker:    breaker.New(breaker.DefaultConfig("peer-registry-refresh"), log),
		cfg:        cfg,
		categories: make(map[string]*categoryState),
	}
}

func (m *Manager) category(name string) *categoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[name]
	if !ok {
		c = &categoryState{
			weights:  make(map[string]int),
			samples:  make(map[string][]types.LatencySample),
			selCache: make(map[string]selCacheEntry),
		}
		m.categories[name] = c
	}
	return c
}

// Seed directly installs a peer set for a category at DefaultWeight,
// bypassing the registry. Intended for tests and static configuration.
func (m *Manager) Seed(category string, urls []string) {
	c := m.category(category)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range urls {
		if _, ok := c.weights[u]; !ok {
			c.weights[u] = types.DefaultWeight
		}
	}
}

// GetPeerURLs returns every known peer URL across all categories.
func (m *Manager) GetPeerURLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range m.categories {
		c.mu.RLock()
		for u := range c.weights {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				out = append(out, u)
			}
		}
		c.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// GetWeights returns a snapshot of the category's current weights.
func (m *Manager) GetWeights(category string) map[string]int {
	c := m.category(category)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}

// SelectPeers draws count peer URLs from category without replacement,
// weighted by current weight, additionally shuffled to break ties. Results
// are cached for cfg.SelectionTTL keyed by a fingerprint of the weight
// snapshot, invalidated by any report or refresh.
func (m *Manager) SelectPeers(category string, count int) ([]string, error) {
	c := m.category(category)

	c.mu.RLock()
	n := len(c.weights)
	ids := make([]string, 0, n)
	weights := make([]int, 0, n)
	for id, w := range c.weights {
		ids = append(ids, id)
		weights = append(weights, w)
	}
	c.mu.RUnlock()

	if n == 0 {
		return nil, types.ErrNoPeersAvailable
	}
	if count > n {
		count = n
	}

	sort.Strings(ids) // deterministic ordering feeds the fingerprint and the cumulative array
	weights = reorderWeights(ids, c)

	fp := fingerprint(category, count, ids, weights)
	if cached, ok := c.selCacheGet(fp); ok {
		return cached, nil
	}

	picked := weightedSampleWithoutReplacement(ids, weights, count)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })

	c.selCachePut(fp, picked, m.cfg.SelectionTTL)
	return picked, nil
}

func reorderWeights(ids []string, c *categoryState) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = c.weights[id]
	}
	return out
}

func fingerprint(category string, count int, ids []string, weights []int) string {
	h := xxhash.New()
	h.WriteString(category)
	h.WriteString(":")
	h.WriteString(strconv.Itoa(count))
	for i, id := range ids {
		h.WriteString(":")
		h.WriteString(id)
		h.WriteString("=")
		h.WriteString(strconv.Itoa(weights[i]))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (c *categoryState) selCacheGet(fp string) ([]string, bool) {
	c.selCacheMu.Lock()
	defer c.selCacheMu.Unlock()
	e, ok := c.selCache[fp]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.peers, true
}

func (c *categoryState) selCachePut(fp string, peers []string, ttl time.Duration) {
	c.selCacheMu.Lock()
	defer c.selCacheMu.Unlock()
	c.selCache[fp] = selCacheEntry{peers: peers, expires: time.Now().Add(ttl)}
}

func (c *categoryState) invalidateSelection() {
	c.selCacheMu.Lock()
	defer c.selCacheMu.Unlock()
	c.selCache = make(map[string]selCacheEntry)
}

// weightedSampleWithoutReplacement builds a cumulative-weight prefix array
// and binary-searches it for each of count draws.
func weightedSampleWithoutReplacement(ids []string, weights []int, count int) []string {
	type entry struct {
		id     string
		weight int
	}
	pool := make([]entry, len(ids))
	for i := range ids {
		pool[i] = entry{ids[i], weights[i]}
	}

	out := make([]string, 0, count)
	for len(out) < count && len(pool) > 0 {
		prefix := make([]int, len(pool))
		sum := 0
		for i, e := range pool {
			sum += e.weight
			prefix[i] = sum
		}
		if sum <= 0 {
			// all remaining weights are zero; fall back to uniform pick
			idx := rand.Intn(len(pool))
			out = append(out, pool[idx].id)
			pool = append(pool[:idx], pool[idx+1:]...)
			continue
		}
		target := rand.Intn(sum) + 1
		idx := sort.SearchInts(prefix, target)
		out = append(out, pool[idx].id)
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return out
}

// ReportSuccess raises category/peer's weight by TemperatureDelta, with an
// extra TemperatureDelta each for a response time below the trailing mean
// of the last RequestWindowCount samples and for a throughput above it.
// bytes may be zero when the payload size is unknown; the throughput bump
// is then skipped.
func (m *Manager) ReportSuccess(category, peerURL string, latency time.Duration, bytes int64) {
	c := m.category(category)
	c.mu.Lock()
	defer c.mu.Unlock()

	delta := m.cfg.TemperatureDelta
	samples := c.samples[peerURL]
	if len(samples) > 0 && latency < meanLatency(samples) {
		delta += m.cfg.TemperatureDelta
	}
	if mt := meanThroughput(samples); mt > 0 && bytes > 0 && throughput(latency, bytes) > mt {
		delta += m.cfg.TemperatureDelta
	}
	c.weights[peerURL] = clamp(c.weights[peerURL] + delta)

	samples = append(samples, types.LatencySample{Duration: latency, Bytes: bytes, Observed: time.Now()})
	if len(samples) > RequestWindowCount {
		samples = samples[len(samples)-RequestWindowCount:]
	}
	c.samples[peerURL] = samples

	c.invalidateSelection()
}

// ReportFailure lowers category/peer's weight by TemperatureDelta, floored
// at MinWeight.
func (m *Manager) ReportFailure(category, peerURL string) {
	c := m.category(category)
	c.mu.Lock()
	c.weights[peerURL] = clamp(c.weights[peerURL] - m.cfg.TemperatureDelta)
	c.mu.Unlock()
	c.invalidateSelection()
}

func meanLatency(samples []types.LatencySample) time.Duration {
	var sum time.Duration
	for _, s := range samples {
		sum += s.Duration
	}
	return sum / time.Duration(len(samples))
}

// throughput is bytes per second; a zero latency counts the full payload
// against one nanosecond to avoid dividing by zero.
func throughput(latency time.Duration, bytes int64) float64 {
	if latency <= 0 {
		latency = time.Nanosecond
	}
	return float64(bytes) / latency.Seconds()
}

func meanThroughput(samples []types.LatencySample) float64 {
	var sum float64
	n := 0
	for _, s := range samples {
		if s.Bytes > 0 {
			sum += throughput(s.Duration, s.Bytes)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp(w int) int {
	if w < types.MinWeight {
		return types.MinWeight
	}
	if w > types.MaxWeight {
		return types.MaxWeight
	}
	return w
}

// RefreshPeers replaces category's peer set from the registry, preserving
// survivor weights and seeding new peers at DefaultWeight. Registry errors are logged and swallowed: the previous set
// is retained.
func (m *Manager) RefreshPeers(ctx context.Context, category string) {
	if m.registry == nil {
		return
	}
	var fresh []types.Peer
	err := m.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		fresh, err = m.registry.ListPeers(ctx, category)
		return err
	})
	if err != nil {
		m.log.WithError(err).WithField("category", category).Warn("peer refresh failed, retaining previous set")
		return
	}

	c := m.category(category)
	c.mu.Lock()
	next := make(map[string]int, len(fresh))
	for _, p := range fresh {
		if w, ok := c.weights[p.URL]; ok {
			next[p.URL] = w
		} else {
			next[p.URL] = types.DefaultWeight
		}
	}
	c.weights = next
	c.mu.Unlock()
	c.invalidateSelection()
}
