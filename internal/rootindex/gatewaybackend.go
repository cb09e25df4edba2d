package rootindex

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/ratelimit"
	"github.com/ar-io/gatewaycore/internal/types"
)

// Gateway is one trusted gateway host to HEAD-probe, with a priority: lower
// numbers are tried first.
type Gateway struct {
	Host     string
	Priority int
}

// GatewayHeaderRateLimit configures the per-gateway token bucket.
type GatewayHeaderRateLimit struct {
	Capacity          int
	TokensPerInterval float64
	Interval          time.Duration
}

// Header names the gateway is expected to set on a successful HEAD
// response. The two offset headers follow the same x-ar-io-* convention as
// the root-transaction-id header and are optional.
const (
	HeaderRootTransactionID  = "x-ar-io-root-transaction-id"
	HeaderRootDataItemOffset = "x-ar-io-root-data-item-offset"
	HeaderRootDataOffset     = "x-ar-io-root-data-offset"
)

// GatewayHeaderBackend answers root-tx lookups with a HEAD request to each
// configured trusted gateway in priority order.
type GatewayHeaderBackend struct {
	client   *http.Client
	gateways []Gateway
	limiters map[string]*ratelimit.Bucket
	cache    *lru.Cache[string, types.RootTxRecord]
	timeout  time.Duration
	log      *logrus.Entry
}

// NewGatewayHeaderBackend builds a backend probing gateways in ascending
// priority order. cacheSize of 0 disables the optional in-memory LRU.
func NewGatewayHeaderBackend(gateways []Gateway, client *http.Client, rl GatewayHeaderRateLimit, cacheSize int, timeout time.Duration, log *logrus.Logger) (*GatewayHeaderBackend, error) {
	if log == nil {
		log = logrus.New()
	}
	if client == nil {
		client = http.DefaultClient
	}

	sorted := append([]Gateway{}, gateways...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	limiters := make(map[string]*ratelimit.Bucket, len(sorted))
	for _, gw := range sorted {
		limiters[gw.Host] = ratelimit.New(rl.Capacity, rl.TokensPerInterval, rl.Interval)
	}

	var cache *lru.Cache[string, types.RootTxRecord]
	if cacheSize > 0 {
		c, err := lru.New[string, types.RootTxRecord](cacheSize)
		if err != nil {
			return nil, err
		}
		cache = c
	}

	return &GatewayHeaderBackend{
		client:   client,
		gateways: sorted,
		limiters: limiters,
		cache:    cache,
		timeout:  timeout,
		log:      log.WithField("component", "rootindex.gateway"),
	}, nil
}

func (b *GatewayHeaderBackend) Name() string { return "gateway-header" }

func (b *GatewayHeaderBackend) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	key := id.String()
	if b.cache != nil {
		if v, ok := b.cache.Get(key); ok {
			rec := v
			return &rec, nil
		}
	}

	for _, gw := range b.gateways {
		if !b.limiters[gw.Host].TryRemove(1) {
			continue // rate limited, try the next gateway this round
		}

		rec, err := b.probe(ctx, gw, key)
		if err != nil {
			b.log.WithError(err).WithField("gateway", gw.Host).Debug("gateway head probe failed")
			continue
		}
		if rec == nil {
			continue
		}
		if b.cache != nil {
			b.cache.Add(key, *rec)
		}
		return rec, nil
	}
	return nil, nil
}

func (b *GatewayHeaderBackend) probe(ctx context.Context, gw Gateway, idB64 string) (*types.RootTxRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, gw.Host+"/"+idB64, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	rootTxIDStr := resp.Header.Get(HeaderRootTransactionID)
	if rootTxIDStr == "" {
		return nil, nil
	}
	rootTxID, err := types.ParseIdentifier(rootTxIDStr)
	if err != nil {
		return nil, nil
	}

	rec := types.RootTxRecord{RootTxID: rootTxID}
	offsetStr := resp.Header.Get(HeaderRootDataItemOffset)
	dataOffsetStr := resp.Header.Get(HeaderRootDataOffset)
	if offsetStr != "" && dataOffsetStr != "" {
		offset, err1 := strconv.ParseInt(offsetStr, 10, 64)
		dataOffset, err2 := strconv.ParseInt(dataOffsetStr, 10, 64)
		if err1 == nil && err2 == nil {
			rec = rec.WithOffsets(offset, dataOffset)
		}
	}
	return &rec, nil
}
