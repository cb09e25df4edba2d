// Package coalesce implements the in-flight request coalescer: for any
// fingerprint, at most one underlying fetch is in flight at a time, and
// additional callers within the TTL attach to it. It is built around
// golang.org/x/sync/singleflight the way the rest of the pack leans on
// golang.org/x/sync for concurrency primitives, extended with per-caller
// cancellation: singleflight.Group alone shares one result among callers
// but has no notion of a caller detaching early, so this package layers a
// waiter-counted context over it: the underlying call's context is
// cancelled only once every attached caller has cancelled its own.
package coalesce

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ar-io/gatewaycore/internal/types"
)

// Group coalesces calls sharing a key within TTL of the first call's start.
type Group struct {
	ttl time.Duration

	mu    sync.Mutex
	calls map[string]*inflight
	sf    singleflight.Group
}

type inflight struct {
	ctx      context.Context
	cancel   context.CancelFunc
	waiters  int
	started  time.Time
}

// New constructs a Group. ttl bounds how long a fingerprint may be reused
// to join an in-flight call. The TTL applies to insertion only; once a
// call is admitted, it runs to completion or cancellation regardless of
// TTL.
func New(ttl time.Duration) *Group {
	return &Group{ttl: ttl, calls: make(map[string]*inflight)}
}

// Do runs fn at most once per key among concurrent callers. Each caller
// supplies its own ctx; cancelling it yields a *types.Error{Kind: Cancelled}
// to that caller only. The shared underlying call's
// context is cancelled only when every attached caller has cancelled or the
// call completes.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	fl := g.attach(key)

	resultCh := make(chan struct{})
	var val interface{}
	var callErr error

	go func() {
		val, callErr, _ = g.sf.Do(key, func() (interface{}, error) {
			return fn(fl.ctx)
		})
		close(resultCh)
	}()

	select {
	case <-resultCh:
		g.detach(key, fl)
		return val, callErr
	case <-ctx.Done():
		g.detach(key, fl)
		return nil, &types.Error{Kind: types.Cancelled, Op: "coalesce." + key, Err: ctx.Err()}
	}
}

func (g *Group) attach(key string) *inflight {
	g.mu.Lock()
	defer g.mu.Unlock()

	fl, ok := g.calls[key]
	if ok && g.ttl > 0 && time.Since(fl.started) > g.ttl {
		ok = false
	}
	if !ok {
		callCtx, cancel := context.WithCancel(context.Background())
		fl = &inflight{ctx: callCtx, cancel: cancel, started: time.Now()}
		g.calls[key] = fl
	}
	fl.waiters++
	return fl
}

func (g *Group) detach(key string, fl *inflight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fl.waiters--
	if fl.waiters <= 0 {
		fl.cancel()
		if g.calls[key] == fl {
			delete(g.calls, key)
		}
	}
}
