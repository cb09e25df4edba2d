package rootindex

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/breaker"
	"github.com/ar-io/gatewaycore/internal/types"
)

type guardedBackend struct {
	backend Backend
	br      *breaker.Breaker
}

// CompositeIndex consults an ordered list of backends until one can fully
// resolve an id.
type CompositeIndex struct {
	backends []guardedBackend
	log      *logrus.Entry
}

// New constructs an empty CompositeIndex; backends are added with Add in
// priority order.
func New(log *logrus.Logger) *CompositeIndex {
	if log == nil {
		log = logrus.New()
	}
	return &CompositeIndex{log: log.WithField("component", "rootindex")}
}

// Add appends a backend, guarded by its own circuit breaker with cfg.
func (c *CompositeIndex) Add(b Backend, cfg breaker.Config) {
	c.backends = append(c.backends, guardedBackend{backend: b, br: breaker.New(cfg, nil)})
}

// GetRootTx resolves id by trying each backend in order: the first complete
// result wins immediately; an incomplete result is remembered as a fallback
// in case no later backend improves on it.
func (c *CompositeIndex) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	var fallback *types.RootTxRecord

	for _, gb := range c.backends {
		var rec *types.RootTxRecord
		err := gb.br.Do(ctx, func(ctx context.Context) error {
			var err error
			rec, err = gb.backend.GetRootTx(ctx, id)
			return err
		})
		if err != nil {
			c.log.WithError(err).WithField("backend", gb.backend.Name()).Debug("root-tx backend unavailable")
			continue
		}
		if rec == nil {
			continue
		}
		if rec.Complete {
			return rec, nil
		}
		if fallback == nil {
			fallback = rec
		}
	}

	return fallback, nil
}
