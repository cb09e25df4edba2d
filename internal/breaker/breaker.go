// Package breaker provides the three-state circuit breaker guarding every
// outbound call in the gateway core. It wraps github.com/sony/gobreaker:
// a ReadyToTrip policy, an OnStateChange hook for logging, and translation
// of gobreaker's sentinel errors into the shared types.Error taxonomy.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ar-io/gatewaycore/internal/types"
)

// Config tunes the breaker's trip/reset behavior: FailureThreshold
// consecutive failures open it, SuccessThreshold half-open successes close
// it again.
type Config struct {
	Name             string
	FailureThreshold uint32
	SuccessThreshold uint32
	TimeoutMs        int
}

// DefaultConfig returns sensible defaults for a guarded outbound call.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		TimeoutMs:        30_000,
	}
}

// Breaker guards a single failure-prone operation.
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	log *logrus.Entry
}

// New constructs a Breaker. log may be nil, in which case state-change
// events go to a fresh logrus.New() logger (stderr).
func New(cfg Config, log *logrus.Logger) *Breaker {
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("breaker", cfg.Name)

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     time.Duration(cfg.TimeoutMs) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Info("circuit breaker state change")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st), log: entry}
}

// State reports the breaker's current state without side effects beyond
// what the underlying gobreaker does on a read (it may itself surface a
// pending open-to-half-open transition once the timeout has elapsed).
func (b *Breaker) State() string { return b.cb.State().String() }

// Do executes fn under the breaker's protection. If the breaker is open,
// fn is never called and a *types.Error{Kind: CircuitOpen} is returned.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &types.Error{Kind: types.CircuitOpen, Op: "breaker." + b.cb.Name(), Err: err}
	}
	return err
}
