// Package cachepolicy implements the cache-policy evaluator: load a
// versioned JSON policy file, validate its shape with
// github.com/go-playground/validator/v10, and pick the highest-priority
// matching policy for a retrieved item. Validation failures surface as one
// summary error per defect.
package cachepolicy

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/filter"
)

// Policy is one retention rule from the policy file.
type Policy struct {
	ID            string        `json:"id" validate:"required"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Priority      int           `json:"priority" validate:"gte=0"`
	RetentionDays int           `json:"retentionDays" validate:"gt=0"`
	Filter        filter.Filter `json:"filter"`
}

// File is the on-disk policy-file shape: {version, policies:[...]}.
type File struct {
	Version  string   `json:"version" validate:"required"`
	Policies []Policy `json:"policies" validate:"dive"`
}

// Decision is the transient result of evaluating an item against a set of
// policies.
type Decision struct {
	PolicyID      string
	RetentionDays int
	ExpiresAt     time.Time
}

// Load parses and validates raw policy-file JSON, failing loudly with a
// single summary error per defect: unique ids, retentionDays >
// 0, and every filter recursively well-formed.
func Load(raw []byte) ([]Policy, error) {
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("cachepolicy: parse policy file: %w", err)
	}

	v := validator.New()
	if err := v.Struct(f); err != nil {
		return nil, fmt.Errorf("cachepolicy: invalid policy file: %w", err)
	}

	seen := make(map[string]bool, len(f.Policies))
	for _, p := range f.Policies {
		if seen[p.ID] {
			return nil, fmt.Errorf("cachepolicy: duplicate policy id %q", p.ID)
		}
		seen[p.ID] = true
		if err := p.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("cachepolicy: policy %q: %w", p.ID, err)
		}
	}

	sorted := append([]Policy{}, f.Policies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return sorted, nil
}

// Evaluator picks the highest-priority matching policy for an item.
type Evaluator struct {
	policies []Policy // pre-sorted descending by priority
	log      *logrus.Entry
	now      func() time.Time
}

// New constructs an Evaluator from already-loaded, priority-sorted
// policies (see Load).
func New(policies []Policy, log *logrus.Logger) *Evaluator {
	if log == nil {
		log = logrus.New()
	}
	return &Evaluator{policies: policies, log: log.WithField("component", "cachepolicy"), now: time.Now}
}

// Evaluate returns the first enabled policy (in descending priority order)
// whose filter matches item, or nil if none match. A panic during a single
// policy's filter evaluation is logged and treated as no match for that
// policy only; evaluation continues with the next one.
func (e *Evaluator) Evaluate(item filter.Item) (decision *Decision, err error) {
	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		if matched := e.safeMatch(p, item); matched {
			expires := e.now().Add(time.Duration(p.RetentionDays) * 24 * time.Hour)
			return &Decision{PolicyID: p.ID, RetentionDays: p.RetentionDays, ExpiresAt: expires}, nil
		}
	}
	return nil, nil
}

// safeMatch recovers from a panicking filter and logs it as a policy
// evaluation error.
func (e *Evaluator) safeMatch(p Policy, item filter.Item) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("policy", p.ID).WithField("panic", r).Error("cache policy evaluation failed")
			matched = false
		}
	}()
	return p.Filter.Match(item)
}
