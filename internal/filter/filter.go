// Package filter implements the declarative boolean filter language: a
// recursive grammar over {tags, attributes, and/or/not, always/never,
// isNestedBundle} used by cache policies and index filters. Each grammar
// node is an explicit struct field decoded straight off JSON rather than
// a generic any-typed tree.
package filter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Item is the narrow view over a retrieved object (transaction or data
// item) that a Filter matches against. Tag names/values are base64url
// encoded on the wire, matching Arweave's own tag encoding; Match decodes
// both sides before comparing.
type Item interface {
	Tags() []ItemTag
	Attributes() map[string]string
	IsNestedBundle() bool
	// OwnerPublicKey returns the item's raw owner public key bytes, if the
	// item exposes one.
	OwnerPublicKey() ([]byte, bool)
}

// ItemTag is one base64url-encoded name/value pair as found on an item.
type ItemTag struct {
	Name  string
	Value string
}

// TagMatch describes one required tag on a matching item: Name is always
// required; at most one of Value or ValueStartsWith further constrains it.
type TagMatch struct {
	Name            string `json:"name" yaml:"name"`
	Value           string `json:"value,omitempty" yaml:"value,omitempty"`
	ValueStartsWith string `json:"valueStartsWith,omitempty" yaml:"valueStartsWith,omitempty"`
}

// Filter is one node of the recursive grammar. Exactly one of its fields
// is expected to be meaningfully set; Validate enforces that shape at load
// time so Match itself never has to guess intent.
type Filter struct {
	Always *bool `json:"always,omitempty" yaml:"always,omitempty"`
	Never  *bool `json:"never,omitempty" yaml:"never,omitempty"`

	Tags           []TagMatch        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	IsNestedBundle *bool             `json:"isNestedBundle,omitempty" yaml:"isNestedBundle,omitempty"`

	And []Filter `json:"and,omitempty" yaml:"and,omitempty"`
	Or  []Filter `json:"or,omitempty" yaml:"or,omitempty"`
	Not *Filter  `json:"not,omitempty" yaml:"not,omitempty"`
}

// Validate reports a single descriptive error if f (or any child) does
// not shape up as exactly one grammar alternative.
func (f Filter) Validate() error {
	set := 0
	if f.Always != nil {
		set++
	}
	if f.Never != nil {
		set++
	}
	if f.Tags != nil {
		set++
	}
	if f.Attributes != nil {
		set++
	}
	if f.IsNestedBundle != nil {
		set++
	}
	if f.And != nil {
		set++
	}
	if f.Or != nil {
		set++
	}
	if f.Not != nil {
		set++
	}
	if set != 1 {
		b, _ := json.Marshal(f)
		return fmt.Errorf("filter: expected exactly one grammar alternative, got %d: %s", set, b)
	}
	for _, c := range f.And {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, c := range f.Or {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if f.Not != nil {
		return f.Not.Validate()
	}
	return nil
}

// Match evaluates f against item. It is pure: no side effects, no network
// or disk I/O.
func (f Filter) Match(item Item) bool {
	switch {
	case f.Always != nil:
		return *f.Always
	case f.Never != nil:
		return !*f.Never
	case f.Tags != nil:
		return matchTags(f.Tags, item.Tags())
	case f.Attributes != nil:
		return matchAttributes(f.Attributes, item)
	case f.IsNestedBundle != nil:
		return item.IsNestedBundle() == *f.IsNestedBundle
	case f.And != nil:
		for _, c := range f.And {
			if !c.Match(item) {
				return false
			}
		}
		return true
	case f.Or != nil:
		for _, c := range f.Or {
			if c.Match(item) {
				return true
			}
		}
		return false
	case f.Not != nil:
		return !f.Not.Match(item)
	default:
		return false
	}
}

// matchTags requires every listed tag to be satisfied by some tag on the
// item; independent pairings are permitted (one item tag may satisfy
// multiple TagMatch entries).
func matchTags(want []TagMatch, have []ItemTag) bool {
	for _, w := range want {
		if !anyTagSatisfies(w, have) {
			return false
		}
	}
	return true
}

func anyTagSatisfies(w TagMatch, have []ItemTag) bool {
	for _, t := range have {
		name, err := decodeTagField(t.Name)
		if err != nil || name != w.Name {
			continue
		}
		if w.Value == "" && w.ValueStartsWith == "" {
			return true
		}
		value, err := decodeTagField(t.Value)
		if err != nil {
			continue
		}
		if w.Value != "" && value == w.Value {
			return true
		}
		if w.ValueStartsWith != "" && strings.HasPrefix(value, w.ValueStartsWith) {
			return true
		}
	}
	return false
}

func decodeTagField(b64 string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// matchAttributes requires every listed attribute to equal the item's,
// with the owner_address special case (SHA-256 of the item's owner public
// key, base64url-encoded).
func matchAttributes(want map[string]string, item Item) bool {
	attrs := item.Attributes()
	for name, wantVal := range want {
		if name == "owner_address" {
			owner, ok := item.OwnerPublicKey()
			if !ok {
				return false
			}
			if ownerAddress(owner) != wantVal {
				return false
			}
			continue
		}
		if attrs[name] != wantVal {
			return false
		}
	}
	return true
}
