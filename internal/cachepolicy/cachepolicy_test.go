package cachepolicy

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-io/gatewaycore/internal/filter"
)

type fakeItem struct {
	tags []filter.ItemTag
}

func (f fakeItem) Tags() []filter.ItemTag               { return f.tags }
func (f fakeItem) Attributes() map[string]string        { return nil }
func (f fakeItem) IsNestedBundle() bool                  { return false }
func (f fakeItem) OwnerPublicKey() ([]byte, bool)        { return nil, false }

func b64(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func ardriveTagged() fakeItem {
	return fakeItem{tags: []filter.ItemTag{{Name: b64("App-Name"), Value: b64("ArDrive")}}}
}

const policyJSON = `{
  "version": "1.0",
  "policies": [
    {
      "id": "ArDrive-7yr",
      "name": "ArDrive long-term retention",
      "enabled": true,
      "priority": 100,
      "retentionDays": 2555,
      "filter": {"tags": [{"name": "App-Name", "value": "ArDrive"}]}
    }
  ]
}`

func TestCachePolicyScenario(t *testing.T) {
	policies, err := Load([]byte(policyJSON))
	require.NoError(t, err)

	eval := New(policies, nil)

	dec, err := eval.Evaluate(ardriveTagged())
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "ArDrive-7yr", dec.PolicyID)
	assert.Equal(t, 2555, dec.RetentionDays)
	assert.True(t, dec.ExpiresAt.After(time.Now()))

	dec, err = eval.Evaluate(fakeItem{})
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestCachePolicyPriorityMonotonicity(t *testing.T) {
	raw := `{
	  "version": "1.0",
	  "policies": [
	    {"id": "A", "enabled": true, "priority": 100, "retentionDays": 1, "filter": {"always": true}},
	    {"id": "B", "enabled": true, "priority": 50, "retentionDays": 1, "filter": {"always": true}}
	  ]
	}`
	policies, err := Load([]byte(raw))
	require.NoError(t, err)
	eval := New(policies, nil)

	dec, err := eval.Evaluate(fakeItem{})
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "A", dec.PolicyID)
}

func TestCachePolicyRejectsDuplicateID(t *testing.T) {
	raw := `{
	  "version": "1.0",
	  "policies": [
	    {"id": "dup", "enabled": true, "priority": 1, "retentionDays": 1, "filter": {"always": true}},
	    {"id": "dup", "enabled": true, "priority": 2, "retentionDays": 1, "filter": {"always": true}}
	  ]
	}`
	_, err := Load([]byte(raw))
	assert.Error(t, err)
}

func TestCachePolicySkipsDisabled(t *testing.T) {
	raw := `{
	  "version": "1.0",
	  "policies": [
	    {"id": "off", "enabled": false, "priority": 100, "retentionDays": 1, "filter": {"always": true}},
	    {"id": "on", "enabled": true, "priority": 1, "retentionDays": 1, "filter": {"always": true}}
	  ]
	}`
	policies, err := Load([]byte(raw))
	require.NoError(t, err)
	eval := New(policies, nil)

	dec, err := eval.Evaluate(fakeItem{})
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "on", dec.PolicyID)
}
