package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

const activityJSONL = `{"actor_id":"alice","action":"read-object","resource_id":"bucket/a","timestamp":"2026-09-01T10:00:00Z","outcome":"allowed"}

{"actor_id":"alice","action":"read-object","resource_id":"bucket/b","timestamp":"2026-09-01T11:00:00Z","outcome":"allowed"}
{"actor_id":"","action":"read-object","resource_id":"bucket/b","timestamp":"2026-09-01T11:00:00Z","outcome":"allowed"}
{"actor_id":"bob","action":"delete-object","resource_id":"bucket/x","timestamp":"2026-09-01T12:00:00Z","outcome":"maybe"}
not json
{"actor_id":"bob","action":"delete-object","resource_id":"bucket/x","timestamp":"2026-09-02T12:00:00Z","outcome":"denied"}
`

func TestReadActivity(t *testing.T) {
	records, diags, err := ReadActivity(strings.NewReader(activityJSONL), "activity.jsonl")
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, models.ActivityRecord{
		ActorID:    "alice",
		Action:     "read-object",
		ResourceID: "bucket/a",
		Timestamp:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		Outcome:    models.OutcomeAllowed,
	}, records[0])
	assert.Equal(t, models.OutcomeDenied, records[2].Outcome)

	require.Len(t, diags, 3)
	assert.Equal(t, "activity.jsonl:4", diags[0].Source)
	assert.Equal(t, "activity.jsonl:5", diags[1].Source)
	assert.Equal(t, "activity.jsonl:6", diags[2].Source)
	for _, d := range diags {
		assert.Equal(t, models.DiagnosticMalformedRecord, d.Kind)
	}
}

func TestLoadActivity_MissingFile(t *testing.T) {
	_, _, err := LoadActivity(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestLoadPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	content := `{
  "carol": {"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]},
  "alice": [
    {"Statement": [{"Effect": "Allow", "Action": "read-object", "Resource": "bucket/*"}]},
    {"Statement": [{"Effect": "Allow", "NotAction": "iam:*", "Resource": "*"}]},
    {"Statement": [{"Effect": "Deny", "Action": "delete-object", "Resource": "bucket/*"}]}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	sets, diags, err := LoadPolicies(path)
	require.NoError(t, err)

	require.Len(t, sets, 2)
	require.Len(t, sets["alice"], 2)
	assert.Equal(t, models.EffectDeny, sets["alice"][1].Effect)
	assert.Equal(t, []string{"*"}, sets["carol"][0].Actions)

	require.Len(t, diags, 1)
	assert.Equal(t, models.DiagnosticSkippedPolicy, diags[0].Kind)
	assert.True(t, strings.HasSuffix(diags[0].Source, ":alice[1]"))
}

func TestParsePolicies_InvalidJSON(t *testing.T) {
	_, _, err := ParsePolicies([]byte(`[1,2]`), "x")
	assert.Error(t, err)
}
