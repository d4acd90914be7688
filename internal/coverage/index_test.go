package coverage

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

var t0 = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func rec(actor, action, resource string, at time.Duration, outcome models.Outcome) models.ActivityRecord {
	return models.ActivityRecord{
		ActorID:    actor,
		Action:     action,
		ResourceID: resource,
		Timestamp:  t0.Add(at),
		Outcome:    outcome,
	}
}

func sampleRecords() []models.ActivityRecord {
	return []models.ActivityRecord{
		rec("alice", "read-object", "bucket/a", 0, models.OutcomeAllowed),
		rec("alice", "read-object", "bucket/a", time.Hour, models.OutcomeAllowed),
		rec("alice", "read-object", "bucket/b", 2*time.Hour, models.OutcomeAllowed),
		rec("alice", "delete-object", "bucket/a", 3*time.Hour, models.OutcomeDenied),
		rec("bob", "delete-object", "bucket/x", 0, models.OutcomeAllowed),
		rec("carol", "list-buckets", "*", 30*time.Minute, models.OutcomeAllowed),
		rec("carol", "list-buckets", "*", 10*time.Minute, models.OutcomeAllowed),
	}
}

func TestBuild_Empty(t *testing.T) {
	idx := Build(nil)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Actors())
	assert.Empty(t, idx.Entries())
	assert.Equal(t, Stats{}, idx.Stats())
}

func TestBuild_AggregatesAndFiltersDenied(t *testing.T) {
	idx := Build(sampleRecords())

	assert.Equal(t, []string{"alice", "bob", "carol"}, idx.Actors())
	assert.Equal(t, 4, idx.Len())

	alice := idx.ForActor("alice")
	require.Len(t, alice, 2)
	assert.Equal(t, "bucket/a", alice[0].ResourceID)
	assert.Equal(t, 2, alice[0].OccurrenceCount)
	assert.Equal(t, t0.Add(time.Hour), alice[0].LastSeen)
	for _, e := range alice {
		assert.NotEqual(t, "delete-object", e.Action, "denied activity must never become coverage")
	}

	carol, ok := idx.Lookup(models.CoverageKey{ActorID: "carol", Action: "list-buckets", ResourceID: "*"})
	require.True(t, ok)
	assert.Equal(t, 2, carol.OccurrenceCount)
	assert.Equal(t, t0.Add(30*time.Minute), carol.LastSeen, "LastSeen is the max timestamp, not the last one read")

	assert.Equal(t, Stats{Ingested: 6, Denied: 1}, idx.Stats())
}

func TestBuild_OrderIndependent(t *testing.T) {
	records := sampleRecords()
	want := Build(records, WithWorkers(1)).Entries()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.ActivityRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Build(shuffled, WithWorkers(1+i%4)).Entries()
		assert.Equal(t, want, got)
	}
}

func TestBuild_MalformedSkippedWithDiagnostic(t *testing.T) {
	records := []models.ActivityRecord{
		rec("alice", "read-object", "bucket/a", 0, models.OutcomeAllowed),
		{ActorID: "", Action: "read-object", ResourceID: "bucket/a", Timestamp: t0, Outcome: models.OutcomeAllowed},
		rec("bob", "read-object", "bucket/a", 0, "unknown"),
	}
	idx := Build(records, WithWorkers(2))

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 2, idx.Stats().Malformed)
	diags := idx.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, models.DiagnosticMalformedRecord, diags[0].Kind)
	assert.Equal(t, "record 1", diags[0].Source)
	assert.Equal(t, "record 2", diags[1].Source)
}

func TestBuild_Window(t *testing.T) {
	w := FixedWindow(t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	idx := Build(sampleRecords(), WithWindow(w))

	alice := idx.ForActor("alice")
	require.Len(t, alice, 2)
	assert.Equal(t, 1, alice[0].OccurrenceCount, "only the 1h read of bucket/a is inside the window")
	assert.Nil(t, idx.ForActor("bob"))
	assert.Equal(t, 3, idx.Stats().OutOfWindow)
	assert.Equal(t, w, idx.Window())
}

func TestRoundTrip_Idempotent(t *testing.T) {
	idx := Build(sampleRecords())

	rebuilt := Build(idx.Records())
	assert.Equal(t, idx.Entries(), rebuilt.Entries())

	again := Build(rebuilt.Records())
	assert.Equal(t, idx.Entries(), again.Entries())
}

func TestFromEntries_Idempotent(t *testing.T) {
	idx := Build(sampleRecords())
	assert.Equal(t, idx.Entries(), FromEntries(idx.Entries()).Entries())
}

func TestFromEntries_MergesDuplicates(t *testing.T) {
	a := models.CoverageEntry{ActorID: "alice", Action: "read", ResourceID: "r", LastSeen: t0, OccurrenceCount: 2}
	b := a
	b.LastSeen = t0.Add(time.Hour)
	b.OccurrenceCount = 3

	idx := FromEntries([]models.CoverageEntry{a, b})
	entries := idx.ForActor("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].OccurrenceCount)
	assert.Equal(t, t0.Add(time.Hour), entries[0].LastSeen)
}

func TestForActor_ReturnsCopy(t *testing.T) {
	idx := Build(sampleRecords())
	entries := idx.ForActor("bob")
	entries[0].OccurrenceCount = 99
	assert.Equal(t, 1, idx.ForActor("bob")[0].OccurrenceCount)
}

func TestSlidingWindow(t *testing.T) {
	w := SlidingWindow(24*time.Hour, t0)
	assert.True(t, w.Contains(t0))
	assert.True(t, w.Contains(t0.Add(-23*time.Hour)))
	assert.False(t, w.Contains(t0.Add(-25*time.Hour)))
	assert.False(t, w.Contains(t0.Add(time.Second)))
	assert.True(t, SlidingWindow(0, t0).Unbounded())
}
