// Package coverage aggregates allowed activity into the set of
// (actor, action, resource) tuples each principal actually exercised.
package coverage

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// Stats counts how input records were treated during a build.
type Stats struct {
	// Ingested is the number of records that became or confirmed an entry.
	Ingested int `json:"ingested"`
	// Denied records are never usage and are skipped.
	Denied int `json:"denied"`
	// OutOfWindow records fall outside the configured window.
	OutOfWindow int `json:"out_of_window"`
	// Malformed records failed ActivityRecord.Check.
	Malformed int `json:"malformed"`
}

func (s *Stats) add(o Stats) {
	s.Ingested += o.Ingested
	s.Denied += o.Denied
	s.OutOfWindow += o.OutOfWindow
	s.Malformed += o.Malformed
}

// Index is the coverage of one analysis run, queryable by actor.
// It is read-only after Build returns and safe for concurrent readers.
type Index struct {
	byActor     map[string][]models.CoverageEntry
	window      Window
	stats       Stats
	diagnostics []models.Diagnostic
}

// Option configures Build.
type Option func(*options)

type options struct {
	workers int
	window  Window
}

// WithWorkers caps the number of partitions aggregated concurrently.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithWindow drops records whose timestamp lies outside w.
func WithWindow(w Window) Option {
	return func(o *options) { o.window = w }
}

// Build aggregates records into an Index. Only allowed outcomes count as
// usage. Records are partitioned by actor and each partition is aggregated by
// its own goroutine; partitions own disjoint actors so no state is shared
// until the final merge. The result does not depend on input order.
// Empty input yields an empty index.
func Build(records []models.ActivityRecord, opts ...Option) *Index {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	parts := partition(records, o.workers)
	results := make([]partial, len(parts))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range parts {
		g.Go(func() error {
			results[i] = aggregate(records, parts[i], o.window)
			return nil
		})
	}
	_ = g.Wait() // aggregate never fails

	idx := &Index{byActor: make(map[string][]models.CoverageEntry), window: o.window}
	var diags []indexedDiagnostic
	for _, r := range results {
		for actor, entries := range r.byActor {
			idx.byActor[actor] = entries
		}
		idx.stats.add(r.stats)
		diags = append(diags, r.diagnostics...)
	}
	sort.Slice(diags, func(i, j int) bool { return diags[i].pos < diags[j].pos })
	for _, d := range diags {
		idx.diagnostics = append(idx.diagnostics, d.diag)
	}
	return idx
}

// FromEntries re-aggregates already-derived entries. Duplicate keys are
// merged by summing counts and keeping the latest LastSeen, so applying it to
// an index's own entries reproduces that index.
func FromEntries(entries []models.CoverageEntry) *Index {
	merged := make(map[models.CoverageKey]*models.CoverageEntry, len(entries))
	for _, e := range entries {
		if e.OccurrenceCount < 1 {
			continue
		}
		k := e.Key()
		if cur, ok := merged[k]; ok {
			cur.OccurrenceCount += e.OccurrenceCount
			if e.LastSeen.After(cur.LastSeen) {
				cur.LastSeen = e.LastSeen
			}
			continue
		}
		c := e
		merged[k] = &c
	}
	idx := &Index{byActor: make(map[string][]models.CoverageEntry)}
	for _, e := range merged {
		idx.byActor[e.ActorID] = append(idx.byActor[e.ActorID], *e)
		idx.stats.Ingested += e.OccurrenceCount
	}
	for actor := range idx.byActor {
		sortEntries(idx.byActor[actor])
	}
	return idx
}

// Actors returns every actor with at least one entry, sorted.
func (x *Index) Actors() []string {
	actors := make([]string, 0, len(x.byActor))
	for a := range x.byActor {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	return actors
}

// ForActor returns a copy of actor's usage set ordered by action, then
// resource. Unknown actors yield nil.
func (x *Index) ForActor(actor string) []models.CoverageEntry {
	entries := x.byActor[actor]
	if len(entries) == 0 {
		return nil
	}
	return append([]models.CoverageEntry(nil), entries...)
}

// Lookup returns the entry stored under k.
func (x *Index) Lookup(k models.CoverageKey) (models.CoverageEntry, bool) {
	for _, e := range x.byActor[k.ActorID] {
		if e.Action == k.Action && e.ResourceID == k.ResourceID {
			return e, true
		}
	}
	return models.CoverageEntry{}, false
}

// Entries returns all entries, actors in sorted order.
func (x *Index) Entries() []models.CoverageEntry {
	var out []models.CoverageEntry
	for _, a := range x.Actors() {
		out = append(out, x.byActor[a]...)
	}
	return out
}

// Len returns the number of distinct entries.
func (x *Index) Len() int {
	n := 0
	for _, entries := range x.byActor {
		n += len(entries)
	}
	return n
}

// Records expands the index back into activity records: OccurrenceCount
// allowed records per entry, all stamped LastSeen. Building from the result
// reproduces the index.
func (x *Index) Records() []models.ActivityRecord {
	var out []models.ActivityRecord
	for _, e := range x.Entries() {
		for i := 0; i < e.OccurrenceCount; i++ {
			out = append(out, models.ActivityRecord{
				ActorID:    e.ActorID,
				Action:     e.Action,
				ResourceID: e.ResourceID,
				Timestamp:  e.LastSeen,
				Outcome:    models.OutcomeAllowed,
			})
		}
	}
	return out
}

func (x *Index) Window() Window                   { return x.window }
func (x *Index) Stats() Stats                     { return x.stats }
func (x *Index) Diagnostics() []models.Diagnostic { return x.diagnostics }

type indexedDiagnostic struct {
	pos  int
	diag models.Diagnostic
}

type partial struct {
	byActor     map[string][]models.CoverageEntry
	stats       Stats
	diagnostics []indexedDiagnostic
}

// partition assigns record positions to n buckets by actor hash so that all
// records of one actor land in the same bucket.
func partition(records []models.ActivityRecord, n int) [][]int {
	if len(records) == 0 {
		return nil
	}
	if n > len(records) {
		n = len(records)
	}
	parts := make([][]int, n)
	for i, r := range records {
		h := fnv.New32a()
		h.Write([]byte(r.ActorID))
		b := int(h.Sum32() % uint32(n))
		parts[b] = append(parts[b], i)
	}
	return parts
}

// aggregate folds the records at positions into per-actor entries.
func aggregate(records []models.ActivityRecord, positions []int, w Window) partial {
	p := partial{byActor: make(map[string][]models.CoverageEntry)}
	seen := make(map[models.CoverageKey]*models.CoverageEntry)
	for _, pos := range positions {
		r := records[pos]
		if err := r.Check(); err != nil {
			p.stats.Malformed++
			p.diagnostics = append(p.diagnostics, indexedDiagnostic{
				pos: pos,
				diag: models.Diagnostic{
					Kind:    models.DiagnosticMalformedRecord,
					Source:  fmt.Sprintf("record %d", pos),
					Message: err.Error(),
				},
			})
			continue
		}
		if r.Outcome != models.OutcomeAllowed {
			p.stats.Denied++
			continue
		}
		if !w.Contains(r.Timestamp) {
			p.stats.OutOfWindow++
			continue
		}
		p.stats.Ingested++
		k := models.CoverageKey{ActorID: r.ActorID, Action: r.Action, ResourceID: r.ResourceID}
		if e, ok := seen[k]; ok {
			e.OccurrenceCount++
			if r.Timestamp.After(e.LastSeen) {
				e.LastSeen = r.Timestamp
			}
			continue
		}
		seen[k] = &models.CoverageEntry{
			ActorID:         r.ActorID,
			Action:          r.Action,
			ResourceID:      r.ResourceID,
			LastSeen:        r.Timestamp,
			OccurrenceCount: 1,
		}
	}
	for _, e := range seen {
		p.byActor[e.ActorID] = append(p.byActor[e.ActorID], *e)
	}
	for actor := range p.byActor {
		sortEntries(p.byActor[actor])
	}
	return p
}

func sortEntries(entries []models.CoverageEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Action != entries[j].Action {
			return entries[i].Action < entries[j].Action
		}
		return entries[i].ResourceID < entries[j].ResourceID
	})
}
