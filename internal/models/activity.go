package models

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the authorization result recorded for one observed action.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// ErrMalformedRecord marks an activity record that cannot be used for
// analysis. Malformed records are skipped and reported as diagnostics; they
// never abort a run.
var ErrMalformedRecord = errors.New("malformed activity record")

// ActivityRecord is one observed API call, normalised from a provider audit
// log (e.g. a CloudTrail event). Records are immutable once ingested.
type ActivityRecord struct {
	ActorID    string    `json:"actor_id"    validate:"required"`
	Action     string    `json:"action"      validate:"required"`
	ResourceID string    `json:"resource_id" validate:"required"`
	Timestamp  time.Time `json:"timestamp"   validate:"required"`
	Outcome    Outcome   `json:"outcome"     validate:"required,oneof=allowed denied"`
}

// Check reports whether r is structurally usable. The returned error wraps
// ErrMalformedRecord.
func (r ActivityRecord) Check() error {
	switch {
	case r.ActorID == "":
		return fmt.Errorf("%w: empty actor", ErrMalformedRecord)
	case r.Action == "":
		return fmt.Errorf("%w: empty action", ErrMalformedRecord)
	case r.ResourceID == "":
		return fmt.Errorf("%w: empty resource", ErrMalformedRecord)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrMalformedRecord)
	case r.Outcome != OutcomeAllowed && r.Outcome != OutcomeDenied:
		return fmt.Errorf("%w: unknown outcome %q", ErrMalformedRecord, r.Outcome)
	}
	return nil
}

// CoverageEntry is one exercised (actor, action, resource) tuple derived from
// allowed activity. It is rebuilt on every analysis run.
type CoverageEntry struct {
	ActorID         string    `json:"actor_id"`
	Action          string    `json:"action"`
	ResourceID      string    `json:"resource_id"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
}

// Key returns the unique identity of the entry.
func (e CoverageEntry) Key() CoverageKey {
	return CoverageKey{ActorID: e.ActorID, Action: e.Action, ResourceID: e.ResourceID}
}

// CoverageKey identifies a coverage entry.
type CoverageKey struct {
	ActorID    string
	Action     string
	ResourceID string
}

// DiagnosticKind classifies a non-fatal problem noticed during a run.
type DiagnosticKind string

const (
	DiagnosticMalformedRecord DiagnosticKind = "MALFORMED_RECORD"
	DiagnosticSkippedPolicy   DiagnosticKind = "SKIPPED_POLICY"
	DiagnosticSourceError     DiagnosticKind = "SOURCE_ERROR"
)

// Diagnostic is a caller-visible note about input that was skipped.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Source  string         `json:"source,omitempty"`
	Message string         `json:"message"`
}
