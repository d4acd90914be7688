package models

import "time"

// Severity represents the impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// SeverityRank orders severities: CRITICAL (5) > HIGH (4) > MEDIUM (3) >
// LOW (2) > INFO (1). Unknown severities rank 0.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// FindingKind identifies the rule or reduction outcome that produced a finding.
type FindingKind string

const (
	KindWildcardAction   FindingKind = "WILDCARD_ACTION"
	KindWildcardResource FindingKind = "WILDCARD_RESOURCE"
	KindUnusedGrant      FindingKind = "UNUSED_GRANT"
	KindUngrantedUsage   FindingKind = "UNGRANTED_USAGE"
	KindPassRoleHazard   FindingKind = "PASSROLE_HAZARD"
	KindDenyOverlap      FindingKind = "DENY_OVERLAP"
)

// SubjectType says what a finding points at.
type SubjectType string

const (
	SubjectStatement     SubjectType = "statement"
	SubjectCoverageEntry SubjectType = "coverage_entry"
)

// Subject references the statement or coverage entry a finding is about.
// StatementIndex is the position in the principal's existing PermissionSet
// and is -1 for coverage-entry subjects.
type Subject struct {
	Type           SubjectType          `json:"type"`
	StatementIndex int                  `json:"statement_index"`
	Statement      *PermissionStatement `json:"statement,omitempty"`
	Entry          *CoverageEntry       `json:"entry,omitempty"`
}

// StatementSubject builds a Subject for statement i of a set.
func StatementSubject(i int, s PermissionStatement) Subject {
	c := s.Clone()
	return Subject{Type: SubjectStatement, StatementIndex: i, Statement: &c}
}

// EntrySubject builds a Subject for a coverage entry.
func EntrySubject(e CoverageEntry) Subject {
	return Subject{Type: SubjectCoverageEntry, StatementIndex: -1, Entry: &e}
}

// Finding is a single detected least-privilege issue.
// It is the atomic output unit of the validator and the report assembler.
type Finding struct {
	ID             string      `json:"id"`
	Kind           FindingKind `json:"kind"`
	Principal      string      `json:"principal,omitempty"`
	Severity       Severity    `json:"severity"`
	Subject        Subject     `json:"subject"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// PrincipalReport is the per-principal section of a Report.
type PrincipalReport struct {
	Principal  string                `json:"principal"`
	Score      float64               `json:"score"`
	Findings   []Finding             `json:"findings"`
	MinimalSet PermissionSet         `json:"minimal_set"`
	Gaps       []CoverageEntry       `json:"gaps"`
	Excess     []PermissionStatement `json:"excess"`
}

// Summary aggregates counts across all principals.
type Summary struct {
	Principals       int `json:"principals"`
	TotalFindings    int `json:"total_findings"`
	CriticalFindings int `json:"critical_findings"`
	HighFindings     int `json:"high_findings"`
	MediumFindings   int `json:"medium_findings"`
	LowFindings      int `json:"low_findings"`
	Gaps             int `json:"gaps"`
	Excess           int `json:"excess"`
}

// AnalysisWindow is the inclusive time range of activity an analysis
// considered. Zero bounds mean unbounded.
type AnalysisWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Report is the immutable result of one analysis run. It is either fully
// assembled or not produced at all; callers must not modify it.
type Report struct {
	ReportID     string                     `json:"report_id"`
	GeneratedAt  time.Time                  `json:"generated_at"`
	Window       AnalysisWindow             `json:"window"`
	Principals   map[string]PrincipalReport `json:"principals"`
	OverallScore float64                    `json:"overall_score"`
	Summary      Summary                    `json:"summary"`
	Diagnostics  []Diagnostic               `json:"diagnostics,omitempty"`
}

// PrincipalIDs returns the report's principals in sorted order.
func (r *Report) PrincipalIDs() []string {
	ids := make([]string, 0, len(r.Principals))
	for id := range r.Principals {
		ids = append(ids, id)
	}
	return SortedUnique(ids)
}

// AllFindings returns every finding in the report, principals in sorted
// order, each principal's findings in report order.
func (r *Report) AllFindings() []Finding {
	var out []Finding
	for _, id := range r.PrincipalIDs() {
		out = append(out, r.Principals[id].Findings...)
	}
	return out
}
