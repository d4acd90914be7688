// Package report merges reduction results, validator findings and scores
// into the immutable Report of one analysis run.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/reducer"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/scoring"
)

// Option sets optional Report fields.
type Option func(*models.Report)

// WithWindow records the analysis window on the report.
func WithWindow(w models.AnalysisWindow) Option {
	return func(r *models.Report) { r.Window = w }
}

// WithDiagnostics attaches non-fatal diagnostics collected during the run.
func WithDiagnostics(d []models.Diagnostic) Option {
	return func(r *models.Report) { r.Diagnostics = append([]models.Diagnostic(nil), d...) }
}

// WithReportID overrides the generated report ID.
func WithReportID(id string) Option {
	return func(r *models.Report) { r.ReportID = id }
}

// Assemble builds the Report for one run. findings and scores are keyed by
// principal; a principal of the reduction missing from either gets no
// validator findings or a zero score. A key absent from the reduction is an
// upstream inconsistency and yields an *AssemblyError and no report.
//
// For every gap an UNGRANTED_USAGE (MEDIUM) finding is added, and for every
// excess statement an UNUSED_GRANT (LOW) finding. Assemble does not modify its
// inputs.
func Assemble(
	reduction reducer.ReductionResult,
	findings map[string][]models.Finding,
	scores map[string]float64,
	ts time.Time,
	opts ...Option,
) (*models.Report, error) {
	if unknown := unknownPrincipals(reduction, findings); len(unknown) > 0 {
		return nil, &AssemblyError{Principals: unknown, Source: "findings"}
	}
	if unknown := unknownPrincipals(reduction, scores); len(unknown) > 0 {
		return nil, &AssemblyError{Principals: unknown, Source: "scores"}
	}

	rep := &models.Report{
		ReportID:    uuid.NewString(),
		GeneratedAt: ts.UTC(),
		Principals:  make(map[string]models.PrincipalReport, len(reduction.Principals)),
	}
	for _, opt := range opts {
		opt(rep)
	}

	perPrincipal := make(map[string]float64, len(reduction.Principals))
	for _, id := range reduction.PrincipalIDs() {
		red := reduction.Principals[id]

		all := append([]models.Finding(nil), findings[id]...)
		all = append(all, gapFindings(id, red.Gaps)...)
		all = append(all, excessFindings(id, red)...)
		sortFindings(all)

		pr := models.PrincipalReport{
			Principal:  id,
			Score:      scores[id],
			Findings:   all,
			MinimalSet: red.MinimalSet.Clone(),
			Gaps:       append([]models.CoverageEntry(nil), red.Gaps...),
			Excess:     models.PermissionSet(red.Excess).Clone(),
		}
		rep.Principals[id] = pr
		perPrincipal[id] = pr.Score
	}

	rep.OverallScore = scoring.Overall(perPrincipal)
	rep.Summary = computeSummary(rep)
	return rep, nil
}

func unknownPrincipals[V any](reduction reducer.ReductionResult, m map[string]V) []string {
	var out []string
	for id := range m {
		if !reduction.Has(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func gapFindings(principal string, gaps []models.CoverageEntry) []models.Finding {
	out := make([]models.Finding, 0, len(gaps))
	for i, g := range gaps {
		out = append(out, models.Finding{
			ID:        fmt.Sprintf("%s-%s-%d", models.KindUngrantedUsage, principal, i),
			Kind:      models.KindUngrantedUsage,
			Principal: principal,
			Severity:  models.SeverityMedium,
			Subject:   models.EntrySubject(g),
			Message: fmt.Sprintf("%s performed %s on %s %d time(s) without a matching grant.",
				principal, g.Action, g.ResourceID, g.OccurrenceCount),
			Recommendation: "Confirm the access path and grant the action explicitly if it is intended.",
		})
	}
	return out
}

func excessFindings(principal string, red reducer.PrincipalReduction) []models.Finding {
	out := make([]models.Finding, 0, len(red.Excess))
	for i, s := range red.Excess {
		idx := red.ExcessIndexes[i]
		out = append(out, models.Finding{
			ID:        fmt.Sprintf("%s-%s-%d", models.KindUnusedGrant, principal, idx),
			Kind:      models.KindUnusedGrant,
			Principal: principal,
			Severity:  models.SeverityLow,
			Subject:   models.StatementSubject(idx, s),
			Message: fmt.Sprintf("Statement %d (%s %s on %s) was not exercised in the analysis window.",
				idx, s.Effect, strings.Join(s.Actions, ","), strings.Join(s.ResourcePatterns(), ",")),
			Recommendation: "Remove the statement or replace the policy with the minimal set.",
		})
	}
	return out
}

// sortFindings orders findings by severity descending. The sort is stable so
// validator order is kept within a severity.
func sortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return models.SeverityRank(findings[i].Severity) > models.SeverityRank(findings[j].Severity)
	})
}

// computeSummary aggregates finding, gap and excess counts across all
// principals.
func computeSummary(rep *models.Report) models.Summary {
	var s models.Summary
	s.Principals = len(rep.Principals)
	for _, pr := range rep.Principals {
		s.Gaps += len(pr.Gaps)
		s.Excess += len(pr.Excess)
		s.TotalFindings += len(pr.Findings)
		for _, f := range pr.Findings {
			switch f.Severity {
			case models.SeverityCritical:
				s.CriticalFindings++
			case models.SeverityHigh:
				s.HighFindings++
			case models.SeverityMedium:
				s.MediumFindings++
			case models.SeverityLow:
				s.LowFindings++
			}
		}
	}
	return s
}
