// Package render provides presentation-layer helpers for dp CLI output.
// It is a pure rendering package: no analysis, no scoring, no AWS API calls.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// FindPrincipal returns the section of rep for principal, or nil when the
// report does not contain it.
func FindPrincipal(rep *models.Report, principal string) *models.PrincipalReport {
	if rep == nil {
		return nil
	}
	pr, ok := rep.Principals[principal]
	if !ok {
		return nil
	}
	return &pr
}

// RenderPrincipalExplanation writes a structured breakdown of one principal
// to w. Findings are grouped by kind and kinds are sorted ascending for
// stable output.
//
// Example output:
//
//	PRINCIPAL arn:aws:iam::123456789012:role/app (Score: 17.0)
//	Findings: 2  Gaps: 1  Excess statements: 1
//
//	Findings (2):
//
//	  ✓ UNGRANTED_USAGE [MEDIUM]
//	    - s3:DeleteObject on arn:aws:s3:::bucket/x
//
//	  ✓ UNUSED_GRANT [LOW]
//	    - statement 0
//
//	Minimal policy:
//	  Allow s3:DeleteObject, s3:GetObject → arn:aws:s3:::bucket/*
func RenderPrincipalExplanation(w io.Writer, pr models.PrincipalReport) {
	fmt.Fprintf(w, "PRINCIPAL %s (Score: %.1f)\n", pr.Principal, pr.Score)
	fmt.Fprintf(w, "Findings: %d  Gaps: %d  Excess statements: %d\n", len(pr.Findings), len(pr.Gaps), len(pr.Excess))
	fmt.Fprintln(w)

	byKind := make(map[models.FindingKind][]models.Finding)
	for _, f := range pr.Findings {
		byKind[f.Kind] = append(byKind[f.Kind], f)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "Findings (%d):\n", len(pr.Findings))
	if len(kinds) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, k := range kinds {
		group := byKind[models.FindingKind(k)]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  ✓ %s [%s]\n", k, highestSeverity(group))
		for _, f := range group {
			fmt.Fprintf(w, "    - %s\n", subjectLine(f.Subject))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Minimal policy:")
	if len(pr.MinimalSet) == 0 {
		fmt.Fprintln(w, "  (empty: no observed usage)")
	}
	for _, s := range pr.MinimalSet {
		fmt.Fprintf(w, "  %s %s → %s\n", s.Effect, strings.Join(s.Actions, ", "), strings.Join(s.Resources, ", "))
	}
}

func highestSeverity(findings []models.Finding) models.Severity {
	var top models.Severity
	for _, f := range findings {
		if models.SeverityRank(f.Severity) > models.SeverityRank(top) {
			top = f.Severity
		}
	}
	return top
}

func subjectLine(s models.Subject) string {
	switch {
	case s.Entry != nil:
		return fmt.Sprintf("%s on %s", s.Entry.Action, s.Entry.ResourceID)
	case s.Statement != nil:
		return fmt.Sprintf("statement %d: %s %s on %s", s.StatementIndex, s.Statement.Effect,
			strings.Join(s.Statement.Actions, ", "), strings.Join(s.Statement.Resources, ", "))
	}
	return fmt.Sprintf("statement %d", s.StatementIndex)
}

// WriteExplainJSON writes the principal explanation as indented JSON to w.
//
// When pr is non-nil, the output is:
//
//	{"principal": { ...principal report fields... }}
//
// When pr is nil (principal not found in the report), the output is:
//
//	{"error": "No principal found with ID X"}
func WriteExplainJSON(w io.Writer, pr *models.PrincipalReport, principal string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if pr == nil {
		return enc.Encode(map[string]string{
			"error": fmt.Sprintf("No principal found with ID %s", principal),
		})
	}
	return enc.Encode(map[string]any{
		"principal": pr,
	})
}
