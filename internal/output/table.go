package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/store"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludePrincipal adds a PRINCIPAL column. Use it when findings of
	// several principals are rendered together.
	IncludePrincipal bool

	// IncludeRecommendation adds a RECOMMENDATION column.
	IncludeRecommendation bool
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	if !colored {
		return string(sev)
	}
	code := severityColor(sev)
	if code == "" {
		return string(sev)
	}
	return code + string(sev) + ansiReset
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed
	case models.SeverityHigh:
		return ansiRed
	case models.SeverityMedium:
		return ansiYellow
	case models.SeverityLow:
		return ansiBlue
	}
	return ""
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	code := severityColor(sev)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/label columns.
// A single-char ellipsis replaces the last rune when truncation occurs.
// ARNs keep their tail, which carries the resource name.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return "…" + string(runes[len(runes)-max+1:])
}

// Fixed column display widths.
const (
	wPrincipal = 40
	wSeverity  = 10
	wKind      = 18
	wSubject   = 6
	wMessage   = 60
	wScore     = 7
	wCount     = 9
)

// RenderTable writes a formatted findings table to w.
// Columns are dynamically selected based on opts; the separator line width is
// derived from the header row so all rows align correctly.
//
// Column order:
//
//	[PRINCIPAL]  SEVERITY  KIND  STMT  MESSAGE  [RECOMMENDATION]
//
// STMT is the statement index, or "-" for findings about observed usage.
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	var hb strings.Builder
	if opts.IncludePrincipal {
		hb.WriteString(fmt.Sprintf("%-*s  ", wPrincipal, "PRINCIPAL"))
	}
	hb.WriteString(fmt.Sprintf("%-*s", wSeverity, "SEVERITY"))
	hb.WriteString(fmt.Sprintf("  %-*s", wKind, "KIND"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSubject, "STMT"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "MESSAGE"))
	if opts.IncludeRecommendation {
		hb.WriteString("  RECOMMENDATION")
	}
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		if opts.IncludePrincipal {
			rb.WriteString(fmt.Sprintf("%-*s  ", wPrincipal, truncateField(f.Principal, wPrincipal)))
		}
		rb.WriteString(severityCell(f.Severity, wSeverity, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wKind, truncateField(string(f.Kind), wKind)))
		rb.WriteString(fmt.Sprintf("  %-*s", wSubject, subjectCell(f.Subject)))
		rb.WriteString(fmt.Sprintf("  %-*s", wMessage, ShortenMessage(f.Message, wMessage)))
		if opts.IncludeRecommendation {
			rb.WriteString("  " + f.Recommendation)
		}
		fmt.Fprintln(w, strings.TrimRight(rb.String(), " "))
	}
}

func subjectCell(s models.Subject) string {
	if s.Type != models.SubjectStatement || s.StatementIndex < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", s.StatementIndex)
}

// RenderScores writes one row per principal of rep with its score and
// finding counts, followed by the overall score.
func RenderScores(w io.Writer, rep *models.Report) {
	if rep == nil || len(rep.Principals) == 0 {
		fmt.Fprintln(w, "No principals analysed.")
		return
	}

	header := fmt.Sprintf("%-*s  %*s  %*s  %*s  %*s",
		wPrincipal, "PRINCIPAL", wScore, "SCORE", wCount, "FINDINGS", wCount, "GAPS", wCount, "EXCESS")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, id := range rep.PrincipalIDs() {
		pr := rep.Principals[id]
		fmt.Fprintf(w, "%-*s  %*.1f  %*d  %*d  %*d\n",
			wPrincipal, truncateField(id, wPrincipal),
			wScore, pr.Score,
			wCount, len(pr.Findings),
			wCount, len(pr.Gaps),
			wCount, len(pr.Excess))
	}
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	fmt.Fprintf(w, "%-*s  %*.1f\n", wPrincipal, "OVERALL", wScore, rep.OverallScore)
}

// RenderSummary writes the severity counts and diagnostics count of rep.
func RenderSummary(w io.Writer, rep *models.Report, colored bool) {
	s := rep.Summary
	fmt.Fprintf(w, "Report %s  generated %s\n", rep.ReportID, rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Principals: %d  Findings: %d  (%s %d, %s %d, %s %d, %s %d)\n",
		s.Principals, s.TotalFindings,
		ColorSeverity(models.SeverityCritical, colored), s.CriticalFindings,
		ColorSeverity(models.SeverityHigh, colored), s.HighFindings,
		ColorSeverity(models.SeverityMedium, colored), s.MediumFindings,
		ColorSeverity(models.SeverityLow, colored), s.LowFindings)
	fmt.Fprintf(w, "Gaps: %d  Excess statements: %d  Overall score: %.1f\n", s.Gaps, s.Excess, rep.OverallScore)
	if n := len(rep.Diagnostics); n > 0 {
		fmt.Fprintf(w, "Diagnostics: %d (see JSON output for details)\n", n)
	}
}

// RenderHistory writes stored report summaries, newest first.
func RenderHistory(w io.Writer, sums []store.Summary) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "No stored reports.")
		return
	}
	const wID = 36
	header := fmt.Sprintf("%-*s  %-20s  %*s  %*s  %*s",
		wID, "REPORT ID", "GENERATED", wCount, "PRINCIPAL", wCount, "FINDINGS", wScore, "SCORE")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, s := range sums {
		fmt.Fprintf(w, "%-*s  %-20s  %*d  %*d  %*.1f\n",
			wID, truncateField(s.ReportID, wID),
			s.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
			wCount, s.Principals,
			wCount, s.TotalFindings,
			wScore, s.OverallScore)
	}
}
