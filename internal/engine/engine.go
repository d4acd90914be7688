package engine

import (
	"context"
	"time"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
)

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatJSON  ReportFormat = "json"
	ReportFormatTable ReportFormat = "table"
)

// AnalysisInput is the raw material of one run: observed activity and the
// permission sets principals currently hold, keyed by principal ID.
type AnalysisInput struct {
	Records  []models.ActivityRecord
	Policies map[string]models.PermissionSet

	// Diagnostics are non-fatal notes produced while gathering the input.
	// They are carried into the report unchanged.
	Diagnostics []models.Diagnostic
}

// Options configures a single analysis run.
// It is the sole tuning input to Analyzer.Analyze.
type Options struct {
	// Window bounds the activity considered. The zero Window is unbounded.
	Window coverage.Window

	// MergeThreshold is passed to the reducer. Values below 2 select 2.
	MergeThreshold int

	// Workers caps the concurrency of coverage aggregation and per-principal
	// work. Zero selects GOMAXPROCS.
	Workers int

	// Policy carries dp.yaml overrides. Nil means built-in defaults.
	Policy *policy.PolicyConfig

	// Now stamps the report. Defaults to time.Now.
	Now func() time.Time

	// ReportID overrides the generated report ID.
	ReportID string
}

// Analyzer is the central orchestration interface.
// It turns activity and existing permissions into a fully assembled Report.
//
// Analyzer must not call AWS SDK clients directly; input is gathered by a
// Source beforehand.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput, opts Options) (*models.Report, error)
}

// Source gathers AnalysisInput from one backend (files, AWS APIs, S3).
type Source interface {
	Gather(ctx context.Context, window coverage.Window) (*AnalysisInput, error)
}
