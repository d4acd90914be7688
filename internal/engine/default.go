package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/metrics"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/reducer"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/report"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/scoring"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/validator"
)

// DefaultAnalyzer is the production implementation of Analyzer.
// It coordinates coverage aggregation, reduction, validation, scoring and
// report assembly.
type DefaultAnalyzer struct {
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewDefaultAnalyzer constructs a DefaultAnalyzer. Both arguments may be nil.
func NewDefaultAnalyzer(log logger.Logger, m *metrics.Metrics) *DefaultAnalyzer {
	if log == nil {
		log = logger.NewNop()
	}
	return &DefaultAnalyzer{log: log, metrics: m}
}

// principalResult is the per-principal output of the concurrent stage.
type principalResult struct {
	reduction reducer.PrincipalReduction
	findings  []models.Finding
	score     float64
}

// Analyze implements Analyzer. Excluded principals are dropped first, then
// coverage is built once and every principal is reduced, validated and
// scored independently. The report is produced only when every stage
// succeeds.
func (a *DefaultAnalyzer) Analyze(ctx context.Context, in AnalysisInput, opts Options) (*models.Report, error) {
	start := time.Now()
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	a.log.Info("analysis started",
		logger.Int("records", len(in.Records)),
		logger.Int("policies", len(in.Policies)),
		logger.Time("window_start", opts.Window.Start),
		logger.Time("window_end", opts.Window.End))

	records, policies, excluded := applyExclusions(in.Records, in.Policies, opts.Policy)
	if excluded > 0 {
		a.log.Debug("excluded principals dropped", logger.Int("principals", excluded))
	}

	idx := coverage.Build(records, coverage.WithWindow(opts.Window), coverage.WithWorkers(opts.Workers))
	for _, d := range idx.Diagnostics() {
		a.log.Warn("malformed activity record skipped", logger.String("source", d.Source), logger.String("reason", d.Message))
	}
	if stats := idx.Stats(); stats.OutOfWindow > 0 {
		a.log.Debug("activity outside window dropped", logger.Int("records", stats.OutOfWindow))
	}
	if a.metrics != nil {
		a.metrics.ObserveCoverage(idx.Stats())
	}

	principals := reducer.Principals(idx, policies)
	results, err := a.analyzePrincipals(ctx, idx, policies, principals, opts)
	if err != nil {
		a.observe("error", start)
		return nil, err
	}

	reduction := reducer.ReductionResult{Principals: make(map[string]reducer.PrincipalReduction, len(principals))}
	findings := make(map[string][]models.Finding, len(principals))
	scores := make(map[string]float64, len(principals))
	for i, p := range principals {
		reduction.Principals[p] = results[i].reduction
		findings[p] = results[i].findings
		scores[p] = results[i].score
	}

	diags := append(append([]models.Diagnostic(nil), in.Diagnostics...), idx.Diagnostics()...)
	assembleOpts := []report.Option{
		report.WithWindow(opts.Window.Model()),
		report.WithDiagnostics(diags),
	}
	if opts.ReportID != "" {
		assembleOpts = append(assembleOpts, report.WithReportID(opts.ReportID))
	}
	rep, err := report.Assemble(reduction, findings, scores, now(), assembleOpts...)
	if err != nil {
		a.log.Error("report assembly failed", logger.Error(err))
		a.observe("error", start)
		return nil, fmt.Errorf("assemble report: %w", err)
	}

	if a.metrics != nil {
		a.metrics.ObserveReport(rep)
	}
	a.observe("ok", start)
	a.log.Info("analysis finished",
		logger.String("report_id", rep.ReportID),
		logger.Int("principals", rep.Summary.Principals),
		logger.Int("findings", rep.Summary.TotalFindings),
		logger.Float64("overall_score", rep.OverallScore),
		logger.Duration("elapsed", time.Since(start)))
	return rep, nil
}

// analyzePrincipals fans per-principal work out over a bounded errgroup.
// Each goroutine writes only its own slot, so results need no locking and
// keep principal order.
func (a *DefaultAnalyzer) analyzePrincipals(
	ctx context.Context,
	idx *coverage.Index,
	policies map[string]models.PermissionSet,
	principals []string,
	opts Options,
) ([]principalResult, error) {
	v := validator.New(opts.Policy)
	weights := scoring.WeightsFromPolicy(opts.Policy)
	redCfg := reducer.Config{MergeThreshold: opts.MergeThreshold}

	results := make([]principalResult, len(principals))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, p := range principals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			existing := policies[p]
			red := reducer.ReducePrincipal(idx.ForActor(p), existing, redCfg)
			fs := v.ValidatePrincipal(p, existing)
			results[i] = principalResult{
				reduction: red,
				findings:  fs,
				score:     weights.Score(fs, red.Gaps, red.Excess),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze principals: %w", err)
	}
	return results, nil
}

func (a *DefaultAnalyzer) observe(status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.ObserveRun(status, time.Since(start))
	}
}

// applyExclusions drops records and policies of principals matched by the
// policy file's exclude list. It returns the number of distinct principals
// dropped.
func applyExclusions(
	records []models.ActivityRecord,
	policies map[string]models.PermissionSet,
	cfg *policy.PolicyConfig,
) ([]models.ActivityRecord, map[string]models.PermissionSet, int) {
	if cfg == nil || len(cfg.ExcludePrincipals) == 0 {
		return records, policies, 0
	}
	dropped := make(map[string]struct{})
	keptRecords := make([]models.ActivityRecord, 0, len(records))
	for _, r := range records {
		if policy.Excluded(r.ActorID, cfg) {
			dropped[r.ActorID] = struct{}{}
			continue
		}
		keptRecords = append(keptRecords, r)
	}
	keptPolicies := make(map[string]models.PermissionSet, len(policies))
	for p, set := range policies {
		if policy.Excluded(p, cfg) {
			dropped[p] = struct{}{}
			continue
		}
		keptPolicies[p] = set
	}
	return keptRecords, keptPolicies, len(dropped)
}
