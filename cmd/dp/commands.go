package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/config"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/engine"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/metrics"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/output"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policydoc"
	awsactivity "github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/activity"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
	awsiampolicy "github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/iampolicy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/file"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/render"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/store"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/validator"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/version"
)

// enforcementExitCode is returned when dp.yaml enforcement fails a run.
const enforcementExitCode = 2

// app carries state shared by every command: the loaded configuration and
// the logger built from it.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger

	// newAWSProvider is swapped in tests.
	newAWSProvider func(logger.Logger) common.AWSClientProvider
}

func newRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func newApp() *app {
	return &app{
		newAWSProvider: func(log logger.Logger) common.AWSClientProvider {
			return common.NewDefaultAWSClientProvider(log)
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dp",
		Short:         "DevOps Proxy: least-privilege analysis for IAM principals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ~/.config/dp-leastpriv/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override: debug, info, warn or error")

	root.AddCommand(newIAMCmd(a))
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) init() error {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No configuration is needed to print the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}

func newIAMCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iam",
		Short: "Analyse IAM permissions against observed activity",
	}
	cmd.AddCommand(newAnalyzeCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newExplainCmd(a))
	return cmd
}

// analyzeFlags holds every dp iam analyze flag.
type analyzeFlags struct {
	activityPath   string
	policiesPath   string
	profile        string
	allProfiles    bool
	regions        []string
	s3Bucket       string
	s3Prefix       string
	windowDays     int
	since          string
	until          string
	mergeThreshold int
	workers        int
	format         string
	output         string
	emitPolicies   string
	metricsFile    string
	policyPath     string
	noStore        bool
	colored        bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Derive least-privilege policies from activity and report risky grants",
		Long: `Analyze compares the permissions each principal holds with the actions it
actually performed, derives a minimal policy, and reports unused grants,
ungranted usage and risky statements.

Input comes from local files (--activity, --policies) or, when neither is
given, from AWS: IAM for existing policies and CloudTrail (event history or
an S3 log archive with --s3-bucket) for activity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.activityPath, "activity", "", "Activity records file (JSON Lines)")
	fl.StringVar(&f.policiesPath, "policies", "", "Existing policies file (JSON: principal → policy document)")
	fl.StringVar(&f.profile, "profile", "", "AWS profile name (default: config aws.default_profile or credential chain)")
	fl.BoolVar(&f.allProfiles, "all-profiles", false, "Analyze every profile in the shared AWS config files (one pass per account)")
	fl.StringSliceVar(&f.regions, "region", nil, "AWS region(s) to read CloudTrail from (default: all active regions)")
	fl.StringVar(&f.s3Bucket, "s3-bucket", "", "Read CloudTrail log files from this S3 bucket instead of the event history API")
	fl.StringVar(&f.s3Prefix, "s3-prefix", "", "Key prefix of CloudTrail log files in --s3-bucket")
	fl.IntVar(&f.windowDays, "window-days", -1, "Activity window in days ending now; 0 disables the window (default: config analysis.window_days)")
	fl.StringVar(&f.since, "since", "", "Window start, RFC 3339 (overrides --window-days)")
	fl.StringVar(&f.until, "until", "", "Window end, RFC 3339 (overrides --window-days)")
	fl.IntVar(&f.mergeThreshold, "merge-threshold", 0, "Distinct resources under one prefix before a wildcard is emitted (default: config)")
	fl.IntVar(&f.workers, "workers", 0, "Per-principal parallelism (default: config or GOMAXPROCS)")
	fl.StringVar(&f.format, "format", string(engine.ReportFormatTable), "Output format: json or table")
	fl.StringVar(&f.output, "output", "", "Write full JSON report to this file path (in addition to stdout output)")
	fl.StringVar(&f.emitPolicies, "emit-policies", "", "Write each principal's minimal policy document into this directory")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this path")
	fl.StringVar(&f.policyPath, "policy", "", "Policy file (default: ./dp.yaml when present)")
	fl.BoolVar(&f.noStore, "no-store", false, "Do not save the report to the local history store")
	fl.BoolVar(&f.colored, "color", false, "Colour severities in table output")
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, f analyzeFlags) error {
	ctx := cmd.Context()

	pcfg, err := loadPolicyFile(f.policyPath)
	if err != nil {
		return err
	}

	window, err := a.analysisWindow(f, time.Now().UTC())
	if err != nil {
		return err
	}

	src := a.source(f)
	in, err := src.Gather(ctx, window)
	if err != nil {
		return fmt.Errorf("gather input: %w", err)
	}

	opts := engine.Options{
		Window:         window,
		MergeThreshold: firstPositive(f.mergeThreshold, a.cfg.Analysis.MergeThreshold),
		Workers:        firstPositive(f.workers, a.cfg.Analysis.Workers),
		Policy:         pcfg,
	}
	m := metrics.New()
	rep, err := engine.NewDefaultAnalyzer(a.log, m).Analyze(ctx, *in, opts)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if a.cfg.Store.Enabled && !f.noStore {
		if err := saveReport(a.cfg.Store.Path, rep, a.log); err != nil {
			return err
		}
	}
	if f.output != "" {
		if err := writeReportToFile(f.output, rep); err != nil {
			return err
		}
	}
	if f.emitPolicies != "" {
		if err := emitPolicies(f.emitPolicies, rep); err != nil {
			return err
		}
	}
	if path := firstNonEmpty(f.metricsFile, a.cfg.Metrics.TextfilePath); path != "" {
		if err := m.WriteTextfile(path); err != nil {
			return fmt.Errorf("write metrics file %q: %w", path, err)
		}
	}

	if err := renderReport(cmd.OutOrStdout(), rep, f.format, f.colored); err != nil {
		return err
	}
	return enforce(rep.AllFindings(), rep.OverallScore, pcfg)
}

// analysisWindow returns the fixed window given by --since/--until when
// either is set, else the sliding window of --window-days ending at now.
func (a *app) analysisWindow(f analyzeFlags, now time.Time) (coverage.Window, error) {
	if f.since == "" && f.until == "" {
		windowDays := a.cfg.Analysis.WindowDays
		if f.windowDays >= 0 {
			windowDays = f.windowDays
		}
		return coverage.SlidingWindow(time.Duration(windowDays)*24*time.Hour, now), nil
	}
	if f.windowDays >= 0 {
		return coverage.Window{}, fmt.Errorf("--window-days cannot be combined with --since/--until")
	}

	var start, end time.Time
	for _, b := range []struct {
		flag, value string
		dst         *time.Time
	}{{"--since", f.since, &start}, {"--until", f.until, &end}} {
		if b.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.value)
		if err != nil {
			return coverage.Window{}, fmt.Errorf("invalid %s %q: want RFC 3339, e.g. 2026-09-01T00:00:00Z", b.flag, b.value)
		}
		*b.dst = t.UTC()
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return coverage.Window{}, fmt.Errorf("--since %s is after --until %s", f.since, f.until)
	}
	return coverage.FixedWindow(start, end), nil
}

// source picks the input backend: local files when either file flag is
// set, AWS otherwise.
func (a *app) source(f analyzeFlags) engine.Source {
	if f.activityPath != "" || f.policiesPath != "" {
		return engine.FileSource{ActivityPath: f.activityPath, PoliciesPath: f.policiesPath}
	}
	regions := f.regions
	if len(regions) == 0 {
		regions = a.cfg.AWS.Regions
	}
	return engine.NewAWSSource(
		a.newAWSProvider(a.log),
		awsactivity.NewDefaultActivityCollector(a.log),
		awsiampolicy.NewDefaultPolicyCollector(a.log),
		engine.AWSSourceOptions{
			Profile:     firstNonEmpty(f.profile, a.cfg.AWS.DefaultProfile),
			AllProfiles: f.allProfiles,
			Regions:     regions,
			S3Bucket:    f.s3Bucket,
			S3Prefix:    f.s3Prefix,
		},
		a.log,
	)
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		policiesPath string
		policyPath   string
		format       string
		colored      bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check existing policies for risky statements without activity data",
		RunE: func(cmd *cobra.Command, args []string) error {
			pcfg, err := loadPolicyFile(policyPath)
			if err != nil {
				return err
			}
			sets, diags, err := file.LoadPolicies(policiesPath)
			if err != nil {
				return err
			}
			for _, d := range diags {
				a.log.Warn("policy document skipped", logger.String("source", d.Source), logger.String("reason", d.Message))
			}

			v := validator.New(pcfg)
			var findings []models.Finding
			for _, p := range models.SortedUnique(mapKeys(sets)) {
				if policy.Excluded(p, pcfg) {
					continue
				}
				findings = append(findings, v.ValidatePrincipal(p, sets[p])...)
			}

			if format == string(engine.ReportFormatJSON) {
				if err := printJSON(cmd.OutOrStdout(), findings); err != nil {
					return err
				}
			} else {
				output.RenderTable(cmd.OutOrStdout(), findings, output.TableOptions{
					Colored:               colored,
					IncludePrincipal:      true,
					IncludeRecommendation: true,
				})
			}
			return enforce(findings, 0, pcfg)
		},
	}
	cmd.Flags().StringVar(&policiesPath, "policies", "", "Policies file (JSON: principal → policy document)")
	cmd.Flags().StringVar(&policyPath, "policy", "", "Policy file (default: ./dp.yaml when present)")
	cmd.Flags().StringVar(&format, "format", string(engine.ReportFormatTable), "Output format: json or table")
	cmd.Flags().BoolVar(&colored, "color", false, "Colour severities in table output")
	_ = cmd.MarkFlagRequired("policies")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect reports saved by previous analyze runs",
	}

	var listFormat string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sums, err := s.List()
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}
			if listFormat == string(engine.ReportFormatJSON) {
				return printJSON(cmd.OutOrStdout(), sums)
			}
			output.RenderHistory(cmd.OutOrStdout(), sums)
			return nil
		},
	}
	list.Flags().StringVar(&listFormat, "format", string(engine.ReportFormatTable), "Output format: json or table")

	var showFormat string
	show := &cobra.Command{
		Use:   "show REPORT_ID|latest",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			var rep *models.Report
			if args[0] == "latest" {
				rep, err = s.Latest()
			} else {
				rep, err = s.Get(args[0])
			}
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), rep, showFormat, false)
		},
	}
	show.Flags().StringVar(&showFormat, "format", string(engine.ReportFormatTable), "Output format: json or table")

	cmd.AddCommand(list, show)
	return cmd
}

func newExplainCmd(a *app) *cobra.Command {
	var (
		reportID string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "explain PRINCIPAL",
		Short: "Explain the findings and minimal policy of one principal in a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			var rep *models.Report
			if reportID == "latest" {
				rep, err = s.Latest()
			} else {
				rep, err = s.Get(reportID)
			}
			if err != nil {
				return err
			}

			pr := render.FindPrincipal(rep, args[0])
			if format == string(engine.ReportFormatJSON) {
				if err := render.WriteExplainJSON(cmd.OutOrStdout(), pr, args[0]); err != nil {
					return err
				}
				if pr == nil {
					return &exitError{code: 1}
				}
				return nil
			}
			if pr == nil {
				return fmt.Errorf("principal %q not found in report %s", args[0], rep.ReportID)
			}
			render.RenderPrincipalExplanation(cmd.OutOrStdout(), *pr)
			return nil
		},
	}
	cmd.Flags().StringVar(&reportID, "report", "latest", "Report ID to read, or latest")
	cmd.Flags().StringVar(&format, "format", string(engine.ReportFormatTable), "Output format: json or table")
	return cmd
}

func (a *app) openStore() (*store.ReportStore, error) {
	if !a.cfg.Store.Enabled {
		return nil, errors.New("report store is disabled (store.enabled=false)")
	}
	return store.Open(a.cfg.Store.Path, a.log)
}

// loadPolicyFile loads and validates dp.yaml. An explicit path must exist;
// the implicit ./dp.yaml is optional. A nil config means defaults.
func loadPolicyFile(path string) (*policy.PolicyConfig, error) {
	if path == "" {
		if _, err := os.Stat(policy.DefaultPolicyFile); err != nil {
			return nil, nil
		}
		path = policy.DefaultPolicyFile
	}
	cfg, err := policy.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	if errs := policy.Validate(cfg, validator.New(nil).RuleIDs()); len(errs) > 0 {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, errors.Join(errs...))
	}
	return cfg, nil
}

// enforce turns a failed enforcement check into an exitError.
func enforce(findings []models.Finding, score float64, cfg *policy.PolicyConfig) error {
	if policy.ShouldFail(policy.DomainIAM, findings, cfg) {
		return &exitError{code: enforcementExitCode, msg: "enforcement failed: findings at or above fail_on_severity"}
	}
	if policy.ShouldFailScore(policy.DomainIAM, score, cfg) {
		return &exitError{code: enforcementExitCode, msg: fmt.Sprintf("enforcement failed: overall score %.1f reaches fail_on_score", score)}
	}
	return nil
}

func saveReport(path string, rep *models.Report, log logger.Logger) error {
	s, err := store.Open(path, log)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Save(rep); err != nil {
		return err
	}
	log.Info("report saved to history", logger.String("report_id", rep.ReportID))
	return nil
}

// renderReport writes rep as indented JSON or as summary, score and
// findings tables.
func renderReport(w io.Writer, rep *models.Report, format string, colored bool) error {
	switch engine.ReportFormat(format) {
	case engine.ReportFormatJSON:
		return printJSON(w, rep)
	case engine.ReportFormatTable, "":
		output.RenderSummary(w, rep, colored)
		fmt.Fprintln(w)
		output.RenderScores(w, rep)
		fmt.Fprintln(w)
		output.RenderTable(w, rep.AllFindings(), output.TableOptions{Colored: colored, IncludePrincipal: true})
		return nil
	}
	return fmt.Errorf("unknown format %q (want json or table)", format)
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReportToFile serialises report as indented JSON and writes it to path,
// creating or overwriting the file. It does not affect stdout output.
func writeReportToFile(path string, report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// policyFileName maps a principal ID (often an ARN) to a file name.
func policyFileName(principal string) string {
	return unsafeFileChars.ReplaceAllString(principal, "_") + ".json"
}

// emitPolicies writes one policy document per principal with a non-empty
// minimal set.
func emitPolicies(dir string, rep *models.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}
	for _, id := range rep.PrincipalIDs() {
		set := rep.Principals[id].MinimalSet
		if len(set) == 0 {
			continue
		}
		data, err := policydoc.Render(set)
		if err != nil {
			return fmt.Errorf("render policy for %s: %w", id, err)
		}
		path := filepath.Join(dir, policyFileName(id))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write policy file %q: %w", path, err)
		}
	}
	return nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
