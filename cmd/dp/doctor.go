package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/store"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/validator"
)

// DoctorResult is the structured output of dp doctor. It can be serialised to
// JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		CallerARN   string `json:"caller_arn,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Policy struct {
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	Store struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
		OK      bool   `json:"ok"`
		Reports int    `json:"reports"`
		Error   string `json:"error,omitempty"`
	} `json:"store"`

	OverallHealthy bool `json:"overall_healthy"`
}

// doctorEnv is everything collectDoctorResult checks.
type doctorEnv struct {
	provider     common.AWSClientProvider
	profile      string
	policyPath   string
	storeEnabled bool
	storePath    string
}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			profile, _ := cmd.Flags().GetString("profile")
			if profile == "" {
				profile = a.cfg.AWS.DefaultProfile
			}
			env := doctorEnv{
				provider:     a.newAWSProvider(a.log),
				profile:      profile,
				policyPath:   policy.DefaultPolicyFile,
				storeEnabled: a.cfg.Store.Enabled,
				storePath:    a.cfg.Store.Path,
			}
			result, err := runDoctor(cmd.Context(), env, cmd.OutOrStdout(), format)
			if err != nil {
				// Rendering failure; let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy.
func runDoctor(ctx context.Context, env doctorEnv, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, env)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, env doctorEnv) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS identity → region discovery.
	// An empty profile string selects the default credential chain.
	result.AWS.Profile = env.profile
	profileCfg, err := env.provider.LoadProfile(ctx, env.profile)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = profileCfg.AccountID
		result.AWS.CallerARN = profileCfg.CallerARN
		if _, err := env.provider.GetActiveRegions(ctx, profileCfg); err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
		}
	}

	// Policy: stat → load → validate (file is optional).
	_, statErr := os.Stat(env.policyPath)
	if statErr == nil {
		result.Policy.Present = true
		cfg, loadErr := policy.LoadPolicy(env.policyPath)
		if loadErr != nil {
			result.Policy.Errors = []string{loadErr.Error()}
		} else {
			errs := policy.Validate(cfg, validator.New(nil).RuleIDs())
			if len(errs) == 0 {
				result.Policy.Valid = true
			} else {
				for _, e := range errs {
					result.Policy.Errors = append(result.Policy.Errors, e.Error())
				}
			}
		}
	} else if !os.IsNotExist(statErr) {
		// Stat error other than "not found": treat as present but unreadable.
		result.Policy.Present = true
		result.Policy.Errors = []string{statErr.Error()}
	}

	// Store: open → count reports (skipped when disabled).
	result.Store.Enabled = env.storeEnabled
	if env.storeEnabled {
		result.Store.Path = env.storePath
		s, err := store.Open(env.storePath, nil)
		if err != nil {
			result.Store.Error = err.Error()
		} else {
			sums, err := s.List()
			if err != nil {
				result.Store.Error = err.Error()
			} else {
				result.Store.OK = true
				result.Store.Reports = len(sums)
			}
			_ = s.Close()
		}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		(!result.Policy.Present || result.Policy.Valid) &&
		(!result.Store.Enabled || result.Store.OK)

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.CallerARN != "" {
			doctorPrint(w, "Caller", "OK", result.AWS.CallerARN)
		}
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", "")
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nPolicy:")
	if !result.Policy.Present {
		doctorPrint(w, "dp.yaml present", "Not found (optional)", "")
	} else {
		doctorPrint(w, "dp.yaml present", "YES", "")
		if result.Policy.Valid {
			doctorPrint(w, "Policy valid", "OK", "")
		} else {
			for _, e := range result.Policy.Errors {
				doctorPrint(w, "Policy valid", "FAIL", e)
			}
		}
	}

	fmt.Fprintln(w, "\nReport store:")
	switch {
	case !result.Store.Enabled:
		doctorPrint(w, "History", "Disabled", "")
	case result.Store.OK:
		doctorPrint(w, "History", "OK", fmt.Sprintf("%d reports in %s", result.Store.Reports, result.Store.Path))
	default:
		doctorPrint(w, "History", "FAIL", result.Store.Error)
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
