package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	awsactivity "github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/activity"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
	awsiampolicy "github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/iampolicy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/file"
)

// FileSource reads activity from a JSON Lines file and existing policies
// from a JSON file. Either path may be empty.
type FileSource struct {
	ActivityPath string
	PoliciesPath string
}

// Gather implements Source. The window is applied later by the analyzer.
func (s FileSource) Gather(_ context.Context, _ coverage.Window) (*AnalysisInput, error) {
	in := &AnalysisInput{Policies: map[string]models.PermissionSet{}}
	if s.ActivityPath != "" {
		recs, diags, err := file.LoadActivity(s.ActivityPath)
		if err != nil {
			return nil, fmt.Errorf("load activity: %w", err)
		}
		in.Records = recs
		in.Diagnostics = append(in.Diagnostics, diags...)
	}
	if s.PoliciesPath != "" {
		sets, diags, err := file.LoadPolicies(s.PoliciesPath)
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		in.Policies = sets
		in.Diagnostics = append(in.Diagnostics, diags...)
	}
	return in, nil
}

// AWSSourceOptions selects the account and log location for an AWSSource.
type AWSSourceOptions struct {
	// Profile is the named AWS profile to use. Empty means the default profile.
	Profile string

	// Regions is an explicit list of regions to read CloudTrail from.
	// When empty all active regions are discovered.
	Regions []string

	// S3Bucket, when set, reads archived CloudTrail log files from S3
	// instead of the LookupEvents API.
	S3Bucket string
	S3Prefix string

	// AllProfiles gathers every profile in the shared AWS config files
	// instead of Profile. Profiles resolving to an account already gathered
	// are skipped.
	AllProfiles bool
}

// AWSSource gathers activity from CloudTrail and existing permissions from
// IAM for one AWS profile.
type AWSSource struct {
	provider common.AWSClientProvider
	activity awsactivity.ActivityCollector
	policies awsiampolicy.PolicyCollector
	opts     AWSSourceOptions
	log      logger.Logger
}

// NewAWSSource wires an AWSSource to the supplied provider and collectors.
func NewAWSSource(
	provider common.AWSClientProvider,
	activity awsactivity.ActivityCollector,
	policies awsiampolicy.PolicyCollector,
	opts AWSSourceOptions,
	log logger.Logger,
) *AWSSource {
	if log == nil {
		log = logger.NewNop()
	}
	return &AWSSource{provider: provider, activity: activity, policies: policies, opts: opts, log: log}
}

// Gather implements Source.
func (s *AWSSource) Gather(ctx context.Context, window coverage.Window) (*AnalysisInput, error) {
	if s.opts.AllProfiles {
		return s.gatherAll(ctx, window)
	}
	profile, err := s.provider.LoadProfile(ctx, s.opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", s.opts.Profile, err)
	}
	return s.gatherProfile(ctx, profile, window)
}

// gatherAll gathers every loadable profile, one account at a time. A
// profile that fails becomes a SOURCE_ERROR diagnostic; the run fails only
// when no profile could be gathered.
func (s *AWSSource) gatherAll(ctx context.Context, window coverage.Window) (*AnalysisInput, error) {
	profiles, err := s.provider.LoadAllProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, errors.New("no AWS profile could be loaded")
	}

	out := &AnalysisInput{Policies: map[string]models.PermissionSet{}}
	seen := make(map[string]string)
	var failed []string
	for _, profile := range profiles {
		if first, dup := seen[profile.AccountID]; dup {
			s.log.Info("skipping profile for account already gathered",
				logger.String("profile", profile.ProfileName),
				logger.String("account_id", profile.AccountID),
				logger.String("gathered_by", first))
			continue
		}
		seen[profile.AccountID] = profile.ProfileName

		in, err := s.gatherProfile(ctx, profile, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("profile skipped", logger.String("profile", profile.ProfileName), logger.Error(err))
			failed = append(failed, profile.ProfileName)
			out.Diagnostics = append(out.Diagnostics, models.Diagnostic{
				Kind:    models.DiagnosticSourceError,
				Source:  "profile:" + profile.ProfileName,
				Message: err.Error(),
			})
			continue
		}
		out.Records = append(out.Records, in.Records...)
		for principal, set := range in.Policies {
			out.Policies[principal] = set
		}
		out.Diagnostics = append(out.Diagnostics, in.Diagnostics...)
	}
	if len(failed) == len(seen) {
		return nil, fmt.Errorf("every AWS profile failed: %s", strings.Join(failed, ", "))
	}
	return out, nil
}

// gatherProfile collects existing policies and activity for one profile.
// Policy diagnostics precede activity diagnostics.
func (s *AWSSource) gatherProfile(ctx context.Context, profile *common.ProfileConfig, window coverage.Window) (*AnalysisInput, error) {
	sets, policyDiags, err := s.policies.Collect(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("collect policies for profile %q: %w", profile.ProfileName, err)
	}

	var (
		records      []models.ActivityRecord
		activityDiag []models.Diagnostic
	)
	if s.opts.S3Bucket != "" {
		reader := awsactivity.NewS3LogReader(profile.Clients.S3, s.log)
		records, activityDiag, err = reader.ReadAll(ctx, s.opts.S3Bucket, s.opts.S3Prefix, window)
		if err != nil {
			return nil, fmt.Errorf("read cloudtrail logs for profile %q: %w", profile.ProfileName, err)
		}
	} else {
		regions, err := s.resolveRegions(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("resolve regions for profile %q: %w", profile.ProfileName, err)
		}
		records, activityDiag, err = s.activity.CollectAll(ctx, profile, s.provider, regions, window)
		if err != nil {
			return nil, fmt.Errorf("collect activity for profile %q: %w", profile.ProfileName, err)
		}
	}

	return &AnalysisInput{
		Records:     records,
		Policies:    sets,
		Diagnostics: append(policyDiags, activityDiag...),
	}, nil
}

// resolveRegions returns the explicit region list when provided, otherwise
// calls GetActiveRegions to discover opted-in regions for the profile.
func (s *AWSSource) resolveRegions(ctx context.Context, profile *common.ProfileConfig) ([]string, error) {
	if len(s.opts.Regions) > 0 {
		return s.opts.Regions, nil
	}
	return s.provider.GetActiveRegions(ctx, profile)
}
