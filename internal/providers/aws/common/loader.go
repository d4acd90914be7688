package common

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
)

// DefaultAWSClientProvider is the production implementation of AWSClientProvider.
// It reads credentials from the standard AWS shared config and credentials files
// (~/.aws/config and ~/.aws/credentials) using the AWS SDK v2.
//
// Inject a custom ClientFactory via NewDefaultAWSClientProviderWithFactory to
// replace real SDK clients with mocks in unit tests.
type DefaultAWSClientProvider struct {
	factory ClientFactory
	log     logger.Logger
	home    func() (string, error)
}

// NewDefaultAWSClientProvider returns a provider backed by the real AWS SDK.
func NewDefaultAWSClientProvider(log logger.Logger) *DefaultAWSClientProvider {
	return NewDefaultAWSClientProviderWithFactory(NewClientSet, log)
}

// NewDefaultAWSClientProviderWithFactory returns a provider that uses f to
// create its ClientSet. Pass a mock factory in tests. log may be nil.
func NewDefaultAWSClientProviderWithFactory(f ClientFactory, log logger.Logger) *DefaultAWSClientProvider {
	if log == nil {
		log = logger.NewNop()
	}
	return &DefaultAWSClientProvider{factory: f, log: log, home: os.UserHomeDir}
}

// ---------------------------------------------------------------------------
// AWSClientProvider implementation
// ---------------------------------------------------------------------------

// LoadProfile loads the AWS SDK config for the named profile and returns a
// fully populated ProfileConfig including the resolved account ID and
// initialised service clients.
//
// Pass an empty string to load the default profile.
func (p *DefaultAWSClientProvider) LoadProfile(ctx context.Context, profile string) (*ProfileConfig, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		name := profileDisplayName(profile)
		return nil, fmt.Errorf("load AWS profile %q: %w", name, err)
	}

	// Fall back to us-east-1 when the profile has no region configured so
	// that all SDK clients can be constructed successfully.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	clients := p.factory(cfg)

	accountID, callerARN, err := resolveIdentity(ctx, clients.STS)
	if err != nil {
		return nil, fmt.Errorf("resolve account ID for profile %q: %w", profileDisplayName(profile), err)
	}

	return &ProfileConfig{
		ProfileName: profileDisplayName(profile),
		AccountID:   accountID,
		CallerARN:   callerARN,
		Region:      cfg.Region,
		Config:      cfg,
		Clients:     clients,
	}, nil
}

// LoadAllProfiles loads every profile named in the shared credentials and
// config files. A profile that fails to load is logged and left out.
func (p *DefaultAWSClientProvider) LoadAllProfiles(ctx context.Context) ([]*ProfileConfig, error) {
	names, err := sharedProfileNames(p.home)
	if err != nil {
		return nil, fmt.Errorf("discover AWS profiles: %w", err)
	}

	var profiles []*ProfileConfig
	for _, name := range names {
		arg := name
		if name == defaultProfile {
			arg = ""
		}
		pc, err := p.LoadProfile(ctx, arg)
		if err != nil {
			p.log.Warn("skipping AWS profile", logger.String("profile", name), logger.Error(err))
			continue
		}
		profiles = append(profiles, pc)
	}
	p.log.Debug("AWS profiles loaded", logger.Int("found", len(names)), logger.Int("loaded", len(profiles)))
	return profiles, nil
}

// GetActiveRegions returns all AWS regions that are enabled (opted-in) for
// the account associated with cfg. It uses EC2 DescribeRegions, which is a
// global call and works correctly regardless of the client's home region.
func (p *DefaultAWSClientProvider) GetActiveRegions(ctx context.Context, cfg *ProfileConfig) ([]string, error) {
	out, err := cfg.Clients.EC2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		// AllRegions false (default) returns only regions the account has
		// opted into; it excludes disabled / not-subscribed regions.
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions for profile %q: %w", cfg.ProfileName, err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	return regions, nil
}

// ConfigForRegion returns a copy of cfg.Config with Region set to region.
// Use the returned aws.Config to construct region-scoped SDK clients for
// per-region data collection.
func (p *DefaultAWSClientProvider) ConfigForRegion(cfg *ProfileConfig, region string) aws.Config {
	regional := cfg.Config
	regional.Region = region
	return regional
}

// ClientsForRegion builds clients for region through the provider's factory.
// The profile's home-region clients are reused when region matches.
func (p *DefaultAWSClientProvider) ClientsForRegion(cfg *ProfileConfig, region string) *ClientSet {
	if region == cfg.Region && cfg.Clients != nil {
		return cfg.Clients
	}
	return p.factory(p.ConfigForRegion(cfg, region))
}

// ---------------------------------------------------------------------------
// Package-private helpers
// ---------------------------------------------------------------------------

// profileDisplayName returns a human-readable profile identifier. An empty
// string (the default profile) is shown as "default".
func profileDisplayName(profile string) string {
	if profile == "" {
		return defaultProfile
	}
	return profile
}

// resolveIdentity calls STS GetCallerIdentity to retrieve the numeric AWS
// account ID and caller ARN for the credentials loaded in stsClient.
func resolveIdentity(ctx context.Context, stsClient STSClient) (string, string, error) {
	out, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return "", "", fmt.Errorf("STS GetCallerIdentity returned nil account")
	}
	return aws.ToString(out.Account), aws.ToString(out.Arn), nil
}

const defaultProfile = "default"

// sharedProfileNames returns the profiles defined in the shared credentials
// and config files: "default" first, the rest sorted. AWS_SHARED_CREDENTIALS_FILE
// and AWS_CONFIG_FILE override the files under ~/.aws.
func sharedProfileNames(home func() (string, error)) ([]string, error) {
	credsPath, cfgPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"), os.Getenv("AWS_CONFIG_FILE")
	if credsPath == "" || cfgPath == "" {
		dir, err := home()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		if credsPath == "" {
			credsPath = filepath.Join(dir, ".aws", "credentials")
		}
		if cfgPath == "" {
			cfgPath = filepath.Join(dir, ".aws", "config")
		}
	}

	set := make(map[string]struct{})
	for _, src := range []struct {
		path     string
		isConfig bool
	}{{credsPath, false}, {cfgPath, true}} {
		if err := collectSections(src.path, src.isConfig, set); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == defaultProfile) != (names[j] == defaultProfile) {
			return names[i] == defaultProfile
		}
		return names[i] < names[j]
	})
	return names, nil
}

// collectSections adds the profile named by each "[...]" header of path to
// set. In the config file only "[default]" and "[profile NAME]" denote
// profiles; other sections such as "[sso-session x]" are ignored. A missing
// file adds nothing.
func collectSections(path string, isConfig bool, set map[string]struct{}) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		header, ok := strings.CutPrefix(line, "[")
		if !ok {
			continue
		}
		header, ok = strings.CutSuffix(header, "]")
		if !ok {
			continue
		}
		header = strings.TrimSpace(header)
		if isConfig && header != defaultProfile {
			name, isProfile := strings.CutPrefix(header, "profile ")
			if !isProfile {
				continue
			}
			header = strings.TrimSpace(name)
		}
		if header != "" {
			set[header] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}
