package policy

// PolicyConfig is the parsed form of dp.yaml. It tunes which findings the
// analyzer reports, how they are weighted, and when a run fails.
type PolicyConfig struct {
	Version     int                          `yaml:"version"`
	Domains     map[string]DomainConfig      `yaml:"domains"`
	Rules       map[string]RuleConfig        `yaml:"rules"`
	Enforcement map[string]EnforcementConfig `yaml:"enforcement"`

	// Scoring overrides risk weights. Keys: critical, high, medium, low,
	// info, gap, excess.
	Scoring map[string]float64 `yaml:"scoring,omitempty"`

	// ExcludePrincipals lists principals (exact IDs or trailing-"*" patterns)
	// left out of the analysis entirely, e.g. break-glass roles.
	ExcludePrincipals []string `yaml:"exclude_principals,omitempty"`
}

type DomainConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinSeverity string `yaml:"min_severity,omitempty"`
}

type RuleConfig struct {
	Enabled  *bool              `yaml:"enabled,omitempty"`
	Severity string             `yaml:"severity,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty"`
}

// EnforcementConfig gates CI runs. FailOnScore is ignored when zero.
type EnforcementConfig struct {
	FailOnSeverity string  `yaml:"fail_on_severity,omitempty"`
	FailOnScore    float64 `yaml:"fail_on_score,omitempty"`
}
