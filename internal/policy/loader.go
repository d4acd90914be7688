package policy

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPolicyFile is the policy file looked up in the working directory.
const DefaultPolicyFile = "dp.yaml"

func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, errors.New("unsupported policy version")
	}

	if cfg.Domains == nil {
		cfg.Domains = make(map[string]DomainConfig)
	}

	if cfg.Rules == nil {
		cfg.Rules = make(map[string]RuleConfig)
	}

	if cfg.Enforcement == nil {
		cfg.Enforcement = make(map[string]EnforcementConfig)
	}

	return &cfg, nil
}
