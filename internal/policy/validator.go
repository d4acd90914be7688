package policy

import (
	"fmt"
	"sort"
	"strings"
)

// validDomains is the set of recognised audit domain names.
var validDomains = map[string]struct{}{
	DomainIAM: {},
}

// validSeverities is the set of allowed severity strings (upper-case canonical form).
var validSeverities = map[string]struct{}{
	"CRITICAL": {},
	"HIGH":     {},
	"MEDIUM":   {},
	"LOW":      {},
	"INFO":     {},
}

// validScoringKeys are the weight names accepted under scoring.
var validScoringKeys = map[string]struct{}{
	"critical": {},
	"high":     {},
	"medium":   {},
	"low":      {},
	"info":     {},
	"gap":      {},
	"excess":   {},
}

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - domain names must be "iam"
//   - domain min_severity must be a valid severity value if set
//   - rule IDs must appear in availableRuleIDs
//   - rule severity overrides must be valid severity values if set
//   - enforcement domain names must be "iam"
//   - enforcement fail_on_severity must be a valid severity value if set
//   - enforcement fail_on_score must lie in [0, 100]
//   - scoring keys must be known and weights non-negative
//   - exclude_principals entries must be non-empty
//
// All errors are collected before returning; Validate never stops at the first
// error. Map-driven checks are reported in sorted key order.
func Validate(cfg *PolicyConfig, availableRuleIDs []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	knownIDs := make(map[string]struct{}, len(availableRuleIDs))
	for _, id := range availableRuleIDs {
		knownIDs[id] = struct{}{}
	}

	var errs []error

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}

	for _, name := range sortedKeys(cfg.Domains) {
		dcfg := cfg.Domains[name]
		if _, ok := validDomains[name]; !ok {
			errs = append(errs, fmt.Errorf("domains.%s: unknown domain; valid values: iam", name))
		}
		if dcfg.MinSeverity != "" && !validSeverity(dcfg.MinSeverity) {
			errs = append(errs, fmt.Errorf("domains.%s.min_severity: invalid value %q; valid values: CRITICAL, HIGH, MEDIUM, LOW, INFO", name, dcfg.MinSeverity))
		}
	}

	for _, ruleID := range sortedKeys(cfg.Rules) {
		rcfg := cfg.Rules[ruleID]
		if _, ok := knownIDs[ruleID]; !ok {
			errs = append(errs, fmt.Errorf("rules.%s: unknown rule ID", ruleID))
		}
		if rcfg.Severity != "" && !validSeverity(rcfg.Severity) {
			errs = append(errs, fmt.Errorf("rules.%s.severity: invalid value %q; valid values: CRITICAL, HIGH, MEDIUM, LOW, INFO", ruleID, rcfg.Severity))
		}
	}

	for _, domain := range sortedKeys(cfg.Enforcement) {
		enfCfg := cfg.Enforcement[domain]
		if _, ok := validDomains[domain]; !ok {
			errs = append(errs, fmt.Errorf("enforcement.%s: unknown domain; valid values: iam", domain))
		}
		if enfCfg.FailOnSeverity != "" && !validSeverity(enfCfg.FailOnSeverity) {
			errs = append(errs, fmt.Errorf("enforcement.%s.fail_on_severity: invalid value %q; valid values: CRITICAL, HIGH, MEDIUM, LOW, INFO", domain, enfCfg.FailOnSeverity))
		}
		if enfCfg.FailOnScore < 0 || enfCfg.FailOnScore > 100 {
			errs = append(errs, fmt.Errorf("enforcement.%s.fail_on_score: %.2f out of range [0, 100]", domain, enfCfg.FailOnScore))
		}
	}

	for _, key := range sortedKeys(cfg.Scoring) {
		if _, ok := validScoringKeys[key]; !ok {
			errs = append(errs, fmt.Errorf("scoring.%s: unknown weight; valid keys: critical, high, medium, low, info, gap, excess", key))
		}
		if cfg.Scoring[key] < 0 {
			errs = append(errs, fmt.Errorf("scoring.%s: weight must not be negative", key))
		}
	}

	for i, p := range cfg.ExcludePrincipals {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("exclude_principals[%d]: empty principal pattern", i))
		}
	}

	return errs
}

func validSeverity(s string) bool {
	_, ok := validSeverities[strings.ToUpper(s)]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
