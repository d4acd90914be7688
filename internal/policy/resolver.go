package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// DomainIAM is the only audit domain the analyzer reports under.
const DomainIAM = "iam"

// ApplyPolicy filters and re-grades findings according to cfg.
// Rule overrides are keyed by finding kind (e.g. "WILDCARD_ACTION").
func ApplyPolicy(findings []models.Finding, domain string, cfg *PolicyConfig) []models.Finding {
	if cfg == nil {
		return findings
	}

	// Domain-level disable
	minRank := 0
	if d, ok := cfg.Domains[domain]; ok {
		if !d.Enabled {
			return []models.Finding{}
		}
		if d.MinSeverity != "" {
			minRank = models.SeverityRank(models.Severity(strings.ToUpper(d.MinSeverity)))
		}
	}

	var result []models.Finding

	for _, f := range findings {
		ruleCfg, hasRule := cfg.Rules[string(f.Kind)]

		// Rule-level disable
		if hasRule && ruleCfg.Enabled != nil && !*ruleCfg.Enabled {
			continue
		}

		// Severity override
		if hasRule && ruleCfg.Severity != "" {
			f.Severity = models.Severity(strings.ToUpper(ruleCfg.Severity))
		}

		if minRank > 0 && models.SeverityRank(f.Severity) < minRank {
			continue
		}

		result = append(result, f)
	}

	return result
}

// RuleEnabled reports whether ruleID may run under cfg. Rules are enabled
// unless explicitly disabled.
func RuleEnabled(ruleID string, cfg *PolicyConfig) bool {
	if cfg == nil {
		return true
	}
	rc, ok := cfg.Rules[ruleID]
	return !ok || rc.Enabled == nil || *rc.Enabled
}

// Excluded reports whether principal matches any exclude_principals entry.
func Excluded(principal string, cfg *PolicyConfig) bool {
	if cfg == nil {
		return false
	}
	for _, p := range cfg.ExcludePrincipals {
		if models.MatchPattern(p, principal, false) {
			return true
		}
	}
	return false
}
