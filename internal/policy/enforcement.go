package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// ShouldFail reports whether any finding in findings has a severity at or above
// the configured fail_on_severity threshold for the given domain.
//
// It returns false when:
//   - cfg is nil (no policy loaded)
//   - no enforcement block is configured for domain
//   - fail_on_severity is empty or an unrecognised value
//   - findings is empty
//
// It returns true when at least one finding has a severity whose rank is
// greater than or equal to the configured threshold rank.
func ShouldFail(domain string, findings []models.Finding, cfg *PolicyConfig) bool {
	if cfg == nil {
		return false
	}
	enfCfg, ok := cfg.Enforcement[domain]
	if !ok || enfCfg.FailOnSeverity == "" {
		return false
	}
	threshold := models.SeverityRank(models.Severity(strings.ToUpper(enfCfg.FailOnSeverity)))
	if threshold == 0 {
		return false
	}
	for _, f := range findings {
		if models.SeverityRank(f.Severity) >= threshold {
			return true
		}
	}
	return false
}

// ShouldFailScore reports whether score reaches the domain's fail_on_score.
// A zero or absent fail_on_score never fails.
func ShouldFailScore(domain string, score float64, cfg *PolicyConfig) bool {
	if cfg == nil {
		return false
	}
	enfCfg, ok := cfg.Enforcement[domain]
	if !ok || enfCfg.FailOnScore <= 0 {
		return false
	}
	return score >= enfCfg.FailOnScore
}
