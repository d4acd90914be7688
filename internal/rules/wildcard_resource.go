package rules

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// WildcardResourceRule flags Allow statements that apply to every resource.
// An empty resource list counts as "*".
type WildcardResourceRule struct{}

func (r WildcardResourceRule) ID() string   { return string(models.KindWildcardResource) }
func (r WildcardResourceRule) Name() string { return "Wildcard Resource Grant" }

// Evaluate returns one finding per unconstrained Allow statement: MEDIUM when
// every action is read-only, HIGH otherwise.
func (r WildcardResourceRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for i, s := range ctx.Statements {
		if s.Effect != models.EffectAllow || !unconstrained(s) {
			continue
		}

		sev := models.SeverityMedium
		for _, a := range s.Actions {
			if !isReadOnlyAction(a) {
				sev = models.SeverityHigh
				break
			}
		}
		if len(s.Actions) == 0 {
			sev = models.SeverityHigh
		}

		kind := "read-only"
		if sev == models.SeverityHigh {
			kind = "mutating"
		}
		findings = append(findings, statementFinding(models.KindWildcardResource, sev, ctx, i,
			fmt.Sprintf("Statement %d allows %s actions on every resource.", i, kind),
			"Scope the statement to the resources the principal actually uses.",
		))
	}
	return findings
}

func unconstrained(s models.PermissionStatement) bool {
	for _, p := range s.ResourcePatterns() {
		if p == models.Wildcard {
			return true
		}
	}
	return false
}
