package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// WildcardActionRule flags Allow statements granting every action, or every
// action of a service ("s3:*").
type WildcardActionRule struct{}

func (r WildcardActionRule) ID() string   { return string(models.KindWildcardAction) }
func (r WildcardActionRule) Name() string { return "Wildcard Action Grant" }

// Evaluate returns one HIGH finding per Allow statement that contains a bare
// or service-level action wildcard.
func (r WildcardActionRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for i, s := range ctx.Statements {
		if s.Effect != models.EffectAllow {
			continue
		}
		var wild []string
		for _, a := range s.Actions {
			if isServiceWildcard(a) {
				wild = append(wild, a)
			}
		}
		if len(wild) == 0 {
			continue
		}
		findings = append(findings, statementFinding(models.KindWildcardAction, models.SeverityHigh, ctx, i,
			fmt.Sprintf("Statement %d allows wildcard actions %s.", i, strings.Join(wild, ", ")),
			"Replace wildcard actions with the specific actions the principal uses.",
		))
	}
	return findings
}
