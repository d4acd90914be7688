package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// passRoleActions are the role-hand-off actions.
var passRoleActions = []string{"iam:PassRole", "pass-role"}

// PassRoleHazardRule flags Allow statements that let a principal hand a role
// to a service without naming the roles it may pass.
type PassRoleHazardRule struct{}

func (r PassRoleHazardRule) ID() string   { return string(models.KindPassRoleHazard) }
func (r PassRoleHazardRule) Name() string { return "Unscoped Role Pass" }

// Evaluate returns one CRITICAL finding per Allow statement whose action
// patterns match a pass-role action ("iam:PassRole", "iam:Pass*", "iam:*",
// "*") while any of its resource patterns is a wildcard.
func (r PassRoleHazardRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for i, s := range ctx.Statements {
		if s.Effect != models.EffectAllow || !grantsPassRole(s) {
			continue
		}
		var open []string
		for _, p := range s.ResourcePatterns() {
			if models.HasWildcard(p) {
				open = append(open, p)
			}
		}
		if len(open) == 0 {
			continue
		}
		findings = append(findings, statementFinding(models.KindPassRoleHazard, models.SeverityCritical, ctx, i,
			fmt.Sprintf("Statement %d allows passing roles matching %s; any matching role can be escalated to.", i, strings.Join(open, ", ")),
			"Restrict pass-role to the exact role identifiers the principal needs.",
		))
	}
	return findings
}

func grantsPassRole(s models.PermissionStatement) bool {
	for _, a := range s.Actions {
		for _, pr := range passRoleActions {
			if models.MatchPattern(a, pr, true) {
				return true
			}
		}
	}
	return false
}
