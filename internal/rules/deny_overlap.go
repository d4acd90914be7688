package rules

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// DenyOverlapRule flags Allow statements made inert by an unconditional Deny
// that covers every action and resource the Allow grants.
type DenyOverlapRule struct{}

func (r DenyOverlapRule) ID() string   { return string(models.KindDenyOverlap) }
func (r DenyOverlapRule) Name() string { return "Allow Shadowed By Deny" }

// Evaluate returns one LOW finding per shadowed Allow statement, naming the
// first Deny that subsumes it.
func (r DenyOverlapRule) Evaluate(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for i, a := range ctx.Statements {
		if a.Effect != models.EffectAllow || len(a.Actions) == 0 {
			continue
		}
		for j, d := range ctx.Statements {
			if d.Effect != models.EffectDeny || d.Conditional() || !statementSubsumes(d, a) {
				continue
			}
			findings = append(findings, statementFinding(models.KindDenyOverlap, models.SeverityLow, ctx, i,
				fmt.Sprintf("Statement %d is fully overridden by deny statement %d.", i, j),
				"Remove the redundant allow statement.",
			))
			break
		}
	}
	return findings
}

// statementSubsumes reports whether every (action, resource) matched by inner
// is also matched by outer.
func statementSubsumes(outer, inner models.PermissionStatement) bool {
	return allSubsumed(outer.Actions, inner.Actions, true) &&
		allSubsumed(outer.ResourcePatterns(), inner.ResourcePatterns(), false)
}

func allSubsumed(outer, inner []string, foldCase bool) bool {
	for _, in := range inner {
		covered := false
		for _, out := range outer {
			if models.PatternSubsumes(out, in, foldCase) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}
