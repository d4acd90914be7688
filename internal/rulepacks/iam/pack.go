// Package iam provides the least-privilege policy rule pack.
// It groups all statement-level rules into a single New() function that the
// validator wires into a DefaultRuleRegistry.
//
// Convention: every rule pack lives in internal/rulepacks/<domain>/pack.go
// and exposes a single New() func returning []rules.Rule. Registration order
// is the final tie-break when the validator orders findings.
package iam

import "github.com/pankaj-dahiya-devops/dp-leastpriv/internal/rules"

// New returns the default IAM rule pack.
func New() []rules.Rule {
	return []rules.Rule{
		rules.WildcardActionRule{},   // HIGH:     "*" or "service:*" actions
		rules.WildcardResourceRule{}, // HIGH/MED: "*" resources, by action verb
		rules.PassRoleHazardRule{},   // CRITICAL: pass-role without named roles
		rules.DenyOverlapRule{},      // LOW:      allow shadowed by a deny
	}
}
