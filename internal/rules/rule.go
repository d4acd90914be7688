package rules

import (
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
)

// RuleContext carries the permission set of a single principal.
// It is the sole input to Rule.Evaluate and must contain everything a rule
// needs; rules must never make network calls or read external state.
type RuleContext struct {
	// Principal is the identity whose statements are evaluated. It may be
	// empty when a bare statement set is validated.
	Principal string

	// Statements is the principal's existing permission set. Rules report
	// statement positions as indexes into this slice.
	Statements models.PermissionSet

	// Policy holds the active PolicyConfig for threshold overrides. May be nil
	// when no policy file is loaded; rules must treat nil as "use defaults".
	Policy *policy.PolicyConfig
}

// Rule is a single deterministic policy-risk rule.
// Rules must be stateless and safe to call concurrently.
// They must never call the AWS SDK or any external service, and must never
// modify ctx.Statements.
type Rule interface {
	// ID returns the unique, stable identifier for this rule
	// (e.g. "WILDCARD_ACTION"). It equals the FindingKind the rule emits.
	ID() string

	// Name returns a short human-readable rule name.
	Name() string

	// Evaluate inspects the provided context and returns zero or more findings.
	// An empty slice means no issue was detected.
	Evaluate(ctx RuleContext) []models.Finding
}

// RuleRegistry manages the set of active rules and drives evaluation.
type RuleRegistry interface {
	// Register adds a rule to the registry. Panics on duplicate ID.
	Register(rule Rule)

	// All returns all registered rules in registration order.
	All() []Rule

	// EvaluateAll runs every registered rule against ctx and merges results.
	EvaluateAll(ctx RuleContext) []models.Finding
}
