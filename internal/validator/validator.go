// Package validator runs the statement-level risk rules over a permission set
// independently of any usage data.
package validator

import (
	"sort"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/rulepacks/iam"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/rules"
)

// Validator evaluates permission sets against a fixed rule registry.
// It is safe for concurrent use.
type Validator struct {
	registry *rules.DefaultRuleRegistry
	order    map[models.FindingKind]int
	policy   *policy.PolicyConfig
}

// New returns a Validator loaded with the IAM rule pack. cfg may be nil.
func New(cfg *policy.PolicyConfig) *Validator {
	return NewWithRules(cfg, iam.New()...)
}

// NewWithRules returns a Validator evaluating rs in the given order.
// It panics on duplicate rule IDs.
func NewWithRules(cfg *policy.PolicyConfig, rs ...rules.Rule) *Validator {
	reg := rules.NewDefaultRuleRegistry()
	order := make(map[models.FindingKind]int, len(rs))
	for i, r := range rs {
		reg.Register(r)
		order[models.FindingKind(r.ID())] = i
	}
	return &Validator{registry: reg, order: order, policy: cfg}
}

// RuleIDs returns the registered rule IDs in registration order.
func (v *Validator) RuleIDs() []string {
	return v.registry.IDs()
}

// Validate returns the findings for an anonymous statement set.
func (v *Validator) Validate(set models.PermissionSet) []models.Finding {
	return v.ValidatePrincipal("", set)
}

// ValidatePrincipal returns the findings for principal's statements after
// policy overrides are applied. Findings are ordered by severity descending,
// then statement index ascending, then rule registration order. set is never
// modified.
func (v *Validator) ValidatePrincipal(principal string, set models.PermissionSet) []models.Finding {
	ctx := rules.RuleContext{
		Principal:  principal,
		Statements: set.Clone(),
		Policy:     v.policy,
	}
	findings := policy.ApplyPolicy(v.registry.EvaluateAll(ctx), policy.DomainIAM, v.policy)
	v.sort(findings)
	return findings
}

func (v *Validator) sort(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := models.SeverityRank(a.Severity), models.SeverityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if a.Subject.StatementIndex != b.Subject.StatementIndex {
			return a.Subject.StatementIndex < b.Subject.StatementIndex
		}
		return v.order[a.Kind] < v.order[b.Kind]
	})
}

// Validate runs the default IAM rule pack over set with no policy overrides.
func Validate(set models.PermissionSet) []models.Finding {
	return New(nil).Validate(set)
}
