package models

import (
	"sort"
	"strings"
)

// Effect is the outcome a statement applies when it matches.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Wildcard matches any action or resource. A pattern ending in Wildcard
// matches every value sharing the text before it.
const Wildcard = "*"

// PermissionStatement is one normalised grant or deny rule. Provider policy
// documents are translated into this form by the policydoc adapter.
// Statements are treated as immutable; helpers never modify the slices.
type PermissionStatement struct {
	Effect     Effect            `json:"effect"`
	Actions    []string          `json:"actions"`
	Resources  []string          `json:"resources"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// Conditional reports whether the statement only applies under conditions.
// Conditions are carried but not evaluated by the analyzer.
func (s PermissionStatement) Conditional() bool {
	return len(s.Conditions) > 0
}

// ResourcePatterns returns the statement's resource patterns. An empty
// resource set is unconstrained and is reported as a single Wildcard.
func (s PermissionStatement) ResourcePatterns() []string {
	if len(s.Resources) == 0 {
		return []string{Wildcard}
	}
	return s.Resources
}

// MatchesAction reports whether any action pattern matches action.
// Action names are compared case-insensitively.
func (s PermissionStatement) MatchesAction(action string) bool {
	for _, p := range s.Actions {
		if MatchPattern(p, action, true) {
			return true
		}
	}
	return false
}

// MatchesResource reports whether any resource pattern matches resource.
func (s PermissionStatement) MatchesResource(resource string) bool {
	for _, p := range s.ResourcePatterns() {
		if MatchPattern(p, resource, false) {
			return true
		}
	}
	return false
}

// Matches reports whether the statement's action and resource patterns both
// match the candidate pair, ignoring effect and conditions.
func (s PermissionStatement) Matches(action, resource string) bool {
	return s.MatchesAction(action) && s.MatchesResource(resource)
}

// specificity is the length of the longest literal prefix among the patterns
// that match the pair. Longer means more specific.
func (s PermissionStatement) specificity(action, resource string) int {
	best := 0
	for _, p := range s.ResourcePatterns() {
		if MatchPattern(p, resource, false) {
			if n := len(strings.TrimSuffix(p, Wildcard)); n > best {
				best = n
			}
		}
	}
	for _, p := range s.Actions {
		if MatchPattern(p, action, true) {
			best += len(strings.TrimSuffix(p, Wildcard))
			break
		}
	}
	return best
}

// Clone returns a deep copy of s.
func (s PermissionStatement) Clone() PermissionStatement {
	out := PermissionStatement{
		Effect:    s.Effect,
		Actions:   append([]string(nil), s.Actions...),
		Resources: append([]string(nil), s.Resources...),
	}
	if s.Conditions != nil {
		out.Conditions = make(map[string]string, len(s.Conditions))
		for k, v := range s.Conditions {
			out.Conditions[k] = v
		}
	}
	return out
}

// PermissionSet is an ordered list of statements evaluated with
// deny-overrides-allow semantics.
type PermissionSet []PermissionStatement

// Decision is the result of evaluating a PermissionSet for one request.
// Statement is the index of the deciding statement, or -1 for the implicit
// deny when nothing matched.
type Decision struct {
	Allowed   bool
	Statement int
}

// Evaluate decides whether action on resource is permitted. It is a pure
// function of the set and its arguments:
//   - any matching unconditional Deny denies; the most specific matching
//     deny is reported as the deciding statement
//   - otherwise the most specific matching Allow allows
//   - otherwise the request is implicitly denied
//
// Conditional Deny statements are not applied because their conditions cannot
// be proven to hold; conditional Allow statements are treated as granting.
func (ps PermissionSet) Evaluate(action, resource string) Decision {
	deny, denySpec := -1, -1
	allow, allowSpec := -1, -1
	for i, s := range ps {
		if !s.Matches(action, resource) {
			continue
		}
		rank := s.specificity(action, resource)
		switch s.Effect {
		case EffectDeny:
			if s.Conditional() {
				continue
			}
			if rank > denySpec {
				deny, denySpec = i, rank
			}
		case EffectAllow:
			if rank > allowSpec {
				allow, allowSpec = i, rank
			}
		}
	}
	if deny >= 0 {
		return Decision{Allowed: false, Statement: deny}
	}
	if allow >= 0 {
		return Decision{Allowed: true, Statement: allow}
	}
	return Decision{Allowed: false, Statement: -1}
}

// Allows is shorthand for Evaluate(action, resource).Allowed.
func (ps PermissionSet) Allows(action, resource string) bool {
	return ps.Evaluate(action, resource).Allowed
}

// Clone returns a deep copy of the set.
func (ps PermissionSet) Clone() PermissionSet {
	if ps == nil {
		return nil
	}
	out := make(PermissionSet, len(ps))
	for i, s := range ps {
		out[i] = s.Clone()
	}
	return out
}

// MatchPattern reports whether pattern matches value. "*" matches anything;
// a trailing "*" matches any value with the preceding prefix; anything else
// must match exactly. foldCase selects case-insensitive comparison.
func MatchPattern(pattern, value string, foldCase bool) bool {
	if pattern == Wildcard {
		return true
	}
	if foldCase {
		pattern = strings.ToLower(pattern)
		value = strings.ToLower(value)
	}
	if strings.HasSuffix(pattern, Wildcard) {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, Wildcard))
	}
	return pattern == value
}

// PatternSubsumes reports whether every value matched by inner is also
// matched by outer.
func PatternSubsumes(outer, inner string, foldCase bool) bool {
	if outer == Wildcard {
		return true
	}
	if foldCase {
		outer = strings.ToLower(outer)
		inner = strings.ToLower(inner)
	}
	if !strings.HasSuffix(outer, Wildcard) {
		return outer == inner
	}
	return strings.HasPrefix(inner, strings.TrimSuffix(outer, Wildcard))
}

// HasWildcard reports whether pattern contains a wildcard.
func HasWildcard(pattern string) bool {
	return strings.Contains(pattern, Wildcard)
}

// SortedUnique returns the distinct values of in, sorted.
func SortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
