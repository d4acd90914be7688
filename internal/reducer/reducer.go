// Package reducer derives least-privilege permission sets from observed
// coverage and compares them with the permissions a principal already holds.
package reducer

import (
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// DefaultMergeThreshold is the minimum number of distinct concrete resources
// sharing a parent prefix before they are collapsed into one wildcard pattern.
const DefaultMergeThreshold = 2

// Config controls reduction heuristics.
type Config struct {
	// MergeThreshold is the minimum number of distinct resources under one
	// parent prefix required to emit a "prefix/*" pattern. Values below 2 are
	// raised to 2: a single-resource usage is never wildcarded.
	MergeThreshold int
}

func (c Config) threshold() int {
	if c.MergeThreshold < DefaultMergeThreshold {
		return DefaultMergeThreshold
	}
	return c.MergeThreshold
}

// PrincipalReduction is the reduction outcome for one principal.
type PrincipalReduction struct {
	// MinimalSet covers every coverage entry of the principal.
	MinimalSet models.PermissionSet
	// Gaps are entries the existing set would not have allowed.
	Gaps []models.CoverageEntry
	// Excess are existing statements no entry of the principal matched.
	Excess []models.PermissionStatement
	// ExcessIndexes holds the position of each Excess statement in the
	// principal's existing set.
	ExcessIndexes []int
}

// ReductionResult holds the per-principal reductions of one run. Its key set
// is the union of principals seen in coverage and in the existing policies.
type ReductionResult struct {
	Principals map[string]PrincipalReduction
}

// PrincipalIDs returns the reduced principals in sorted order.
func (r ReductionResult) PrincipalIDs() []string {
	ids := make([]string, 0, len(r.Principals))
	for id := range r.Principals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether principal is part of the result.
func (r ReductionResult) Has(principal string) bool {
	_, ok := r.Principals[principal]
	return ok
}

// Reduce runs ReducePrincipal for every principal in index or existing.
func Reduce(index *coverage.Index, existing map[string]models.PermissionSet, cfg Config) ReductionResult {
	out := ReductionResult{Principals: make(map[string]PrincipalReduction)}
	for _, p := range Principals(index, existing) {
		out.Principals[p] = ReducePrincipal(index.ForActor(p), existing[p], cfg)
	}
	return out
}

// Principals returns the sorted union of actors in index and keys of existing.
func Principals(index *coverage.Index, existing map[string]models.PermissionSet) []string {
	ids := index.Actors()
	for p := range existing {
		ids = append(ids, p)
	}
	return models.SortedUnique(ids)
}

// ReducePrincipal reduces one principal's usage against its existing set.
// It is a pure function and safe to run concurrently for distinct principals.
func ReducePrincipal(entries []models.CoverageEntry, existing models.PermissionSet, cfg Config) PrincipalReduction {
	var red PrincipalReduction
	red.MinimalSet = minimalSet(entries, cfg.threshold())

	for _, e := range entries {
		if !existing.Allows(e.Action, e.ResourceID) {
			red.Gaps = append(red.Gaps, e)
		}
	}

	for i, s := range existing {
		if !exercised(s, entries) {
			red.Excess = append(red.Excess, s.Clone())
			red.ExcessIndexes = append(red.ExcessIndexes, i)
		}
	}
	return red
}

// exercised reports whether any entry matches the statement's patterns.
func exercised(s models.PermissionStatement, entries []models.CoverageEntry) bool {
	for _, e := range entries {
		if s.Matches(e.Action, e.ResourceID) {
			return true
		}
	}
	return false
}

// actionSet holds actions keyed by their lower-cased form, since action
// matching ignores case. The value is the smallest spelling seen, so the
// result does not depend on insertion order.
type actionSet map[string]string

func (s actionSet) add(action string) {
	k := strings.ToLower(action)
	if cur, ok := s[k]; !ok || action < cur {
		s[k] = action
	}
}

// resourceClass is a group of concrete resources that will share one
// statement.
type resourceClass struct {
	pattern string
	actions actionSet
}

// minimalSet emits one Allow statement per resource class.
//
// Resources are grouped by their immediate parent (the longest prefix ending
// in "/"). A group becomes "parent*" only when it holds at least threshold
// distinct resources; otherwise each resource keeps its exact name. Using the
// immediate parent is the narrowest pattern that still covers every grouped
// resource.
func minimalSet(entries []models.CoverageEntry, threshold int) models.PermissionSet {
	if len(entries) == 0 {
		return nil
	}

	actionsByResource := make(map[string]actionSet)
	for _, e := range entries {
		set, ok := actionsByResource[e.ResourceID]
		if !ok {
			set = make(actionSet)
			actionsByResource[e.ResourceID] = set
		}
		set.add(e.Action)
	}

	byParent := make(map[string][]string)
	for res := range actionsByResource {
		byParent[parentPrefix(res)] = append(byParent[parentPrefix(res)], res)
	}

	classes := make(map[string]*resourceClass)
	addClass := func(pattern string, actions actionSet) {
		c, ok := classes[pattern]
		if !ok {
			c = &resourceClass{pattern: pattern, actions: make(actionSet)}
			classes[pattern] = c
		}
		for _, a := range actions {
			c.actions.add(a)
		}
	}

	for parent, resources := range byParent {
		if parent != "" && len(resources) >= threshold {
			for _, res := range resources {
				addClass(parent+models.Wildcard, actionsByResource[res])
			}
			continue
		}
		for _, res := range resources {
			addClass(res, actionsByResource[res])
		}
	}

	dropSubsumedActions(classes)

	patterns := make([]string, 0, len(classes))
	for p, c := range classes {
		if len(c.actions) > 0 {
			patterns = append(patterns, p)
		}
	}
	sort.Strings(patterns)

	set := make(models.PermissionSet, 0, len(patterns))
	for _, p := range patterns {
		actions := make([]string, 0, len(classes[p].actions))
		for _, a := range classes[p].actions {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		set = append(set, models.PermissionStatement{
			Effect:    models.EffectAllow,
			Actions:   actions,
			Resources: []string{p},
		})
	}
	return set
}

// dropSubsumedActions removes an action from a class when another class with
// a strictly broader resource pattern already grants it. Strict subsumption
// is acyclic, so the broadest holder of each action always keeps it and every
// entry stays covered.
func dropSubsumedActions(classes map[string]*resourceClass) {
	for p, c := range classes {
		for q, broader := range classes {
			if p == q || !strictlySubsumes(q, p) {
				continue
			}
			for a := range broader.actions {
				delete(c.actions, a)
			}
		}
	}
}

func strictlySubsumes(outer, inner string) bool {
	return outer != inner && models.PatternSubsumes(outer, inner, false)
}

// parentPrefix returns the longest prefix of resource ending in "/", or ""
// when the resource has no hierarchy.
func parentPrefix(resource string) string {
	i := strings.LastIndex(resource, "/")
	if i < 0 {
		return ""
	}
	return resource[:i+1]
}
