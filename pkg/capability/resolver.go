// Package capability resolves which tools an agent must carry given a
// requested set and a table of pairwise dependency rules, and exposes the
// registry agents call tools through.
package capability

import (
	"fmt"
	"sort"
)

// MissingDependency reports a dependency rule whose requirement is absent
// from a statically allowed capability set.
type MissingDependency struct {
	Primary  string
	Requires string
}

func (m MissingDependency) String() string {
	return fmt.Sprintf("capability %q requires %q", m.Primary, m.Requires)
}

// Resolver computes transitive capability closures over a rule table.
type Resolver struct {
	rules []DependencyRule
}

// NewResolver creates a resolver over the given rule table.
func NewResolver(rules []DependencyRule) *Resolver {
	return &Resolver{rules: append([]DependencyRule(nil), rules...)}
}

// Rules returns a copy of the rule table.
func (r *Resolver) Rules() []DependencyRule {
	return append([]DependencyRule(nil), r.rules...)
}

// Resolve returns the fixed-point transitive closure of the requested set:
// every capability a requested one implies, directly or through chains.
// Empty rules or an empty request are valid and yield the request itself.
func (r *Resolver) Resolve(requested []string) []string {
	closed := r.closure(toSet(requested))
	out := make([]string, 0, len(closed))
	for name := range closed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate performs the same closure over the allowed set and reports every
// rule whose requirement the allowed set does not already contain. An empty
// result means Resolve(allowed) == allowed, so static validation and runtime
// auto-grant can never disagree.
func (r *Resolver) Validate(allowed []string) []MissingDependency {
	allowedSet := toSet(allowed)
	closed := r.closure(allowedSet)

	var missing []MissingDependency
	for _, rule := range r.rules {
		if _, ok := closed[rule.Primary]; !ok {
			continue
		}
		if _, ok := allowedSet[rule.Requires]; !ok {
			missing = append(missing, MissingDependency{Primary: rule.Primary, Requires: rule.Requires})
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Primary != missing[j].Primary {
			return missing[i].Primary < missing[j].Primary
		}
		return missing[i].Requires < missing[j].Requires
	})
	return missing
}

// closure is the shared fixed-point routine behind Resolve and Validate.
// It rescans the rule table until a full pass adds nothing, so chained
// dependencies (A→B, B→C) close fully rather than one level deep.
func (r *Resolver) closure(set map[string]struct{}) map[string]struct{} {
	closed := make(map[string]struct{}, len(set))
	for name := range set {
		closed[name] = struct{}{}
	}
	for {
		added := false
		for _, rule := range r.rules {
			if _, ok := closed[rule.Primary]; !ok {
				continue
			}
			if _, ok := closed[rule.Requires]; !ok {
				closed[rule.Requires] = struct{}{}
				added = true
			}
		}
		if !added {
			return closed
		}
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}
