package workflow

import (
	"reflect"
	"strings"
	"sync"

	"github.com/amontoro/strategos/pkg/errors"
)

// TerminationPredicate decides after a completed partner-loop round whether
// the loop stops before its iteration budget. prev is the running state as
// the round began, curr as it ended.
type TerminationPredicate func(prev, curr map[string]any) bool

// PredicateRegistry resolves termination condition expressions to
// predicates. An expression is either a bare name ("converged") or a
// parameterized form ("has_key:verdict"). Unknown expressions are rejected
// before the first step runs.
type PredicateRegistry struct {
	mu        sync.RWMutex
	exact     map[string]TerminationPredicate
	factories map[string]func(arg string) (TerminationPredicate, error)
}

// NewPredicateRegistry creates a registry seeded with the built-in
// predicates: converged and has_key:<key>.
func NewPredicateRegistry() *PredicateRegistry {
	r := &PredicateRegistry{
		exact:     make(map[string]TerminationPredicate),
		factories: make(map[string]func(string) (TerminationPredicate, error)),
	}
	r.exact["converged"] = func(prev, curr map[string]any) bool {
		return reflect.DeepEqual(prev, curr)
	}
	// has_key fires when the running state, or the latest role result
	// threaded under previous_result, contains the key.
	r.factories["has_key"] = func(arg string) (TerminationPredicate, error) {
		if arg == "" {
			return nil, errors.New(errors.CodeInvalidInput, "has_key predicate requires a key", nil)
		}
		return func(_, curr map[string]any) bool {
			if _, ok := curr[arg]; ok {
				return true
			}
			if last, ok := curr["previous_result"].(map[string]any); ok {
				_, ok := last[arg]
				return ok
			}
			return false
		}, nil
	}
	return r
}

// Register adds a named predicate.
func (r *PredicateRegistry) Register(name string, p TerminationPredicate) error {
	if name == "" || p == nil {
		return errors.New(errors.CodeInvalidInput, "predicate requires a name and a function", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exact[name]; ok {
		return errors.New(errors.CodeInvalidInput, "predicate already registered", nil).
			WithContext("predicate", name)
	}
	r.exact[name] = p
	return nil
}

// RegisterFactory adds a parameterized predicate family invoked as
// "name:arg".
func (r *PredicateRegistry) RegisterFactory(name string, f func(arg string) (TerminationPredicate, error)) error {
	if name == "" || f == nil {
		return errors.New(errors.CodeInvalidInput, "predicate factory requires a name and a function", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.New(errors.CodeInvalidInput, "predicate factory already registered", nil).
			WithContext("predicate", name)
	}
	r.factories[name] = f
	return nil
}

// Resolve maps an expression to a predicate. The empty expression resolves
// to nil: the loop runs its full iteration budget.
func (r *PredicateRegistry) Resolve(expr string) (TerminationPredicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.exact[expr]; ok {
		return p, nil
	}
	if name, arg, found := strings.Cut(expr, ":"); found {
		if f, ok := r.factories[name]; ok {
			return f(strings.TrimSpace(arg))
		}
	}
	return nil, errors.New(errors.CodeInvalidInput, "unknown termination condition", nil).
		WithContext("condition", expr)
}
