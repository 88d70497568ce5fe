package workflow

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/amontoro/strategos/pkg/errors"
)

// AggregateFunc folds the per-role results of a parallel step into the
// single map recorded as the step's result. Input keys are role labels;
// failed branches appear as {"error": ..., "code": ...} entries.
type AggregateFunc func(results map[string]map[string]any) (map[string]any, error)

// AggregatorRegistry maps aggregation strategy names to fold functions.
// The scheduler rejects playbooks naming strategies the registry lacks
// before the first step runs.
type AggregatorRegistry struct {
	mu    sync.RWMutex
	funcs map[string]AggregateFunc
}

// NewAggregatorRegistry creates a registry seeded with the built-in
// strategies: merge, first_success, and vote.
func NewAggregatorRegistry() *AggregatorRegistry {
	r := &AggregatorRegistry{funcs: make(map[string]AggregateFunc)}
	r.funcs["merge"] = aggregateMerge
	r.funcs["first_success"] = aggregateFirstSuccess
	r.funcs["vote"] = aggregateVote
	return r
}

// Register adds a named strategy. Registering an existing name fails.
func (r *AggregatorRegistry) Register(name string, fn AggregateFunc) error {
	if name == "" || fn == nil {
		return errors.New(errors.CodeInvalidInput, "aggregation strategy requires a name and a function", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return errors.New(errors.CodeInvalidInput, "aggregation strategy already registered", nil).
			WithContext("strategy", name)
	}
	r.funcs[name] = fn
	return nil
}

// Get returns the named strategy.
func (r *AggregatorRegistry) Get(name string) (AggregateFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether the named strategy is registered.
func (r *AggregatorRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func sortedRoleLabels(results map[string]map[string]any) []string {
	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func branchFailed(result map[string]any) bool {
	_, failed := result["error"]
	return failed
}

// aggregateMerge unions the successful branches' keys into one map. A key
// produced by several roles is disambiguated as "role.key". Failed branches
// are collected under "errors".
func aggregateMerge(results map[string]map[string]any) (map[string]any, error) {
	merged := make(map[string]any)
	failures := make(map[string]any)
	for _, label := range sortedRoleLabels(results) {
		result := results[label]
		if branchFailed(result) {
			failures[label] = result
			continue
		}
		for key, value := range result {
			if _, taken := merged[key]; taken {
				merged[label+"."+key] = value
				continue
			}
			merged[key] = value
		}
	}
	if len(failures) > 0 {
		merged["errors"] = failures
	}
	return merged, nil
}

// aggregateFirstSuccess returns the first successful branch in sorted role
// order. All branches failing is an aggregation failure.
func aggregateFirstSuccess(results map[string]map[string]any) (map[string]any, error) {
	for _, label := range sortedRoleLabels(results) {
		result := results[label]
		if branchFailed(result) {
			continue
		}
		out := make(map[string]any, len(result)+1)
		for k, v := range result {
			out[k] = v
		}
		out["selected_role"] = label
		return out, nil
	}
	return nil, errors.New(errors.CodeStepExecution, "no parallel branch succeeded", nil)
}

// aggregateVote elects the most common "result" value among successful
// branches, comparing values by canonical JSON. Ties break toward the value
// produced by the lexically first role.
func aggregateVote(results map[string]map[string]any) (map[string]any, error) {
	counts := make(map[string]int)
	values := make(map[string]any)
	firstRole := make(map[string]string)
	total := 0
	for _, label := range sortedRoleLabels(results) {
		result := results[label]
		if branchFailed(result) {
			continue
		}
		value, ok := result["result"]
		if !ok {
			value = result
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, errors.New(errors.CodeStepExecution, "vote aggregation requires encodable results", err).
				WithContext("role", label)
		}
		key := string(raw)
		counts[key]++
		values[key] = value
		if _, seen := firstRole[key]; !seen {
			firstRole[key] = label
		}
		total++
	}
	if total == 0 {
		return nil, errors.New(errors.CodeStepExecution, "no parallel branch succeeded", nil)
	}

	winner := ""
	for key := range counts {
		if winner == "" {
			winner = key
			continue
		}
		if counts[key] > counts[winner] ||
			(counts[key] == counts[winner] && firstRole[key] < firstRole[winner]) {
			winner = key
		}
	}
	return map[string]any{
		"result": values[winner],
		"votes":  counts[winner],
		"total":  total,
	}, nil
}
