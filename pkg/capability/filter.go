// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"path"
	"strings"
)

// Filter scopes capability names with allow and deny lists. Entries may be
// glob patterns (e.g. "web:*"). Denies take precedence; a non-empty allow
// list admits only its members.
type Filter struct {
	allowlist map[string]bool
	denylist  map[string]bool
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// NewFilter creates a Filter with the given options.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		allowlist: make(map[string]bool),
		denylist:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithAllowlist sets the allowlist of permitted capability names/patterns.
func WithAllowlist(names []string) FilterOption {
	return func(f *Filter) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" {
				f.allowlist[name] = true
			}
		}
	}
}

// WithDenylist sets the denylist of forbidden capability names/patterns.
func WithDenylist(names []string) FilterOption {
	return func(f *Filter) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" {
				f.denylist[name] = true
			}
		}
	}
}

// IsAllowed reports whether a capability name passes the filter.
func (f *Filter) IsAllowed(name string) bool {
	if matchesList(name, f.denylist) {
		return false
	}
	if len(f.allowlist) > 0 && !matchesList(name, f.allowlist) {
		return false
	}
	return true
}

// FilterNames returns only the names that pass the filter.
func (f *Filter) FilterNames(names []string) []string {
	if len(f.allowlist) == 0 && len(f.denylist) == 0 {
		return names
	}
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if f.IsAllowed(name) {
			filtered = append(filtered, name)
		}
	}
	return filtered
}

func matchesList(name string, list map[string]bool) bool {
	if list[name] {
		return true
	}
	for pattern := range list {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
