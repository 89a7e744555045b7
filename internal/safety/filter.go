// Package safety provides the guards applied before stack creation: blueprint
// filtering, confirmation tokens and audit logging.
package safety

import (
	"errors"
	"fmt"
	"path"
)

// ErrNotAllowed is wrapped by Filter.Check when a name is rejected.
var ErrNotAllowed = errors.New("not allowed by safety filter")

// Filter controls access to named resources using an allowlist and a denylist.
// Glob patterns (as understood by path.Match) are supported in both lists.
//
// Rules:
//   - If both lists are empty (or nil), every resource is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, a resource must match at least one
//     allowlist pattern to be permitted (after the denylist check).
type Filter struct {
	kind      string
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter for resources of the given kind (used in
// error messages) from the provided allowlist and denylist patterns.
func NewFilter(kind string, allowlist, denylist []string) *Filter {
	return &Filter{
		kind:      kind,
		allowlist: allowlist,
		denylist:  denylist,
	}
}

// IsAllowed reports whether name is permitted by this filter. A nil Filter
// allows everything.
func (f *Filter) IsAllowed(name string) bool {
	if f == nil {
		return true
	}
	for _, pattern := range f.denylist {
		if matchGlob(pattern, name) {
			return false
		}
	}

	if len(f.allowlist) == 0 {
		return true
	}

	for _, pattern := range f.allowlist {
		if matchGlob(pattern, name) {
			return true
		}
	}

	return false
}

// Check returns an error wrapping ErrNotAllowed if name is not permitted.
func (f *Filter) Check(name string) error {
	if f.IsAllowed(name) {
		return nil
	}
	kind := "resource"
	if f.kind != "" {
		kind = f.kind
	}
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotAllowed)
}

// matchGlob returns true when name matches the given glob pattern.
// Malformed patterns are treated as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
