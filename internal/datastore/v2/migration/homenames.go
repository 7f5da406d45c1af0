package migration

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// homeNameMatcher recognizes the placeholder names the app seeded homes
// with, ignoring case, width and spacing differences.
type homeNameMatcher struct {
	fold     cases.Caser
	defaults map[string]struct{}
}

func newHomeNameMatcher(names []string) *homeNameMatcher {
	m := &homeNameMatcher{
		fold:     cases.Fold(),
		defaults: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		if key := m.key(n); key != "" {
			m.defaults[key] = struct{}{}
		}
	}
	return m
}

func (m *homeNameMatcher) key(name string) string {
	name = norm.NFKC.String(name)
	return strings.Join(strings.Fields(m.fold.String(name)), " ")
}

// IsDefault reports whether name is empty or one of the placeholder names.
func (m *homeNameMatcher) IsDefault(name string) bool {
	key := m.key(name)
	if key == "" {
		return true
	}
	_, ok := m.defaults[key]
	return ok
}
