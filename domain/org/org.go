// Package org holds the organization model and the exclusion rules applied to
// organization listings.
package org

import "strings"

// SystemOrg is the platform's own organization. It is never reported.
const SystemOrg = "system"

// Organization is one organization of a foundation.
type Organization struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

// ExclusionSet holds organization names that must not be listed.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds an exclusion set. Blank names are ignored.
func NewExclusionSet(names ...string) ExclusionSet {
	s := make(ExclusionSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Excludes reports whether name is filtered out. "system" always is, in any case.
func (s ExclusionSet) Excludes(name string) bool {
	if strings.EqualFold(name, SystemOrg) {
		return true
	}
	_, ok := s[name]
	return ok
}

// Filter returns orgs without the excluded ones, preserving order.
// This is a PURE function.
func Filter(orgs []Organization, excluded ExclusionSet) []Organization {
	out := make([]Organization, 0, len(orgs))
	for _, o := range orgs {
		if excluded.Excludes(o.Name) {
			continue
		}
		out = append(out, o)
	}
	return out
}
