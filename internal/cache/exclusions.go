package cache

import (
	"fmt"
	"regexp"
)

// ExclusionList names the services whose analyses are never cached. Rules
// are exact service names or Go regular expressions.
//
// A nil *ExclusionList excludes nothing.
type ExclusionList struct {
	names    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewExclusionList fails on the first pattern that does not compile so a bad
// rule is caught at startup.
func NewExclusionList(names, patterns []string) (*ExclusionList, error) {
	el := &ExclusionList{names: make(map[string]struct{}, len(names))}

	for _, n := range names {
		if n != "" {
			el.names[n] = struct{}{}
		}
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cache exclusion: invalid pattern %q: %w", p, err)
		}
		el.patterns = append(el.patterns, re)
	}
	return el, nil
}

// Excludes reports whether caching is disabled for service.
func (el *ExclusionList) Excludes(service string) bool {
	if el == nil {
		return false
	}
	if _, ok := el.names[service]; ok {
		return true
	}
	for _, re := range el.patterns {
		if re.MatchString(service) {
			return true
		}
	}
	return false
}

func (el *ExclusionList) Len() int {
	if el == nil {
		return 0
	}
	return len(el.names) + len(el.patterns)
}
