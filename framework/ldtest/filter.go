package ldtest

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is a function that can determine whether to run a specific test or not.
type Filter func(TestID) bool

// RegexFilters selects tests by name in the same way as the -run and -skip flags of "go test".
// Each pattern is split on "/" into one regular expression per level of the test path.
type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

// AsFilter returns true if the test should run. A test is run if some MustMatch pattern
// matches each level of its path that the pattern has an element for, so the parents of a
// selected test are also selected. It is skipped if some MustNotMatch pattern matches all of
// its elements against the test's path.
func (r RegexFilters) AsFilter(id TestID) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.anyPartialMatch(id.Path)) &&
		!r.MustNotMatch.anyFullMatch(id.Path)
}

// IsDefined returns true if any patterns were specified.
func (r RegexFilters) IsDefined() bool {
	return r.MustMatch.IsDefined() || r.MustNotMatch.IsDefined()
}

// RegexList is a list of test name patterns that can be built up from repeated command-line
// flags. It implements pflag.Value as well as flag.Value.
type RegexList struct {
	sources  []string
	patterns [][]*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.sources {
		ss = append(ss, `"`+p+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (r *RegexList) Set(value string) error {
	var levels []*regexp.Regexp
	for _, element := range strings.Split(value, "/") {
		rx, err := regexp.Compile(element)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		levels = append(levels, rx)
	}
	r.sources = append(r.sources, value)
	r.patterns = append(r.patterns, levels)
	return nil
}

// Type is called by the command line parser to describe the flag's value in usage output.
func (r *RegexList) Type() string {
	return "regex"
}

// Patterns returns the original source of each pattern.
func (r RegexList) Patterns() []string {
	return append([]string(nil), r.sources...)
}

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r RegexList) anyPartialMatch(path []string) bool {
	for _, levels := range r.patterns {
		if matchLevels(levels, path) {
			return true
		}
	}
	return false
}

func (r RegexList) anyFullMatch(path []string) bool {
	for _, levels := range r.patterns {
		if len(levels) <= len(path) && matchLevels(levels, path) {
			return true
		}
	}
	return false
}

func matchLevels(levels []*regexp.Regexp, path []string) bool {
	for i, name := range path {
		if i >= len(levels) {
			break
		}
		if !levels[i].MatchString(name) {
			return false
		}
	}
	return true
}

// PathPattern returns a pattern for RegexList that selects exactly the given test and its
// subtests.
func PathPattern(id TestID) string {
	elements := make([]string, 0, len(id.Path))
	for _, name := range id.Path {
		elements = append(elements, "^"+regexp.QuoteMeta(name)+"$")
	}
	return strings.Join(elements, "/")
}
