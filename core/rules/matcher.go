package rules

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// MatchResult describes a single match of a rule pattern within file content.
type MatchResult struct {
	Line      int
	Column    int
	MatchText string
	// LineText is the full source line holding the start of the match, with
	// surrounding whitespace removed.
	LineText string
}

// Matcher is the interface that all pattern-matching strategies must satisfy.
// Implementations receive raw file content and the triggering rule, and return
// zero or more match results.
type Matcher interface {
	Match(content []byte, rule Rule) ([]MatchResult, error)
}

// RegexMatcher implements Matcher using compiled regular expressions. It
// caches compiled patterns and is safe for concurrent use.
type RegexMatcher struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewRegexMatcher returns a RegexMatcher with an initialised pattern cache.
func NewRegexMatcher() *RegexMatcher {
	return &RegexMatcher{
		cache: make(map[string]*regexp.Regexp),
	}
}

func (m *RegexMatcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	m.cache[pattern] = re
	return re, nil
}

// Match finds all occurrences of the rule pattern in content and returns
// their positions as MatchResult values with 1-based line and column numbers.
func (m *RegexMatcher) Match(content []byte, rule Rule) ([]MatchResult, error) {
	re, err := m.compile(rule.Pattern)
	if err != nil {
		return nil, err
	}

	lines := bytes.SplitAfter(content, []byte("\n"))
	lineStarts := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		lineStarts[i] = offset
		offset += len(line)
	}

	matches := re.FindAllIndex(content, -1)
	results := make([]MatchResult, 0, len(matches))
	for _, loc := range matches {
		line := findLine(lineStarts, loc[0])
		results = append(results, MatchResult{
			Line:      line + 1,
			Column:    loc[0] - lineStarts[line] + 1,
			MatchText: string(content[loc[0]:loc[1]]),
			LineText:  string(bytes.TrimSpace(lines[line])),
		})
	}
	return results, nil
}

// findLine returns the 0-based index of the line containing offset.
func findLine(lineStarts []int, offset int) int {
	i := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}

// MatcherRegistry maps matcher type strings to their Matcher implementations.
type MatcherRegistry struct {
	matchers map[string]Matcher
}

// NewMatcherRegistry returns an empty registry.
func NewMatcherRegistry() *MatcherRegistry {
	return &MatcherRegistry{
		matchers: make(map[string]Matcher),
	}
}

// Register associates a matcher type string with a Matcher implementation.
func (r *MatcherRegistry) Register(matcherType string, m Matcher) {
	r.matchers[matcherType] = m
}

// Get returns the Matcher for the given type string, or nil if none is
// registered.
func (r *MatcherRegistry) Get(matcherType string) Matcher {
	return r.matchers[matcherType]
}

// NewDefaultMatcherRegistry returns a registry holding the regex matcher.
func NewDefaultMatcherRegistry() *MatcherRegistry {
	r := NewMatcherRegistry()
	r.Register("regex", NewRegexMatcher())
	return r
}
