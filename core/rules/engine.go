package rules

import (
	"fmt"
	"path/filepath"

	"github.com/vigil-sec/vigil/core/findings"
)

// Engine ties a RuleSet and a MatcherRegistry together to scan file content
// and produce findings.
type Engine struct {
	rules    *RuleSet
	matchers *MatcherRegistry
}

// NewEngine creates an Engine with the given rules and the default matcher
// registry.
func NewEngine(rules *RuleSet) *Engine {
	return &Engine{
		rules:    rules,
		matchers: NewDefaultMatcherRegistry(),
	}
}

// Rules returns the engine's RuleSet.
func (e *Engine) Rules() *RuleSet { return e.rules }

// ScanFile runs every applicable rule against the given file content and
// returns the resulting findings. A rule applies if its FilePatterns list is
// empty (matches everything) or if at least one of its patterns matches the
// supplied path using filepath.Match semantics.
func (e *Engine) ScanFile(path string, content []byte) ([]findings.Finding, error) {
	var out []findings.Finding

	for _, rule := range e.rules.Rules() {
		if !fileMatchesRule(path, rule) {
			continue
		}

		matcher := e.matchers.Get(rule.MatcherType)
		if matcher == nil {
			return nil, fmt.Errorf("no matcher registered for type %q (rule %s)", rule.MatcherType, rule.ID)
		}

		results, err := matcher.Match(content, rule)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		for _, mr := range results {
			f := findings.Finding{
				WarningType: rule.WarningType,
				WarningCode: rule.WarningCode,
				CheckName:   rule.CheckName,
				Message:     rule.Message,
				Location: findings.Location{
					FilePath:  path,
					StartLine: mr.Line,
					Column:    mr.Column,
				},
				Code:       mr.LineText,
				Link:       rule.DocLink(),
				Confidence: rule.Confidence,
				CWE:        rule.CWE,
			}
			f.Fingerprint = findings.ComputeFingerprint(f.CheckName, f.Location, f.Code)
			out = append(out, f)
		}
	}
	return out, nil
}

// fileMatchesRule returns true if the file path matches at least one of the
// rule's FilePatterns, or if the rule has no file patterns.
func fileMatchesRule(path string, rule Rule) bool {
	if len(rule.FilePatterns) == 0 {
		return true
	}
	// Patterns like "*.rb" must match nested paths too.
	base := filepath.Base(path)
	slashed := filepath.ToSlash(path)
	for _, pattern := range rule.FilePatterns {
		if matched, _ := filepath.Match(pattern, slashed); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
