// Package rules implements the YAML-based declarative check engine for the
// vigil scanner. Checks are loaded from YAML files (or the embedded builtin
// set), matched against Ruby and ERB source using pluggable matchers, and
// produce canonical Finding values from the core/findings package.
package rules

import (
	"strings"

	"github.com/vigil-sec/vigil/core/findings"
)

// DocsBaseURL is the prefix of every generated warning documentation link.
const DocsBaseURL = "https://vigil-sec.dev/docs/warning_types/"

// ValidMatcherTypes enumerates the matcher type strings that a Rule may
// reference. Any value not in this set causes a validation error at load time.
var ValidMatcherTypes = map[string]bool{
	"regex": true,
}

// Rule is a single declarative check loaded from YAML. It describes what to
// look for (Pattern + MatcherType), where to look (FilePatterns), and how to
// classify the result (WarningType, WarningCode, Confidence).
type Rule struct {
	ID           string              `yaml:"id"`
	CheckName    string              `yaml:"check_name"`
	WarningType  string              `yaml:"warning_type"`
	WarningCode  int                 `yaml:"warning_code"`
	Message      string              `yaml:"message"`
	Confidence   findings.Confidence `yaml:"confidence"`
	MatcherType  string              `yaml:"matcher_type"`
	Pattern      string              `yaml:"pattern"`
	FilePatterns []string            `yaml:"file_patterns"`
	Link         string              `yaml:"link"`
	CWE          []int               `yaml:"cwe"`
	Tags         []string            `yaml:"tags"`
}

// DocLink returns the rule's documentation link. Rules without an explicit
// link point at the warning-type page derived from WarningType.
func (r Rule) DocLink() string {
	if r.Link != "" {
		return r.Link
	}
	slug := strings.ToLower(r.WarningType)
	slug = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(slug)
	return DocsBaseURL + slug + "/"
}

// RuleSet is an ordered collection of rules with fast lookup by ID and tag.
type RuleSet struct {
	rules []Rule
	byID  map[string]int
	byTag map[string][]int
}

// NewRuleSet returns an initialised, empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		byID:  make(map[string]int),
		byTag: make(map[string][]int),
	}
}

// Add appends a rule to the set and updates the lookup indexes. A rule whose
// ID is already present replaces the earlier definition in place.
func (rs *RuleSet) Add(r Rule) {
	if idx, ok := rs.byID[r.ID]; ok {
		rs.rules[idx] = r
		rs.reindexTags()
		return
	}
	idx := len(rs.rules)
	rs.rules = append(rs.rules, r)
	rs.byID[r.ID] = idx
	for _, tag := range r.Tags {
		rs.byTag[tag] = append(rs.byTag[tag], idx)
	}
}

func (rs *RuleSet) reindexTags() {
	rs.byTag = make(map[string][]int)
	for idx, r := range rs.rules {
		for _, tag := range r.Tags {
			rs.byTag[tag] = append(rs.byTag[tag], idx)
		}
	}
}

// Merge adds every rule from other, in order.
func (rs *RuleSet) Merge(other *RuleSet) {
	if other == nil {
		return
	}
	for _, r := range other.rules {
		rs.Add(r)
	}
}

// Rules returns all rules in insertion order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// CheckNames returns the distinct check names in first-seen order.
func (rs *RuleSet) CheckNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rs.rules {
		if _, ok := seen[r.CheckName]; ok {
			continue
		}
		seen[r.CheckName] = struct{}{}
		out = append(out, r.CheckName)
	}
	return out
}

// ByID looks up a rule by its unique identifier. The boolean return indicates
// whether a rule with the given ID exists in the set.
func (rs *RuleSet) ByID(id string) (Rule, bool) {
	idx, ok := rs.byID[id]
	if !ok {
		return Rule{}, false
	}
	return rs.rules[idx], true
}

// ByTag returns all rules that carry the given tag. If no rules match, nil is
// returned.
func (rs *RuleSet) ByTag(tag string) []Rule {
	idxs, ok := rs.byTag[tag]
	if !ok {
		return nil
	}
	out := make([]Rule, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, rs.rules[idx])
	}
	return out
}
