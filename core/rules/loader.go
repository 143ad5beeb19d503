package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vigil-sec/vigil/core/findings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ruleFile is the top-level structure of a YAML rules file. It expects a
// single key "rules" containing an array of rule definitions.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var validConfidences = map[findings.Confidence]bool{
	findings.ConfidenceHigh:   true,
	findings.ConfidenceMedium: true,
	findings.ConfidenceWeak:   true,
}

// LoadBuiltinRules returns the checks shipped with vigil.
func LoadBuiltinRules() (*RuleSet, error) {
	return loadFS(builtinFS, "builtin")
}

// LoadRulesFromFile reads a single YAML file and returns a validated RuleSet.
func LoadRulesFromFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	return ParseRules(data, path)
}

// LoadRulesFromDir reads all .yaml and .yml files in the given directory and
// merges them into a single RuleSet. Files are processed in lexicographic
// order for determinism.
func LoadRulesFromDir(dir string) (*RuleSet, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading rules directory %s: %w", dir, err)
	}
	return loadFS(os.DirFS(dir), ".")
}

func loadFS(fsys fs.FS, dir string) (*RuleSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading rules directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	rs := NewRuleSet()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading rules file %s: %w", name, err)
		}
		fileRS, err := ParseRules(data, name)
		if err != nil {
			return nil, err
		}
		rs.Merge(fileRS)
	}
	return rs, nil
}

// ParseRules decodes and validates YAML rule definitions. source names the
// origin in error messages.
func ParseRules(data []byte, source string) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", source, err)
	}

	rs := NewRuleSet()
	for i, r := range rf.Rules {
		if r.MatcherType == "" {
			r.MatcherType = "regex"
		}
		if r.CheckName == "" {
			r.CheckName = r.ID
		}
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("rule %d in %s: %w", i, source, err)
		}
		rs.Add(r)
	}
	return rs, nil
}

// validateRule checks that a rule satisfies all mandatory constraints.
func validateRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule ID must not be empty")
	}
	if r.WarningType == "" {
		return fmt.Errorf("rule %s: warning_type must not be empty", r.ID)
	}
	if !ValidMatcherTypes[r.MatcherType] {
		return fmt.Errorf("invalid matcher_type %q for rule %s", r.MatcherType, r.ID)
	}
	if !validConfidences[r.Confidence] {
		return fmt.Errorf("invalid confidence %q for rule %s", r.Confidence, r.ID)
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %s: pattern must not be empty", r.ID)
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}
