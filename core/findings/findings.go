// Package findings defines the canonical security findings model used across
// the vigil scanner, the enrichment pipeline, and the report writers. Every
// rule match produces a Finding value; findings are collected into a
// FindingSet for deduplication, sorting, and downstream consumption by report
// formatters (JSON, SARIF, text).
package findings

import (
	"encoding/json"
	"sort"
	"strings"
)

// Confidence expresses how certain the scanner is that the finding is a true
// positive rather than a false positive.
type Confidence string

// Confidence level constants ordered from most to least certain.
const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceWeak   Confidence = "Weak"
)

// Rank returns 0 for High, 1 for Medium, 2 for Weak and 3 for anything else.
// Lower rank means more certain.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceWeak:
		return 2
	default:
		return 3
	}
}

// ParseConfidence maps a case-insensitive level name ("high", "Medium",
// "weak") onto a Confidence.
func ParseConfidence(s string) (Confidence, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh, true
	case "medium":
		return ConfidenceMedium, true
	case "weak", "low":
		return ConfidenceWeak, true
	default:
		return "", false
	}
}

// Location pinpoints where a finding was detected within a source file. The
// fields map directly to the SARIF physicalLocation / region model.
type Location struct {
	FilePath  string `json:"file"`
	StartLine int    `json:"line"`
	Column    int    `json:"column,omitempty"`
}

// Finding is a single security warning produced by a rule. It is the
// canonical unit of output for the entire vigil pipeline.
//
// LLMAnalysis is nil until the enrichment pipeline attaches a complete
// explanation. It is always serialized so that report consumers see a stable
// schema whether or not a run was enriched.
type Finding struct {
	Fingerprint string     `json:"fingerprint"`
	WarningType string     `json:"warning_type"`
	WarningCode int        `json:"warning_code"`
	CheckName   string     `json:"check_name"`
	Message     string     `json:"message"`
	Location    Location   `json:"location"`
	Code        string     `json:"code,omitempty"`
	Link        string     `json:"link"`
	Confidence  Confidence `json:"confidence"`
	CWE         []int      `json:"cwe_id,omitempty"`
	LLMAnalysis *string    `json:"llm_analysis"`
}

// JSON returns the finding's JSON encoding.
func (f Finding) JSON() ([]byte, error) {
	return json.Marshal(f)
}

// Map returns the key-value representation of the finding, using the same
// keys as its JSON encoding.
func (f Finding) Map() (map[string]any, error) {
	data, err := f.JSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Analysis returns the attached explanation, or "" when none is set.
func (f Finding) Analysis() string {
	if f.LLMAnalysis == nil {
		return ""
	}
	return *f.LLMAnalysis
}

// FindingSet is an ordered, deduplicated collection of findings. It is the
// primary data structure passed between pipeline stages.
type FindingSet struct {
	items []Finding
}

// NewFindingSet returns an empty FindingSet ready for use.
func NewFindingSet() *FindingSet {
	return &FindingSet{}
}

// Add appends a finding to the set. If the finding has an empty Fingerprint,
// one is computed automatically from CheckName, Location, and Code so that
// every finding in the set is always fingerprintable.
func (fs *FindingSet) Add(f Finding) {
	if f.Fingerprint == "" {
		f.Fingerprint = ComputeFingerprint(f.CheckName, f.Location, f.Code)
	}
	fs.items = append(fs.items, f)
}

// Deduplicate removes findings that share the same Fingerprint, keeping only
// the first occurrence. Call this after all findings have been added and before
// producing output.
func (fs *FindingSet) Deduplicate() {
	seen := make(map[string]struct{}, len(fs.items))
	unique := make([]Finding, 0, len(fs.items))
	for _, f := range fs.items {
		if _, exists := seen[f.Fingerprint]; exists {
			continue
		}
		seen[f.Fingerprint] = struct{}{}
		unique = append(unique, f)
	}
	fs.items = unique
}

// SortDeterministic orders findings by Confidence, then WarningType, then
// FilePath, then StartLine. The sort is stable, so sorting an already sorted
// set leaves it unchanged.
func (fs *FindingSet) SortDeterministic() {
	sort.SliceStable(fs.items, func(i, j int) bool {
		a, b := fs.items[i], fs.items[j]
		if a.Confidence.Rank() != b.Confidence.Rank() {
			return a.Confidence.Rank() < b.Confidence.Rank()
		}
		if a.WarningType != b.WarningType {
			return a.WarningType < b.WarningType
		}
		if a.Location.FilePath != b.Location.FilePath {
			return a.Location.FilePath < b.Location.FilePath
		}
		return a.Location.StartLine < b.Location.StartLine
	})
}

// FilterConfidence drops findings less certain than min. An empty min keeps
// everything.
func (fs *FindingSet) FilterConfidence(min Confidence) {
	if min == "" {
		return
	}
	kept := fs.items[:0]
	for _, f := range fs.items {
		if f.Confidence.Rank() <= min.Rank() {
			kept = append(kept, f)
		}
	}
	fs.items = kept
}

// RemoveByCheckNames drops every finding produced by one of the named checks.
func (fs *FindingSet) RemoveByCheckNames(names []string) {
	if len(names) == 0 {
		return
	}
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	kept := fs.items[:0]
	for _, f := range fs.items {
		if _, ok := skip[f.CheckName]; ok {
			continue
		}
		kept = append(kept, f)
	}
	fs.items = kept
}

// RemoveFunc drops every finding for which drop returns true and returns the
// number removed.
func (fs *FindingSet) RemoveFunc(drop func(Finding) bool) int {
	kept := fs.items[:0]
	for _, f := range fs.items {
		if !drop(f) {
			kept = append(kept, f)
		}
	}
	removed := len(fs.items) - len(kept)
	fs.items = kept
	return removed
}

// SetAnalysis attaches a complete explanation to the finding at index i.
// Out-of-range indices are ignored.
func (fs *FindingSet) SetAnalysis(i int, text string) {
	if i < 0 || i >= len(fs.items) {
		return
	}
	fs.items[i].LLMAnalysis = &text
}

// AppendMessage appends text to the message of the finding at index i,
// separated by a blank line. Out-of-range indices are ignored.
func (fs *FindingSet) AppendMessage(i int, text string) {
	if i < 0 || i >= len(fs.items) {
		return
	}
	fs.items[i].Message += "\n\n" + text
}

// Len returns the number of findings in the set.
func (fs *FindingSet) Len() int {
	return len(fs.items)
}

// Findings returns the current slice of findings. The caller must not modify
// the returned slice; use SetAnalysis and AppendMessage instead.
func (fs *FindingSet) Findings() []Finding {
	return fs.items
}
