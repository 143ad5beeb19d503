// Package report provides finding serialization to the supported output
// formats. JSONReporter lives here; SARIF and text reporters live in the
// sarif and text subpackages and share the Report input type.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/rules"
)

// Supported output format names.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
	FormatText  = "text"
)

// ToolName identifies vigil in every report.
const ToolName = "vigil"

// Report is the input shared by all reporters. Findings are rendered in the
// order given; reporters never reorder or modify them.
type Report struct {
	Findings []findings.Finding
	// Rules is optional and feeds rule catalogs.
	Rules      *rules.RuleSet
	Meta       Meta
	TextFields []string
}

// Meta describes the scan run that produced the findings.
type Meta struct {
	RunID        string
	AppPath      string
	StartedAt    time.Time
	Duration     time.Duration
	FilesScanned int
	ChecksRun    []string
	Baselined    int
}

// Reporter defines the contract for serializing a Report into a byte
// representation. Each output format implements this interface.
type Reporter interface {
	Generate(r *Report) ([]byte, error)
}

// FormatForPath infers the output format from a file extension. Anything
// other than .json and .sarif is written as text.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".sarif":
		return FormatSARIF
	default:
		return FormatText
	}
}

// NormalizeFormat maps user-facing aliases onto a format name. The boolean is
// false for unknown formats.
func NormalizeFormat(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, true
	case "sarif":
		return FormatSARIF, true
	case "text", "txt", "plain", "":
		return FormatText, true
	default:
		return "", false
	}
}

// ScanInfo is the metadata block of a JSON report.
type ScanInfo struct {
	SchemaVersion    string   `json:"schema_version"`
	ToolName         string   `json:"tool_name"`
	ToolVersion      string   `json:"tool_version"`
	RunID            string   `json:"run_id"`
	AppPath          string   `json:"app_path"`
	StartTime        string   `json:"start_time"`
	DurationSeconds  float64  `json:"duration"`
	FilesScanned     int      `json:"files_scanned"`
	ChecksPerformed  []string `json:"checks_performed"`
	NumberOfWarnings int      `json:"number_of_warnings"`
	BaselinedCount   int      `json:"baselined_warnings"`
}

// JSONReport is the top-level structure serialized to JSON.
type JSONReport struct {
	ScanInfo ScanInfo           `json:"scan_info"`
	Warnings []findings.Finding `json:"warnings"`
}

// JSONReporter produces deterministic JSON output.
type JSONReporter struct {
	ToolVersion string
}

// NewJSONReporter returns a JSONReporter configured with the given tool version
// string. The version is embedded in the report metadata.
func NewJSONReporter(version string) *JSONReporter {
	return &JSONReporter{ToolVersion: version}
}

// Generate serializes the report to pretty-printed JSON with 2-space
// indentation. Given the same Report the output is byte-identical.
func (r *JSONReporter) Generate(rep *Report) ([]byte, error) {
	warnings := rep.Findings
	// "warnings": [] rather than null for an empty report.
	if warnings == nil {
		warnings = []findings.Finding{}
	}
	checks := rep.Meta.ChecksRun
	if checks == nil {
		checks = []string{}
	}

	out := JSONReport{
		ScanInfo: ScanInfo{
			SchemaVersion:    "1.0.0",
			ToolName:         ToolName,
			ToolVersion:      r.ToolVersion,
			RunID:            rep.Meta.RunID,
			AppPath:          rep.Meta.AppPath,
			StartTime:        rep.Meta.StartedAt.UTC().Format(time.RFC3339),
			DurationSeconds:  rep.Meta.Duration.Seconds(),
			FilesScanned:     rep.Meta.FilesScanned,
			ChecksPerformed:  checks,
			NumberOfWarnings: len(warnings),
			BaselinedCount:   rep.Meta.Baselined,
		},
		Warnings: warnings,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json: marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
