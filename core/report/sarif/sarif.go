// Package sarif generates SARIF 2.1.0 reports from findings.
//
// The Static Analysis Results Interchange Format (SARIF) is an OASIS standard
// for the output of static analysis tools. This package produces SARIF v2.1.0
// documents that are compatible with GitHub Code Scanning, Azure DevOps, and
// other SARIF consumers.
package sarif

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/report"
	"github.com/vigil-sec/vigil/core/rules"
)

const (
	sarifVersion   = "2.1.0"
	sarifSchema    = "https://docs.oasis-open.org/sarif/sarif/v2.1.0/errata01/os/schemas/sarif-schema-2.1.0.json"
	informationURI = "https://vigil-sec.dev"

	// FingerprintKey names the partial fingerprint carried by every result.
	FingerprintKey = "vigil/v1"
)

// ---------------------------------------------------------------------------
// SARIF 2.1.0 envelope types
// ---------------------------------------------------------------------------

// Log is the top-level SARIF document containing the schema version and one
// analysis run.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single invocation of an analysis tool.
type Run struct {
	Tool       Tool           `json:"tool"`
	Results    []Result       `json:"results"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Tool describes the analysis tool that produced the run.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains identifying information about the tool and the catalog of
// rules it can report on.
type Driver struct {
	Name           string                `json:"name"`
	Version        string                `json:"version"`
	InformationURI string                `json:"informationUri"`
	Rules          []ReportingDescriptor `json:"rules"`
}

// ReportingDescriptor defines a single rule in the SARIF rule catalog.
type ReportingDescriptor struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	ShortDescription     Message        `json:"shortDescription"`
	HelpURI              string         `json:"helpUri,omitempty"`
	DefaultConfiguration Configuration  `json:"defaultConfiguration"`
	Properties           map[string]any `json:"properties,omitempty"`
}

// Configuration holds the default level for a rule.
type Configuration struct {
	Level string `json:"level"`
}

// Message is a SARIF message object containing human-readable text.
type Message struct {
	Text string `json:"text"`
}

// Result is a single finding expressed in SARIF format.
type Result struct {
	RuleID       string            `json:"ruleId"`
	RuleIndex    int               `json:"ruleIndex"`
	Level        string            `json:"level"`
	Message      Message           `json:"message"`
	Locations    []Location        `json:"locations"`
	Fingerprints map[string]string `json:"fingerprints"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

// Location wraps a physical location within a source artifact.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation identifies a file and region within that file.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation is a URI reference to a source file.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region identifies a contiguous area within an artifact.
type Region struct {
	StartLine   int      `json:"startLine,omitempty"`
	StartColumn int      `json:"startColumn,omitempty"`
	Snippet     *Message `json:"snippet,omitempty"`
}

// ---------------------------------------------------------------------------
// Reporter implementation
// ---------------------------------------------------------------------------

// Reporter produces SARIF 2.1.0 documents. It implements report.Reporter.
type Reporter struct {
	// ToolVersion is the version string embedded in the SARIF tool driver.
	ToolVersion string
}

// NewReporter returns a Reporter configured with the given tool version.
func NewReporter(version string) *Reporter {
	return &Reporter{ToolVersion: version}
}

// Generate builds a complete SARIF 2.1.0 JSON document. Results keep the
// order of rep.Findings. A finding's llm_analysis is carried in the result
// properties when it is set.
func (r *Reporter) Generate(rep *report.Report) ([]byte, error) {
	catalog, ruleIndex := buildRuleCatalog(rep.Findings, rep.Rules)

	results := make([]Result, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		region := Region{
			StartLine:   f.Location.StartLine,
			StartColumn: f.Location.Column,
		}
		if f.Code != "" {
			region.Snippet = &Message{Text: f.Code}
		}

		props := map[string]any{
			"warning_type": f.WarningType,
			"warning_code": f.WarningCode,
			"confidence":   string(f.Confidence),
		}
		if f.LLMAnalysis != nil {
			props["llm_analysis"] = *f.LLMAnalysis
		}

		results = append(results, Result{
			RuleID:    f.CheckName,
			RuleIndex: ruleIndex[f.CheckName],
			Level:     confidenceToLevel(f.Confidence),
			Message:   Message{Text: f.Message},
			Locations: []Location{{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: f.Location.FilePath},
					Region:           region,
				},
			}},
			Fingerprints: map[string]string{FingerprintKey: f.Fingerprint},
			Properties:   props,
		})
	}

	var runProps map[string]any
	if rep.Meta.RunID != "" {
		runProps = map[string]any{"run_id": rep.Meta.RunID}
	}

	log := Log{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []Run{{
			Tool: Tool{Driver: Driver{
				Name:           report.ToolName,
				Version:        r.ToolVersion,
				InformationURI: informationURI,
				Rules:          catalog,
			}},
			Results:    results,
			Properties: runProps,
		}},
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sarif: generate report: %w", err)
	}
	return append(data, '\n'), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// confidenceToLevel maps a confidence to a SARIF level: High is "error",
// Medium "warning", everything else "note".
func confidenceToLevel(c findings.Confidence) string {
	switch c {
	case findings.ConfidenceHigh:
		return "error"
	case findings.ConfidenceMedium:
		return "warning"
	default:
		return "note"
	}
}

// buildRuleCatalog returns one descriptor per distinct check name among the
// findings, sorted by check name, and the index of each. Rule metadata
// (help link, CWE tags) is taken from the rule set when available.
func buildRuleCatalog(items []findings.Finding, rs *rules.RuleSet) ([]ReportingDescriptor, map[string]int) {
	byCheck := make(map[string]rules.Rule)
	if rs != nil {
		for _, rule := range rs.Rules() {
			if _, ok := byCheck[rule.CheckName]; !ok {
				byCheck[rule.CheckName] = rule
			}
		}
	}

	first := make(map[string]findings.Finding)
	var names []string
	for _, f := range items {
		if _, ok := first[f.CheckName]; ok {
			continue
		}
		first[f.CheckName] = f
		names = append(names, f.CheckName)
	}
	sort.Strings(names)

	catalog := make([]ReportingDescriptor, 0, len(names))
	index := make(map[string]int, len(names))
	for _, name := range names {
		f := first[name]
		desc := ReportingDescriptor{
			ID:                   name,
			Name:                 name,
			ShortDescription:     Message{Text: f.WarningType},
			HelpURI:              f.Link,
			DefaultConfiguration: Configuration{Level: confidenceToLevel(f.Confidence)},
		}
		cwe := f.CWE
		if rule, ok := byCheck[name]; ok {
			desc.ShortDescription = Message{Text: rule.Message}
			desc.HelpURI = rule.DocLink()
			desc.DefaultConfiguration.Level = confidenceToLevel(rule.Confidence)
			cwe = rule.CWE
		}
		if len(cwe) > 0 {
			tags := make([]string, 0, len(cwe))
			for _, id := range cwe {
				tags = append(tags, "CWE-"+strconv.Itoa(id))
			}
			desc.Properties = map[string]any{"tags": tags}
		}
		index[name] = len(catalog)
		catalog = append(catalog, desc)
	}
	return catalog, index
}
