// Package text renders findings as a human-readable console report.
package text

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/report"
)

// DefaultFields is the field order used when a report names none. The
// message comes last because enrichment may append a long explanation to it.
var DefaultFields = []string{"confidence", "category", "check", "code", "file", "line", "message"}

var fieldLabels = map[string]string{
	"confidence":   "Confidence",
	"category":     "Category",
	"check":        "Check",
	"code":         "Code",
	"file":         "File",
	"line":         "Line",
	"message":      "Message",
	"link":         "Link",
	"fingerprint":  "Fingerprint",
	"cwe":          "CWE",
	"warning_code": "Warning Code",
	"llm_analysis": "Analysis",
}

var (
	colorHigh   = lipgloss.Color("#FF8C00")
	colorMedium = lipgloss.Color("#FFD700")
	colorWeak   = lipgloss.Color("#4169E1")
	colorSubtle = lipgloss.Color("#666666")
)

// Reporter renders findings as labelled text blocks. Styling is applied
// only when the renderer's output supports it.
type Reporter struct {
	ToolVersion string

	renderer *lipgloss.Renderer
}

// NewReporter returns a text Reporter whose colors are chosen for out. Pass
// the destination writer: a file or pipe gets plain text.
func NewReporter(version string, out io.Writer) *Reporter {
	return &Reporter{ToolVersion: version, renderer: lipgloss.NewRenderer(out)}
}

// Generate renders the report.
func (r *Reporter) Generate(rep *report.Report) ([]byte, error) {
	fields := rep.TextFields
	if len(fields) == 0 {
		fields = DefaultFields
	}

	title := r.renderer.NewStyle().Bold(true)
	subtle := r.renderer.NewStyle().Foreground(colorSubtle)
	label := r.renderer.NewStyle().Bold(true)

	var b strings.Builder
	fmt.Fprintln(&b, title.Render("== vigil Report =="))
	fmt.Fprintln(&b)
	if rep.Meta.AppPath != "" {
		fmt.Fprintf(&b, "%s %s\n", label.Render("Application Path:"), rep.Meta.AppPath)
	}
	fmt.Fprintf(&b, "%s %s\n", label.Render("vigil Version:"), r.ToolVersion)
	if !rep.Meta.StartedAt.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", label.Render("Scan Date:"), rep.Meta.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "%s %.2f seconds\n", label.Render("Duration:"), rep.Meta.Duration.Seconds())
	if len(rep.Meta.ChecksRun) > 0 {
		fmt.Fprintf(&b, "%s %s\n", label.Render("Checks Run:"), strings.Join(rep.Meta.ChecksRun, ", "))
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, title.Render("== Overview =="))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s %d\n", label.Render("Files Scanned:"), rep.Meta.FilesScanned)
	fmt.Fprintf(&b, "%s %d\n", label.Render("Security Warnings:"), len(rep.Findings))
	fmt.Fprintln(&b)

	if len(rep.Findings) == 0 {
		fmt.Fprintln(&b, subtle.Render("No warnings found"))
		return []byte(b.String()), nil
	}

	fmt.Fprintln(&b, title.Render("== Warnings =="))
	fmt.Fprintln(&b)
	for _, f := range rep.Findings {
		for _, name := range fields {
			lbl, ok := fieldLabels[name]
			if !ok {
				continue
			}
			value := fieldValue(f, name)
			if value == "" {
				continue
			}
			if name == "confidence" {
				value = r.confidenceStyle(f.Confidence).Render(value)
			}
			fmt.Fprintf(&b, "%s %s\n", label.Render(lbl+":"), value)
		}
		fmt.Fprintln(&b)
	}
	return []byte(b.String()), nil
}

func (r *Reporter) confidenceStyle(c findings.Confidence) lipgloss.Style {
	var color lipgloss.Color
	switch c {
	case findings.ConfidenceHigh:
		color = colorHigh
	case findings.ConfidenceMedium:
		color = colorMedium
	default:
		color = colorWeak
	}
	return r.renderer.NewStyle().Bold(true).Foreground(color)
}

func fieldValue(f findings.Finding, name string) string {
	switch name {
	case "confidence":
		return string(f.Confidence)
	case "category":
		return f.WarningType
	case "check":
		return f.CheckName
	case "code":
		return f.Code
	case "file":
		return f.Location.FilePath
	case "line":
		if f.Location.StartLine == 0 {
			return ""
		}
		return strconv.Itoa(f.Location.StartLine)
	case "message":
		return f.Message
	case "link":
		return f.Link
	case "fingerprint":
		return f.Fingerprint
	case "cwe":
		ids := make([]string, 0, len(f.CWE))
		for _, id := range f.CWE {
			ids = append(ids, "CWE-"+strconv.Itoa(id))
		}
		return strings.Join(ids, ", ")
	case "warning_code":
		return strconv.Itoa(f.WarningCode)
	case "llm_analysis":
		return f.Analysis()
	}
	return ""
}
