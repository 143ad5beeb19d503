package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vigil-sec/vigil/core/report"
	"github.com/vigil-sec/vigil/core/report/sarif"
	"github.com/vigil-sec/vigil/core/report/text"
)

// Version is the vigil version embedded in reports. Overridden at build time
// with -ldflags "-X github.com/vigil-sec/vigil/core.Version=...".
var Version = "dev"

// ReportWriter renders scan results to files or the console.
type ReportWriter struct {
	version string
	stdout  io.Writer
}

// NewReportWriter returns a ReportWriter that prints console reports to
// stdout.
func NewReportWriter(version string, stdout io.Writer) *ReportWriter {
	return &ReportWriter{version: version, stdout: stdout}
}

func (w *ReportWriter) reporter(format string, out io.Writer) (report.Reporter, error) {
	switch format {
	case report.FormatJSON:
		return report.NewJSONReporter(w.version), nil
	case report.FormatSARIF:
		return sarif.NewReporter(w.version), nil
	case report.FormatText:
		return text.NewReporter(w.version, out), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// WriteToFiles writes one report per path, choosing each format from the
// file extension. Parent directories are created as needed.
func (w *ReportWriter) WriteToFiles(res *ScanResult, paths []string) error {
	rep := res.Report()
	for _, p := range paths {
		r, err := w.reporter(report.FormatForPath(p), io.Discard)
		if err != nil {
			return err
		}
		data, err := r.Generate(rep)
		if err != nil {
			return fmt.Errorf("generating %s: %w", p, err)
		}
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
	}
	return nil
}

// WriteToConsole prints one report per format to stdout.
func (w *ReportWriter) WriteToConsole(res *ScanResult, formats []string) error {
	rep := res.Report()
	for _, f := range formats {
		r, err := w.reporter(f, w.stdout)
		if err != nil {
			return err
		}
		data, err := r.Generate(rep)
		if err != nil {
			return fmt.Errorf("generating %s report: %w", f, err)
		}
		if _, err := w.stdout.Write(data); err != nil {
			return fmt.Errorf("writing %s report: %w", f, err)
		}
	}
	return nil
}
