// Package core provides the shared scan pipeline for vigil.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/vigil-sec/vigil/core/baseline"
	"github.com/vigil-sec/vigil/core/discovery"
	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/report"
	"github.com/vigil-sec/vigil/core/report/text"
	"github.com/vigil-sec/vigil/core/rules"
)

// Options controls a scan and the report it produces.
type Options struct {
	// AppPath is the root of the Rails application to scan.
	AppPath string

	// OutputFiles lists report destinations. The format of each file is
	// taken from its extension.
	OutputFiles []string
	// OutputFormats lists formats for console output, or overrides the
	// formats inferred from OutputFiles.
	OutputFormats []string
	// PrintReport writes the report to the console when no OutputFiles
	// are given.
	PrintReport bool

	Quiet bool
	// ReportProgress is nil unless the caller asked for a specific
	// setting; a nil value means progress is reported.
	ReportProgress *bool

	// RulesDir holds additional YAML checks merged over the builtin set.
	RulesDir      string
	SkipFiles     []string
	SkipChecks    []string
	MinConfidence string
	TextFields    []string

	// BaselinePath names the file of accepted warnings, relative to AppPath
	// unless absolute. Empty means config/vigil-baseline.json.
	BaselinePath string
	// SkipBaseline reports every warning, accepted or not.
	SkipBaseline bool
}

// ProgressEnabled reports whether the caller allows progress output.
func (o Options) ProgressEnabled() bool {
	if o.Quiet {
		return false
	}
	return o.ReportProgress == nil || *o.ReportProgress
}

// Meta describes one scan run.
type Meta struct {
	RunID        string
	AppPath      string
	StartedAt    time.Time
	Duration     time.Duration
	FilesScanned int
	ChecksRun    []string
	// Baselined counts warnings dropped because the baseline accepts them.
	Baselined    int
}

// ScanResult holds the complete output of a scan pipeline run.
type ScanResult struct {
	Findings      *findings.FindingSet
	Rules         *rules.RuleSet
	Meta          Meta
	OutputFormats []string
	TextFields    []string
}

// Report converts the result into reporter input.
func (r *ScanResult) Report() *report.Report {
	return &report.Report{
		Findings: r.Findings.Findings(),
		Rules:    r.Rules,
		Meta: report.Meta{
			RunID:        r.Meta.RunID,
			AppPath:      r.Meta.AppPath,
			StartedAt:    r.Meta.StartedAt,
			Duration:     r.Meta.Duration,
			FilesScanned: r.Meta.FilesScanned,
			ChecksRun:    r.Meta.ChecksRun,
			Baselined:    r.Meta.Baselined,
		},
		TextFields: r.TextFields,
	}
}

// OutputFormatsFor returns the report formats the options ask for:
// OutputFormats when set, otherwise the formats implied by the OutputFiles
// extensions, otherwise text. Duplicates are removed.
func OutputFormatsFor(opts Options) ([]string, error) {
	var formats []string
	seen := make(map[string]bool)
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}

	if len(opts.OutputFormats) > 0 {
		for _, name := range opts.OutputFormats {
			f, ok := report.NormalizeFormat(name)
			if !ok {
				return nil, fmt.Errorf("unknown output format %q", name)
			}
			add(f)
		}
		return formats, nil
	}
	for _, p := range opts.OutputFiles {
		add(report.FormatForPath(p))
	}
	if len(formats) == 0 {
		add(report.FormatText)
	}
	return formats, nil
}

// Scanner runs the check engine over an application.
type Scanner struct {
	logger *zap.Logger
	writer *ReportWriter
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets the scanner's logger.
func WithLogger(l *zap.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// WithReportWriter sets the writer used when options request output.
func WithReportWriter(w *ReportWriter) ScannerOption {
	return func(s *Scanner) { s.writer = w }
}

// NewScanner returns a Scanner. Without options it logs nowhere and writes
// reports to stdout.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.writer == nil {
		s.writer = NewReportWriter(Version, os.Stdout)
	}
	return s
}

// Run discovers application files, runs every check, and returns the
// deduplicated, deterministically sorted findings. When opts names output
// files they are written; otherwise the report is printed if PrintReport is
// set.
func (s *Scanner) Run(ctx context.Context, opts Options) (*ScanResult, error) {
	start := time.Now()

	formats, err := OutputFormatsFor(opts)
	if err != nil {
		return nil, err
	}
	var minConf findings.Confidence
	if opts.MinConfidence != "" {
		c, ok := findings.ParseConfidence(opts.MinConfidence)
		if !ok {
			return nil, fmt.Errorf("unknown confidence level %q", opts.MinConfidence)
		}
		minConf = c
	}

	root, err := homedir.Expand(opts.AppPath)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", opts.AppPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("application path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("application path %s is not a directory", root)
	}

	ruleSet, err := loadRules(root, opts.RulesDir)
	if err != nil {
		return nil, err
	}

	// Phase 1: discover files.
	walker, err := discovery.NewWalker(root, opts.SkipFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	files, err := walker.Walk()
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	// Phase 2: run checks.
	engine := rules.NewEngine(ruleSet)
	all := findings.NewFindingSet()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Path, err)
		}
		found, err := engine.ScanFile(f.Path, content)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", f.Path, err)
		}
		for _, finding := range found {
			all.Add(finding)
		}
	}

	// Phase 3: filter, deduplicate, sort.
	all.RemoveByCheckNames(opts.SkipChecks)
	all.FilterConfidence(minConf)
	all.Deduplicate()
	baselined := 0
	if !opts.SkipBaseline {
		bl, err := baseline.Load(resolvePath(root, opts.BaselinePath, baseline.DefaultFile))
		if err != nil {
			return nil, err
		}
		baselined = bl.Filter(all)
		if n := bl.ExpiredCount(); n > 0 {
			s.logger.Info("baseline has expired entries", zap.Int("expired", n))
		}
	}
	all.SortDeterministic()

	textFields := opts.TextFields
	if len(textFields) == 0 {
		textFields = append([]string(nil), text.DefaultFields...)
	}

	result := &ScanResult{
		Findings: all,
		Rules:    ruleSet,
		Meta: Meta{
			RunID:        uuid.NewString(),
			AppPath:      root,
			StartedAt:    start.UTC(),
			Duration:     time.Since(start),
			FilesScanned: len(files),
			ChecksRun:    ruleSet.CheckNames(),
			Baselined:    baselined,
		},
		OutputFormats: formats,
		TextFields:    textFields,
	}

	s.logger.Debug("scan complete",
		zap.String("run_id", result.Meta.RunID),
		zap.Int("files", len(files)),
		zap.Int("warnings", all.Len()),
		zap.Int("baselined", baselined),
		zap.Duration("duration", result.Meta.Duration),
	)

	// Phase 4: report.
	switch {
	case len(opts.OutputFiles) > 0:
		if err := s.writer.WriteToFiles(result, opts.OutputFiles); err != nil {
			return nil, err
		}
	case opts.PrintReport:
		if err := s.writer.WriteToConsole(result, formats); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// loadRules returns the builtin checks merged with rules from dir, a file or
// directory relative to root unless absolute.
func loadRules(root, dir string) (*rules.RuleSet, error) {
	rs, err := rules.LoadBuiltinRules()
	if err != nil {
		return nil, fmt.Errorf("loading builtin rules: %w", err)
	}
	if dir == "" {
		return rs, nil
	}

	path, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", dir, err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("custom rules path %s: %w", path, err)
	}
	var custom *rules.RuleSet
	if info.IsDir() {
		custom, err = rules.LoadRulesFromDir(path)
	} else {
		custom, err = rules.LoadRulesFromFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading custom rules: %w", err)
	}
	rs.Merge(custom)
	return rs, nil
}

// resolvePath returns path relative to root unless it is absolute, with def
// standing in for an empty path.
func resolvePath(root, path, def string) string {
	if path == "" {
		path = def
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, filepath.FromSlash(path))
}
