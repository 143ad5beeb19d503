package assist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/report"
	"github.com/vigil-sec/vigil/core/report/text"
)

// Stage is the position of an enriched run in its lifecycle.
type Stage string

const (
	StageConfiguring Stage = "configuring"
	StageScanning    Stage = "scanning"
	StageEnriching   Stage = "enriching"
	StageReporting   Stage = "reporting"
	StageDone        Stage = "done"
	// StageAborted is only entered from StageConfiguring.
	StageAborted Stage = "aborted"
)

// ErrNoScanResult reports a Scanner that returned neither a result with
// findings nor an error.
var ErrNoScanResult = errors.New("scanner returned no result and no error")

// Scanner produces findings for an application. A nil error implies a
// result with a non-nil Findings set.
type Scanner interface {
	Run(ctx context.Context, opts core.Options) (*core.ScanResult, error)
}

// Renderer writes a finished result.
type Renderer interface {
	WriteToFiles(res *core.ScanResult, paths []string) error
	WriteToConsole(res *core.ScanResult, formats []string) error
}

// Explainer produces an explanation for one finding.
type Explainer interface {
	Explain(ctx context.Context, f findings.Finding) (string, error)
}

// LLMOptions configures the model side of a run. Explainer, when set, is
// used as-is; otherwise an Analyst is built from Config. Config also
// supplies the disclaimer and concurrency.
type LLMOptions struct {
	Config    *Config
	Explainer Explainer
}

// RunOptions configures an enriched run.
type RunOptions struct {
	Scan core.Options
	LLM  *LLMOptions
}

// Stats counts enrichment outcomes.
type Stats struct {
	Total    int
	Enriched int
	Failed   int
}

// Result is the outcome of an enriched run.
type Result struct {
	Scan  *core.ScanResult
	Stats Stats
	Stage Stage
}

// Enricher runs a scan, asks a model to explain each warning, and writes the
// enriched report.
type Enricher struct {
	scanner     Scanner
	renderer    Renderer
	progress    Progress
	metrics     *Metrics
	docs        *DocResolver
	logger      *zap.Logger
	concurrency int
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithScanner replaces the default core scanner.
func WithScanner(s Scanner) Option {
	return func(e *Enricher) { e.scanner = s }
}

// WithRenderer replaces the default report writer.
func WithRenderer(r Renderer) Option {
	return func(e *Enricher) { e.renderer = r }
}

// WithProgress replaces the stderr progress line.
func WithProgress(p Progress) Option {
	return func(e *Enricher) { e.progress = p }
}

// WithMetrics records request counts and latencies on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// WithDocs sets the background document source for analysts the Enricher
// builds.
func WithDocs(r *DocResolver) Option {
	return func(e *Enricher) { e.docs = r }
}

// WithRunLogger sets the logger for the run and the analysts it builds.
func WithRunLogger(l *zap.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// WithConcurrency explains up to n warnings at once. It overrides the
// configured concurrency; 1 or less is sequential.
func WithConcurrency(n int) Option {
	return func(e *Enricher) { e.concurrency = n }
}

// NewEnricher returns an Enricher using the core scanner and report writer
// unless replaced by options.
func NewEnricher(opts ...Option) *Enricher {
	e := &Enricher{logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.scanner == nil {
		e.scanner = core.NewScanner(core.WithLogger(e.logger))
	}
	if e.renderer == nil {
		e.renderer = core.NewReportWriter(core.Version, os.Stdout)
	}
	if e.progress == nil {
		e.progress = NewTerminalProgress(os.Stderr)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}
	return e
}

// Metrics returns the Enricher's metrics.
func (e *Enricher) Metrics() *Metrics { return e.metrics }

// RunWithEnrichment runs an enriched scan with the default scanner, report
// writer and progress line.
func RunWithEnrichment(ctx context.Context, opts RunOptions) (*Result, error) {
	return NewEnricher().Run(ctx, opts)
}

// Run scans opts.Scan.AppPath, explains each warning, and writes the report
// to the requested files, or to the console when PrintReport is set and no
// files are named. A missing model configuration aborts before scanning.
// Failed explanations are logged and leave their warning unchanged.
func (e *Enricher) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	res := &Result{Stage: StageConfiguring}

	explainer, cfg, err := e.configure(opts.LLM)
	if err != nil {
		res.Stage = StageAborted
		return res, err
	}
	formats, err := core.OutputFormatsFor(opts.Scan)
	if err != nil {
		res.Stage = StageAborted
		return res, err
	}
	structured := structuredOutput(formats)
	disclaimer := ResolveDisclaimer(cfg.Disclaimer)

	// The scanner must not report: output waits for enrichment.
	scanOpts := opts.Scan
	scanOpts.OutputFiles = nil
	scanOpts.OutputFormats = nil
	scanOpts.PrintReport = false

	res.Stage = StageScanning
	scan, err := e.scanner.Run(ctx, scanOpts)
	if err != nil {
		return res, err
	}
	if scan == nil || scan.Findings == nil {
		return res, ErrNoScanResult
	}
	scan.OutputFormats = formats
	res.Scan = scan

	res.Stage = StageEnriching
	progress := e.progress
	if !opts.Scan.ProgressEnabled() {
		progress = nopProgress{}
	}
	workers := e.concurrency
	if workers == 0 {
		workers = cfg.Concurrency
	}
	res.Stats = e.enrich(ctx, explainer, scan.Findings, structured, disclaimer, progress, workers)
	e.logger.Info("enrichment complete",
		zap.Int("warnings", res.Stats.Total),
		zap.Int("enriched", res.Stats.Enriched),
		zap.Int("failed", res.Stats.Failed),
		zap.Bool("structured", structured),
	)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Stage = StageReporting
	if len(scan.TextFields) == 0 {
		scan.TextFields = append([]string(nil), text.DefaultFields...)
	}
	switch {
	case len(opts.Scan.OutputFiles) > 0:
		if err := e.renderer.WriteToFiles(scan, opts.Scan.OutputFiles); err != nil {
			return res, fmt.Errorf("writing reports: %w", err)
		}
	case opts.Scan.PrintReport:
		if err := e.renderer.WriteToConsole(scan, formats); err != nil {
			return res, fmt.Errorf("printing report: %w", err)
		}
	}

	res.Stage = StageDone
	return res, nil
}

func (e *Enricher) configure(llm *LLMOptions) (Explainer, Config, error) {
	if llm == nil || (llm.Explainer == nil && llm.Config == nil) {
		return nil, Config{}, missingConfig()
	}
	var cfg Config
	if llm.Config != nil {
		cfg = *llm.Config
	}
	if llm.Explainer != nil {
		return llm.Explainer, cfg, nil
	}

	analyst, err := NewAnalyst(cfg, WithLogger(e.logger), WithDocResolver(e.docs))
	if err != nil {
		return nil, cfg, err
	}
	return analyst, cfg, nil
}

type outcome struct {
	text string
	err  error
}

// enrich explains every finding and merges the results in scanner order.
// Each call sees its own copy of the finding.
func (e *Enricher) enrich(ctx context.Context, ex Explainer, set *findings.FindingSet, structured bool, disclaimer string, progress Progress, workers int) Stats {
	list := set.Findings()
	outcomes := make([]outcome, len(list))
	progress.Begin(len(list))

	if workers <= 1 {
		for i := range list {
			outcomes[i] = e.explain(ctx, ex, list[i])
			progress.Advance()
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range list {
			f := list[i]
			g.Go(func() error {
				outcomes[i] = e.explain(ctx, ex, f)
				progress.Advance()
				return nil
			})
		}
		_ = g.Wait()
	}

	stats := Stats{Total: len(list)}
	for i, o := range outcomes {
		if o.err != nil {
			stats.Failed++
			continue
		}
		stats.Enriched++
		if structured {
			analysis := o.text
			if disclaimer != "" {
				analysis += "\n\n" + disclaimer
			}
			set.SetAnalysis(i, analysis)
			continue
		}
		set.AppendMessage(i, o.text)
		if disclaimer != "" {
			set.AppendMessage(i, disclaimer)
		}
	}
	return stats
}

func (e *Enricher) explain(ctx context.Context, ex Explainer, f findings.Finding) outcome {
	start := time.Now()
	analysis, err := ex.Explain(ctx, f)
	e.metrics.observe(err, time.Since(start))
	if err != nil {
		e.logger.Warn("could not explain warning",
			zap.String("fingerprint", f.Fingerprint),
			zap.String("check", f.CheckName),
			zap.String("file", f.Location.FilePath),
			zap.Int("line", f.Location.StartLine),
			zap.Error(err),
		)
	}
	return outcome{text: analysis, err: err}
}

// structuredOutput reports whether any format carries warnings as
// structured data, in which case explanations go into llm_analysis rather
// than the message.
func structuredOutput(formats []string) bool {
	for _, f := range formats {
		if f == report.FormatJSON || f == report.FormatSARIF {
			return true
		}
	}
	return false
}
