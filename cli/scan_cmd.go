package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigil-sec/vigil/assist"
	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/core/baseline"
)

// scanFlags are shared by scan and watch.
type scanFlags struct {
	outputs       []string
	formats       []string
	skipFiles     []string
	skipChecks    []string
	noProgress    bool
	configFile    string
	rulesDir      string
	docsDir       string
	metricsFile   string
	minConfidence string
	baselineFile  string
	noBaseline    bool

	llm *llmFlags
}

func addScanFlags(cmd *cobra.Command) *scanFlags {
	sf := &scanFlags{}
	fs := cmd.Flags()
	sf.llm = addLLMFlags(fs)

	fs.StringSliceVarP(&sf.outputs, "output", "o", nil, "report files; the format follows the extension (.json, .sarif, .txt)")
	fs.StringSliceVarP(&sf.formats, "format", "f", nil, "report formats: text, json, sarif")
	fs.StringSliceVar(&sf.skipFiles, "skip-files", nil, "additional path patterns to skip")
	fs.StringSliceVarP(&sf.skipChecks, "skip-checks", "x", nil, "checks to skip, by name")
	fs.BoolVar(&sf.noProgress, "no-progress", false, "do not report enrichment progress")
	fs.StringVarP(&sf.configFile, "config-file", "c", "", "configuration file (default <app>/"+core.DefaultConfigPath+")")
	fs.StringVar(&sf.rulesDir, "rules-dir", "", "file or directory of additional YAML checks")
	fs.StringVar(&sf.docsDir, "docs-dir", "", "directory of background documents, replacing the built-in set")
	fs.StringVar(&sf.metricsFile, "metrics-file", "", "write enrichment metrics to this file in Prometheus text format")
	fs.StringVarP(&sf.minConfidence, "confidence", "w", "", "minimum confidence to report: high, medium, weak")
	fs.StringVar(&sf.baselineFile, "baseline", "", "file of accepted warnings, relative to the application (default "+baseline.DefaultFile+")")
	fs.BoolVar(&sf.noBaseline, "no-baseline", false, "report warnings even when the baseline accepts them")
	return sf
}

func (a *app) scanCmd() *cobra.Command {
	var sf *scanFlags
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan an application and explain each warning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.runEnrichedScan(cmd.Context(), args[0], sf)
			if err != nil {
				return err
			}
			if res.Scan.Findings.Len() > 0 {
				return errFindings
			}
			return nil
		},
	}
	sf = addScanFlags(cmd)
	return cmd
}

// runEnrichedScan resolves configuration from the application's config
// file, flags and environment, then runs an enriched scan that prints or
// writes its report.
func (a *app) runEnrichedScan(ctx context.Context, appPath string, sf *scanFlags) (*assist.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}

	project, err := core.LoadProjectConfig(appPath, sf.configFile)
	if err != nil {
		return nil, err
	}
	if project.Path != "" {
		logger.Debug("loaded configuration", zap.String("path", project.Path))
	}

	opts := core.Options{
		AppPath:       appPath,
		OutputFiles:   sf.outputs,
		OutputFormats: sf.formats,
		PrintReport:   true,
		Quiet:         a.quiet,
		RulesDir:      sf.rulesDir,
		SkipFiles:     sf.skipFiles,
		SkipChecks:    sf.skipChecks,
		MinConfidence: sf.minConfidence,
		BaselinePath:  sf.baselineFile,
		SkipBaseline:  sf.noBaseline,
	}
	if sf.noProgress {
		off := false
		opts.ReportProgress = &off
	}
	project.ApplyTo(&opts)

	llmCfg, err := assist.ResolveConfig(assist.Settings(project.LLM), sf.llm.settings(a.debug))
	if err != nil {
		return nil, err
	}

	docs, err := docResolver(sf.docsDir, logger)
	if err != nil {
		return nil, err
	}

	metrics := assist.NewMetrics()
	enricher := assist.NewEnricher(
		assist.WithRunLogger(logger),
		assist.WithScanner(core.NewScanner(core.WithLogger(logger))),
		assist.WithRenderer(core.NewReportWriter(version, a.stdout)),
		assist.WithDocs(docs),
		assist.WithMetrics(metrics),
	)

	res, err := enricher.Run(ctx, assist.RunOptions{
		Scan: opts,
		LLM:  &assist.LLMOptions{Config: llmCfg},
	})
	if sf.metricsFile != "" {
		if werr := metrics.WriteFile(sf.metricsFile); werr != nil {
			logger.Warn("writing metrics", zap.String("path", sf.metricsFile), zap.Error(werr))
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func docResolver(dir string, logger *zap.Logger) (*assist.DocResolver, error) {
	if dir == "" {
		return assist.NewDocResolver(nil, logger), nil
	}
	path, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", dir, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("docs directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs directory %s is not a directory", path)
	}
	return assist.NewDocResolver(os.DirFS(path), logger), nil
}
