package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/core/baseline"
)

func (a *app) baselineCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Record accepted warnings so later scans skip them",
		Long: `Warnings recorded in the baseline are dropped before they are explained
or reported. The default file is <app>/` + baseline.DefaultFile + `.`,
	}
	cmd.PersistentFlags().StringVar(&path, "baseline", "", "baseline file (default <app>/"+baseline.DefaultFile+")")

	var note string
	write := &cobra.Command{
		Use:   "write [path]",
		Short: "Replace the baseline with every current warning",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args)
			res, err := a.scanWithoutBaseline(cmd.Context(), target)
			if err != nil {
				return err
			}
			bl := &baseline.Baseline{}
			for _, e := range baseline.FromFindings(res.Findings.Findings()) {
				e.Note = note
				bl.Add(e)
			}
			out := baselinePath(target, path)
			if err := bl.Save(out); err != nil {
				return fmt.Errorf("writing baseline: %w", err)
			}
			fmt.Fprintf(a.stdout, "baseline: wrote %d entries to %s\n", bl.Len(), out)
			return nil
		},
	}
	write.Flags().StringVar(&note, "note", "", "note recorded on each entry")

	update := &cobra.Command{
		Use:   "update [path]",
		Short: "Add new warnings to the baseline and prune fixed ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args)
			res, err := a.scanWithoutBaseline(cmd.Context(), target)
			if err != nil {
				return err
			}
			out := baselinePath(target, path)
			bl, err := baseline.Load(out)
			if err != nil {
				return err
			}
			current := res.Findings.Findings()
			added := 0
			for _, e := range baseline.FromFindings(current) {
				if bl.Add(e) {
					added++
				}
			}
			pruned := bl.Prune(current)
			if err := bl.Save(out); err != nil {
				return fmt.Errorf("saving baseline: %w", err)
			}
			fmt.Fprintf(a.stdout, "baseline: %d total, %d added, %d pruned (%s)\n", bl.Len(), added, pruned, out)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show [path]",
		Short: "List baseline entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := baselinePath(targetArg(args), path)
			bl, err := baseline.Load(out)
			if err != nil {
				return err
			}
			if bl.Len() == 0 {
				fmt.Fprintf(a.stdout, "baseline: no entries in %s\n", out)
				return nil
			}
			fmt.Fprintf(a.stdout, "baseline: %d entries (%d expired) in %s\n\n", bl.Len(), bl.ExpiredCount(), out)
			for _, e := range bl.Entries {
				fmt.Fprintf(a.stdout, "  %-8s %-20s %s  %.12s", e.Confidence, e.CheckName, e.FilePath, e.Fingerprint)
				if e.Note != "" {
					fmt.Fprintf(a.stdout, "  # %s", e.Note)
				}
				fmt.Fprintln(a.stdout)
			}
			return nil
		},
	}

	cmd.AddCommand(write, update, show)
	return cmd
}

// scanWithoutBaseline runs the check engine with every warning kept and no
// report output.
func (a *app) scanWithoutBaseline(ctx context.Context, target string) (*core.ScanResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}

	project, err := core.LoadProjectConfig(target, "")
	if err != nil {
		return nil, err
	}
	opts := core.Options{AppPath: target, SkipBaseline: true}
	project.ApplyTo(&opts)
	opts.OutputFiles, opts.OutputFormats = nil, nil

	res, err := core.NewScanner(core.WithLogger(logger)).Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	logger.Debug("baseline scan", zap.Int("warnings", res.Findings.Len()))
	return res, nil
}

func targetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func baselinePath(target, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return baseline.DefaultPath(filepath.Clean(target))
}
