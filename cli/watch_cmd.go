package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		sf       *scanFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Re-run the enriched scan whenever application files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) > 0 {
				target = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scan := func() {
				res, err := a.runEnrichedScan(ctx, target, sf)
				if err != nil {
					fmt.Fprintf(a.stderr, "error: scan failed: %v\n", err)
					return
				}
				fmt.Fprintf(a.stderr, "watch: %d warning(s), %d explained\n", res.Stats.Total, res.Stats.Enriched)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			defer watcher.Close()

			if err := addDirsRecursive(watcher, target); err != nil {
				return fmt.Errorf("watching directories: %w", err)
			}

			fmt.Fprintf(a.stderr, "watch: scanning %s (debounce: %s)\n", target, debounce)
			scan()

			err = watchLoop(ctx, watcher, target, debounce, func() {
				fmt.Fprintf(a.stderr, "watch: re-scanning %s\n", target)
				scan()
			})
			fmt.Fprintln(a.stderr, "watch: stopped")
			return err
		},
	}
	sf = addScanFlags(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period after a change before re-scanning")
	return cmd
}

// watchLoop calls onChange once changes under root have been quiet for
// debounce. onChange runs on the loop goroutine, so scans never overlap. It
// returns when ctx is done or the watcher closes.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, root string, debounce time.Duration, onChange func()) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(root, event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					_ = addDirsRecursive(watcher, event.Name)
				}
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				timer.Reset(debounce)
				continue
			}
			return fmt.Errorf("watch: %w", err)
		case <-timer.C:
			onChange()
		case <-ctx.Done():
			return nil
		}
	}
}

// relevant drops events that cannot change scan results: chmod-only events
// and anything under the application's tmp/ or log/ directories, where
// reports are often written.
func relevant(root string, event fsnotify.Event) bool {
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		return false
	}
	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return true
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first != "tmp" && first != "log"
}

func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		switch filepath.Base(path) {
		case ".git", "node_modules", "tmp", "log", "vendor":
			if path != root {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}
