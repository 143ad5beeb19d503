// Package main is the entry point for the vigil CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/core/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitClean    = 0
	exitFindings = 1
	exitError    = 2
)

// errFindings marks a successful scan that reported warnings.
var errFindings = errors.New("warnings found")

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the exit code.
// 0 = clean (no warnings), 1 = warnings reported, 2 = error.
func run(args []string) int {
	return runWith(args, os.Stdout, os.Stderr)
}

func runWith(args []string, stdout, stderr io.Writer) int {
	core.Version = version

	a := &app{stdout: stdout, stderr: stderr}
	defer a.closeLogger()
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return exitClean
	case errors.Is(err, errFindings):
		return exitFindings
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
}

// app carries the global flags and output streams shared by commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	debug         bool
	quiet         bool
	logFile       string
	logFormat     string
	logMaxSizeMB  int
	logMaxBackups int

	// log is built on first use and shared by every scan of the run.
	log      *zap.Logger
	closeLog func() error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vigil",
		Short: "Static security scanner for Rails applications with model-written explanations",
		Long: `vigil scans a Ruby on Rails application for security warnings and asks a
language model to explain each one before writing the report.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errors.New("a command is required")
		},
	}
	root.SetVersionTemplate("{{printf \"vigil %s\\n\" .Version}}")

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.debug, "debug", "d", false, "enable debug logging, including the model client")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress progress output")
	pf.StringVar(&a.logFile, "log-file", "", "also write JSON logs to this file (rotated)")
	pf.StringVar(&a.logFormat, "log-format", "console", "stderr log format: console or json")
	pf.IntVar(&a.logMaxSizeMB, "log-max-size", 50, "rotate the log file after this many megabytes")
	pf.IntVar(&a.logMaxBackups, "log-max-backups", 3, "rotated log files to keep (0 keeps all)")

	root.AddCommand(
		a.scanCmd(),
		a.watchCmd(),
		a.serveCmd(),
		a.baselineCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "vigil %s\n", versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// logger returns the run logger, building it on first use. Logs go to
// stderr so stdout stays free for reports and the MCP protocol.
func (a *app) logger() (*zap.Logger, error) {
	if a.log != nil {
		return a.log, nil
	}
	level := ""
	if a.debug {
		level = "debug"
	}
	l, closeLog, err := logging.New(logging.Config{
		Level:      level,
		Format:     a.logFormat,
		File:       a.logFile,
		MaxSizeMB:  a.logMaxSizeMB,
		MaxBackups: a.logMaxBackups,
	}, zapcore.Lock(zapcore.AddSync(a.stderr)))
	if err != nil {
		return nil, err
	}
	a.log, a.closeLog = l, closeLog
	return l, nil
}

// closeLogger flushes the run logger and releases its log file.
func (a *app) closeLogger() {
	if a.closeLog == nil {
		return
	}
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	a.log, a.closeLog = nil, nil
}
