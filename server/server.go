// Package server exposes enriched vigil scans to MCP clients.
package server

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/vigil-sec/vigil/assist"
	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/core/report"
	"github.com/vigil-sec/vigil/core/report/text"
)

const (
	// maxOutputBytes is the maximum response size before truncation (1 MB).
	maxOutputBytes = 1 << 20
)

// Server is the vigil MCP server. Scans run through the enrichment pipeline
// and the latest result is cached for the findings tool and resource.
type Server struct {
	version      string
	allowedPaths []string
	llm          *assist.LLMOptions
	enricher     *assist.Enricher
	logger       *zap.Logger

	mu    sync.RWMutex
	cache *core.ScanResult
}

// Option configures a Server.
type Option func(*Server)

// WithEnricher replaces the default enrichment pipeline.
func WithEnricher(e *assist.Enricher) Option {
	return func(s *Server) { s.enricher = e }
}

// WithLogger sets the server's logger. It must not write to stdout, which
// carries the protocol.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server. If allowedPaths is empty, any path may be scanned.
// llm configures the model used to explain warnings.
func New(version string, allowedPaths []string, llm *assist.LLMOptions, opts ...Option) *Server {
	resolved := make([]string, 0, len(allowedPaths))
	for _, p := range allowedPaths {
		abs, err := filepath.Abs(p)
		if err == nil {
			resolved = append(resolved, abs)
		}
	}
	s := &Server{
		version:      version,
		allowedPaths: resolved,
		llm:          llm,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.enricher == nil {
		s.enricher = assist.NewEnricher(assist.WithRunLogger(s.logger))
	}
	return s
}

// Serve starts the MCP server on stdio and blocks until the client disconnects.
func (s *Server) Serve() error {
	return mcpserver.ServeStdio(s.mcpServer())
}

func (s *Server) mcpServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"vigil",
		s.version,
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
	)
	s.registerTools(srv)
	s.registerResources(srv)
	return srv
}

func (s *Server) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcp.NewTool("scan",
			mcp.WithDescription("Scan a Rails application and explain each security warning"),
			mcp.WithString("path",
				mcp.Description("Absolute path to the application root"),
				mcp.Required(),
			),
			mcp.WithString("min_confidence",
				mcp.Description("Drop warnings below this confidence"),
				mcp.Enum("high", "medium", "weak"),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleScan,
	)

	srv.AddTool(
		mcp.NewTool("get_findings",
			mcp.WithDescription("Get the warnings from the last scan"),
			mcp.WithString("format",
				mcp.Description("Output format: json, sarif or text"),
				mcp.Enum(report.FormatJSON, report.FormatSARIF, report.FormatText),
				mcp.DefaultString(report.FormatJSON),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetFindings,
	)
}

func (s *Server) registerResources(srv *mcpserver.MCPServer) {
	srv.AddResource(
		mcp.NewResource("vigil://findings", "Findings JSON",
			mcp.WithResourceDescription("Warnings from the last scan in vigil JSON format"),
			mcp.WithMIMEType("application/json"),
		),
		s.handleResourceFindings,
	)
}

// isPathAllowed checks if the given path is under one of the allowed workspace roots.
func (s *Server) isPathAllowed(path string) error {
	if len(s.allowedPaths) == 0 {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path: %w", err)
	}

	for _, allowed := range s.allowedPaths {
		rel, err := filepath.Rel(allowed, abs)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(rel, "..") {
			return nil
		}
	}

	return fmt.Errorf("path %q is outside allowed workspaces", path)
}

func (s *Server) handleScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: path"), nil
	}

	if err := s.isPathAllowed(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// JSON output selects structured enrichment; no output is written.
	res, err := s.enricher.Run(ctx, assist.RunOptions{
		Scan: core.Options{
			AppPath:       path,
			OutputFormats: []string{report.FormatJSON},
			Quiet:         true,
			MinConfidence: request.GetString("min_confidence", ""),
		},
		LLM: s.llm,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	s.mu.Lock()
	s.cache = res.Scan
	s.mu.Unlock()

	summary := fmt.Sprintf("Scan complete: %d warnings, %d explained, %d unexplained",
		res.Stats.Total, res.Stats.Enriched, res.Stats.Failed)
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleGetFindings(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cache := s.cached()
	if cache == nil {
		return mcp.NewToolResultError("no scan results available, run the scan tool first"), nil
	}

	format, ok := report.NormalizeFormat(request.GetString("format", report.FormatJSON))
	if !ok {
		return mcp.NewToolResultError("unsupported format"), nil
	}
	data, err := s.render(cache, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("report generation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(truncate(data)), nil
}

func (s *Server) handleResourceFindings(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cache := s.cached()
	if cache == nil {
		return nil, fmt.Errorf("no scan results available")
	}

	data, err := s.render(cache, report.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("generating findings JSON: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     truncate(data),
		},
	}, nil
}

func (s *Server) cached() *core.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

func (s *Server) render(res *core.ScanResult, format string) (string, error) {
	if format == report.FormatText {
		res = withAnalysisField(res)
	}
	var buf bytes.Buffer
	if err := core.NewReportWriter(s.version, &buf).WriteToConsole(res, []string{format}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// withAnalysisField returns res with llm_analysis appended to its text
// fields. Scans run here are enriched in structured mode, so explanations
// live in that field rather than in the message.
func withAnalysisField(res *core.ScanResult) *core.ScanResult {
	fields := res.TextFields
	if len(fields) == 0 {
		fields = text.DefaultFields
	}
	if slices.Contains(fields, "llm_analysis") {
		return res
	}
	view := *res
	view.TextFields = append(slices.Clone(fields), "llm_analysis")
	return &view
}

// truncate limits output to maxOutputBytes without splitting a UTF-8
// sequence, appending a truncation notice if needed.
func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	cut := maxOutputBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... [truncated: output exceeded 1MB limit]"
}
