package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/vigil-sec/vigil/assist"
)

func TestRun_VersionFlag(t *testing.T) {
	var out bytes.Buffer
	code := runWith([]string{"--version"}, &out, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("expected exit code 0 for --version, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "vigil ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestRun_VersionCommand(t *testing.T) {
	var out bytes.Buffer
	code := runWith([]string{"version"}, &out, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("expected exit code 0 for version command, got %d", code)
	}
	if !strings.Contains(out.String(), "commit:") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestRun_NoArgs(t *testing.T) {
	code := runWith([]string{}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 2 {
		t.Fatalf("expected exit code 2 for no args, got %d", code)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code := runWith([]string{"invalid"}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 2 {
		t.Fatalf("expected exit code 2 for unknown command, got %d", code)
	}
}

func TestRun_ScanNoPath(t *testing.T) {
	code := runWith([]string{"scan"}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 2 {
		t.Fatalf("expected exit code 2 for scan without path, got %d", code)
	}
}

func TestRun_ScanWithoutLLMConfig(t *testing.T) {
	clearLLMEnv(t)
	dir := vulnerableApp(t)
	out := filepath.Join(dir, "tmp", "report.json")

	var stderr bytes.Buffer
	code := runWith([]string{"scan", dir, "-o", out}, &bytes.Buffer{}, &stderr)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "missing required LLM option(s): model, provider") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("no report should be written without LLM configuration")
	}
}

func TestRun_ScanJSONReport(t *testing.T) {
	clearLLMEnv(t)
	srv, requests := fakeOpenAI(t, "Use bind parameters.")
	dir := vulnerableApp(t)
	out := filepath.Join(dir, "tmp", "report.json")

	code := runWith([]string{
		"scan", dir, "-q",
		"--llm-provider", "openai",
		"--llm-model", "gpt-4o-mini",
		"--llm-api-key", "test-key",
		"--llm-api-base", srv.URL,
		"-o", out,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1 for warnings, got %d", code)
	}

	warnings := readWarnings(t, out)
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d", len(warnings))
	}
	want := "Use bind parameters.\n\n" + assist.DefaultDisclaimer
	for _, w := range warnings {
		if w["llm_analysis"] != want {
			t.Errorf("llm_analysis = %v, want %q", w["llm_analysis"], want)
		}
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("model requests = %d, want 3", got)
	}
}

func TestRun_ScanTextToConsole(t *testing.T) {
	clearLLMEnv(t)
	srv, _ := fakeOpenAI(t, "Validate the redirect target.")
	dir := vulnerableApp(t)

	var stdout bytes.Buffer
	code := runWith([]string{
		"scan", dir, "-q",
		"--llm-provider", "openai",
		"--llm-model", "gpt-4o-mini",
		"--llm-api_key", "test-key",
		"--llm-api_base", srv.URL,
		"--llm-disclaimer=LLMs can be wrong",
	}, &stdout, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	text := stdout.String()
	if !strings.Contains(text, "Validate the redirect target.") {
		t.Fatalf("explanation missing from text report:\n%s", text)
	}
	if !strings.Contains(text, "LLMs can be wrong") || strings.Contains(text, assist.DefaultDisclaimer) {
		t.Fatalf("custom disclaimer not applied:\n%s", text)
	}
}

func TestRun_ScanNoDisclaimer(t *testing.T) {
	clearLLMEnv(t)
	srv, _ := fakeOpenAI(t, "Explained.")
	dir := vulnerableApp(t)
	out := filepath.Join(dir, "tmp", "report.json")

	code := runWith([]string{
		"scan", dir, "-q", "--no-llm-disclaimer",
		"--llm-provider", "openai", "--llm-model", "m",
		"--llm-api-key", "k", "--llm-api-base", srv.URL,
		"-o", out,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	for _, w := range readWarnings(t, out) {
		if w["llm_analysis"] != "Explained." {
			t.Errorf("llm_analysis = %v", w["llm_analysis"])
		}
	}
}

func TestRun_ScanEnvironmentConfig(t *testing.T) {
	srv, requests := fakeOpenAI(t, "From env.")
	t.Setenv("VIGIL_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("VIGIL_LLM_PROVIDER", "openai")
	t.Setenv("VIGIL_LLM_API_KEY", "env-key")
	t.Setenv("VIGIL_LLM_API_BASE", srv.URL)
	dir := vulnerableApp(t)
	out := filepath.Join(dir, "tmp", "report.json")

	code := runWith([]string{"scan", dir, "-q", "-o", out}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if requests.Load() != 3 {
		t.Fatalf("model requests = %d, want 3", requests.Load())
	}
}

func TestRun_ScanProjectConfig(t *testing.T) {
	clearLLMEnv(t)
	srv, _ := fakeOpenAI(t, "From config.")
	dir := vulnerableApp(t)
	writeFile(t, dir, "config/vigil.yml", `llm:
  model: gpt-4o-mini
  provider: openai
  api_key: file-key
  api_base: `+srv.URL+`
  disclaimer: false
output:
  files:
    - tmp/out.json
`)
	// Relative output files resolve against the working directory.
	t.Chdir(dir)

	code := runWith([]string{"scan", dir, "-q"}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	for _, w := range readWarnings(t, filepath.Join(dir, "tmp", "out.json")) {
		if w["llm_analysis"] != "From config." {
			t.Errorf("llm_analysis = %v", w["llm_analysis"])
		}
	}
}

func TestRun_ScanCleanApp(t *testing.T) {
	clearLLMEnv(t)
	srv, requests := fakeOpenAI(t, "unused")
	dir := t.TempDir()
	writeFile(t, dir, "app/models/user.rb", "class User < ApplicationRecord\nend\n")

	code := runWith([]string{
		"scan", dir, "-q",
		"--llm-provider", "openai", "--llm-model", "m",
		"--llm-api-key", "k", "--llm-api-base", srv.URL,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("expected exit code 0 for clean app, got %d", code)
	}
	if requests.Load() != 0 {
		t.Fatalf("no model requests expected, got %d", requests.Load())
	}
}

func TestRun_ScanModelDownStillReports(t *testing.T) {
	clearLLMEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	dir := vulnerableApp(t)
	out := filepath.Join(dir, "tmp", "report.json")

	code := runWith([]string{
		"scan", dir, "-q",
		"--llm-provider", "openai", "--llm-model", "m",
		"--llm-api-key", "k", "--llm-api-base", srv.URL,
		"-o", out,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	for _, w := range readWarnings(t, out) {
		if w["llm_analysis"] != nil {
			t.Errorf("llm_analysis = %v, want null", w["llm_analysis"])
		}
	}
}

func TestRun_ScanMetricsFile(t *testing.T) {
	clearLLMEnv(t)
	srv, _ := fakeOpenAI(t, "ok")
	dir := vulnerableApp(t)
	metrics := filepath.Join(t.TempDir(), "vigil.prom")

	code := runWith([]string{
		"scan", dir, "-q",
		"--llm-provider", "openai", "--llm-model", "m",
		"--llm-api-key", "k", "--llm-api-base", srv.URL,
		"--metrics-file", metrics,
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if !strings.Contains(string(data), `vigil_enrichment_requests_total{outcome="success"} 3`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}
}

func TestRun_ScanBadDocsDir(t *testing.T) {
	clearLLMEnv(t)
	dir := vulnerableApp(t)
	code := runWith([]string{
		"scan", dir, "--llm-provider", "openai", "--llm-model", "m",
		"--docs-dir", filepath.Join(dir, "missing"),
	}, &bytes.Buffer{}, &bytes.Buffer{})
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

// Helpers

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, o := range llmOptions {
		if o.env != "" {
			t.Setenv(o.env, "")
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func vulnerableApp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "app/models/user.rb", `class User < ApplicationRecord
  def self.named(name)
    User.where("name = '#{name}'")
  end
end
`)
	writeFile(t, dir, "app/controllers/users_controller.rb", `class UsersController < ApplicationController
  def show
    @user = User.where("id = #{params[:id]}").first
    redirect_to params[:back]
  end
end
`)
	return dir
}

// fakeOpenAI serves chat completions that always answer content.
func fakeOpenAI(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func readWarnings(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var doc struct {
		Warnings []map[string]any `json:"warnings"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	return doc.Warnings
}
