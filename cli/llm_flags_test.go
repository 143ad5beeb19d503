package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func parseLLMFlags(t *testing.T, args ...string) *llmFlags {
	t.Helper()
	clearLLMEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	l := addLLMFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return l
}

func TestLLMFlags_OnlySetOptions(t *testing.T) {
	s := parseLLMFlags(t, "--llm-model", "gpt-4o").settings(false)
	if len(s) != 1 || s["model"] != "gpt-4o" {
		t.Fatalf("settings = %v, want only model", s)
	}
}

func TestLLMFlags_UnderscoreAlias(t *testing.T) {
	s := parseLLMFlags(t, "--llm-api_key", "secret", "--llm-api_base=http://localhost:1234").settings(false)
	if s["api_key"] != "secret" {
		t.Errorf("api_key = %v", s["api_key"])
	}
	if s["api_base"] != "http://localhost:1234" {
		t.Errorf("api_base = %v", s["api_base"])
	}
}

func TestLLMFlags_Disclaimer(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want any
	}{
		{"bare flag restores default", []string{"--llm-disclaimer"}, true},
		{"custom text", []string{"--llm-disclaimer=Check before acting"}, "Check before acting"},
		{"negated", []string{"--no-llm-disclaimer"}, false},
		{"negation wins", []string{"--llm-disclaimer=x", "--no-llm-disclaimer"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parseLLMFlags(t, tt.args...).settings(false)
			if s["disclaimer"] != tt.want {
				t.Fatalf("disclaimer = %#v, want %#v", s["disclaimer"], tt.want)
			}
		})
	}
}

func TestLLMFlags_DisclaimerUnset(t *testing.T) {
	s := parseLLMFlags(t).settings(false)
	if _, ok := s["disclaimer"]; ok {
		t.Fatalf("disclaimer should be absent, got %v", s["disclaimer"])
	}
}

func TestLLMFlags_Environment(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("VIGIL_LLM_PROVIDER", "ollama")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	l := addLLMFlags(fs)
	if err := fs.Parse([]string{"--llm-model", "llama3"}); err != nil {
		t.Fatal(err)
	}
	s := l.settings(false)
	if s["provider"] != "ollama" || s["model"] != "llama3" {
		t.Fatalf("settings = %v", s)
	}
}

func TestLLMFlags_FlagBeatsEnvironment(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("VIGIL_LLM_MODEL", "from-env")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	l := addLLMFlags(fs)
	if err := fs.Parse([]string{"--llm-model", "from-flag"}); err != nil {
		t.Fatal(err)
	}
	if got := l.settings(false)["model"]; got != "from-flag" {
		t.Fatalf("model = %v, want from-flag", got)
	}
}

func TestLLMFlags_DebugRaisesLogLevel(t *testing.T) {
	s := parseLLMFlags(t).settings(true)
	if s["log_level"] != "debug" {
		t.Fatalf("log_level = %v", s["log_level"])
	}
}
