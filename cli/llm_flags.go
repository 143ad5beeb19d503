package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vigil-sec/vigil/assist"
)

// disclaimerDefault is the value of a bare --llm-disclaimer.
const disclaimerDefault = "default"

// llmOption maps a flag onto a resolver option, with an optional
// environment variable.
type llmOption struct {
	flag string
	key  string
	env  string
}

var llmOptions = []llmOption{
	{flag: "llm-model", key: "model", env: "VIGIL_LLM_MODEL"},
	{flag: "llm-provider", key: "provider", env: "VIGIL_LLM_PROVIDER"},
	{flag: "llm-api-key", key: "api_key", env: "VIGIL_LLM_API_KEY"},
	{flag: "llm-api-base", key: "api_base", env: "VIGIL_LLM_API_BASE"},
	{flag: "llm-timeout", key: "timeout"},
	{flag: "llm-requests-per-minute", key: "requests_per_minute"},
	{flag: "llm-concurrency", key: "concurrency"},
}

// llmFlags collects model options from flags and the environment.
type llmFlags struct {
	fs *pflag.FlagSet
	v  *viper.Viper
}

// normalizeFlagName lets --llm-api_key stand for --llm-api-key.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func addLLMFlags(fs *pflag.FlagSet) *llmFlags {
	fs.SetNormalizeFunc(normalizeFlagName)

	fs.String("llm-model", "", "model name (env VIGIL_LLM_MODEL)")
	fs.String("llm-provider", "", "model provider: openai, gemini, ollama, anthropic or any OpenAI-compatible id (env VIGIL_LLM_PROVIDER)")
	fs.String("llm-api-key", "", "API key for the provider (env VIGIL_LLM_API_KEY)")
	fs.String("llm-api-base", "", "base URL of the provider API (env VIGIL_LLM_API_BASE)")
	fs.Duration("llm-timeout", 0, "timeout for each model request")
	fs.Int("llm-requests-per-minute", 0, "limit model requests per minute")
	fs.Int("llm-concurrency", 0, "number of warnings explained at once")

	fs.String("llm-disclaimer", "", "text appended to each explanation; bare flag restores the default")
	fs.Lookup("llm-disclaimer").NoOptDefVal = disclaimerDefault
	fs.Bool("no-llm-disclaimer", false, "do not append a disclaimer to explanations")

	v := viper.New()
	for _, o := range llmOptions {
		_ = v.BindPFlag("llm."+o.key, fs.Lookup(o.flag))
		if o.env != "" {
			_ = v.BindEnv("llm."+o.key, o.env)
		}
	}
	return &llmFlags{fs: fs, v: v}
}

// settings returns the options given on the command line or in the
// environment. Unset options are left out so lower layers show through.
func (l *llmFlags) settings(debug bool) assist.Settings {
	s := assist.Settings{}
	for _, o := range llmOptions {
		if k := "llm." + o.key; l.v.IsSet(k) {
			s[o.key] = l.v.Get(k)
		}
	}

	if off, _ := l.fs.GetBool("no-llm-disclaimer"); off && l.fs.Changed("no-llm-disclaimer") {
		s["disclaimer"] = false
	} else if l.fs.Changed("llm-disclaimer") {
		text, _ := l.fs.GetString("llm-disclaimer")
		if text == disclaimerDefault {
			s["disclaimer"] = true
		} else {
			s["disclaimer"] = text
		}
	}

	if debug {
		s["log_level"] = "debug"
	}
	return s
}
