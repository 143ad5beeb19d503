package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultConfigPath is where an application keeps its vigil settings,
// relative to the application root.
const DefaultConfigPath = "config/vigil.yml"

// ProjectConfig holds application-level configuration loaded from
// config/vigil.yml.
type ProjectConfig struct {
	Scan   ScanSettings   `mapstructure:"scan"`
	Output OutputSettings `mapstructure:"output"`
	// LLM holds the raw llm section. Its keys are resolved by the
	// enrichment configuration resolver, which owns their meaning.
	LLM map[string]any `mapstructure:"llm"`

	// Path is the file the settings were read from, empty when none existed.
	Path string `mapstructure:"-"`
}

// ScanSettings controls which files are scanned and which warnings are kept.
type ScanSettings struct {
	SkipFiles     []string `mapstructure:"skip_files"`
	SkipChecks    []string `mapstructure:"skip_checks"`
	RulesDir      string   `mapstructure:"rules_dir"`
	MinConfidence string   `mapstructure:"min_confidence"`
	Baseline      string   `mapstructure:"baseline"`
}

// OutputSettings controls report formats and destinations.
type OutputSettings struct {
	Formats    []string `mapstructure:"format"`
	Files      []string `mapstructure:"files"`
	TextFields []string `mapstructure:"text_fields"`
}

// LoadProjectConfig reads the application's configuration. When explicit is
// empty, appPath/config/vigil.yml is used and a missing file yields an empty
// config. An explicit path must exist.
func LoadProjectConfig(appPath, explicit string) (*ProjectConfig, error) {
	path := filepath.Join(appPath, DefaultConfigPath)
	if explicit != "" {
		expanded, err := homedir.Expand(explicit)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", explicit, err)
		}
		path = expanded
	}

	if _, err := os.Stat(path); err != nil {
		if explicit == "" && errors.Is(err, os.ErrNotExist) {
			return &ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	cfg.Path = path
	return &cfg, nil
}

// ApplyTo fills options that the caller left unset from the file settings.
func (c *ProjectConfig) ApplyTo(opts *Options) {
	if opts.RulesDir == "" && c.Scan.RulesDir != "" {
		opts.RulesDir = c.Scan.RulesDir
	}
	if opts.MinConfidence == "" {
		opts.MinConfidence = c.Scan.MinConfidence
	}
	if opts.BaselinePath == "" {
		opts.BaselinePath = c.Scan.Baseline
	}
	opts.SkipFiles = append(opts.SkipFiles, c.Scan.SkipFiles...)
	opts.SkipChecks = append(opts.SkipChecks, c.Scan.SkipChecks...)
	if len(opts.OutputFiles) == 0 && len(opts.OutputFormats) == 0 {
		opts.OutputFiles = c.Output.Files
		opts.OutputFormats = c.Output.Formats
	}
	if len(opts.TextFields) == 0 {
		opts.TextFields = c.Output.TextFields
	}
}
