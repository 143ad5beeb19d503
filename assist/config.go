package assist

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultDisclaimer is appended to every explanation unless suppressed.
const DefaultDisclaimer = "(The above message is auto-generated and may contain errors.)"

// DisclaimerNone suppresses the disclaimer.
const DisclaimerNone = "none"

// DefaultLogLevel is the model client's log threshold when none is set.
const DefaultLogLevel = "error"

var (
	// ErrMissingLLMConfig reports that model or provider was not configured.
	ErrMissingLLMConfig = errors.New("missing LLM configuration")
	// ErrInvalidLLMConfig reports an unknown option or a badly typed value.
	ErrInvalidLLMConfig = errors.New("invalid LLM configuration")
)

// Config holds the model client settings.
type Config struct {
	Model    string `mapstructure:"model" validate:"required"`
	Provider string `mapstructure:"provider" validate:"required"`

	// Instructions is the system message; Prompt is the template placed
	// before each warning. Empty values use the built-in text.
	Instructions string `mapstructure:"instructions"`
	Prompt       string `mapstructure:"prompt"`

	// Disclaimer is nil for the default text, DisclaimerNone to suppress,
	// and any other value is used literally.
	Disclaimer *string `mapstructure:"disclaimer"`

	APIKey   string `mapstructure:"api_key"`
	APIBase  string `mapstructure:"api_base" validate:"omitempty,url"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=0"`
}

// Settings is one layer of raw option values keyed by option name, as read
// from a config file, flags or code.
type Settings map[string]any

// ConfigError describes why a model configuration was rejected.
type ConfigError struct {
	// Missing names required options that were not set.
	Missing []string
	// Err carries any other problem.
	Err error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required LLM option(s): " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("invalid LLM configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches ErrMissingLLMConfig when options are missing and
// ErrInvalidLLMConfig otherwise.
func (e *ConfigError) Is(target error) bool {
	if len(e.Missing) > 0 {
		return target == ErrMissingLLMConfig
	}
	return target == ErrInvalidLLMConfig
}

func missingConfig() *ConfigError {
	return &ConfigError{Missing: []string{"model", "provider"}}
}

type setter func(*Config, any) error

var setters = map[string]setter{
	"model":               stringSetter(func(c *Config, s string) { c.Model = s }),
	"provider":            stringSetter(func(c *Config, s string) { c.Provider = s }),
	"api_key":             stringSetter(func(c *Config, s string) { c.APIKey = s }),
	"api_base":            stringSetter(func(c *Config, s string) { c.APIBase = s }),
	"instructions":        stringSetter(func(c *Config, s string) { c.Instructions = s }),
	"prompt":              stringSetter(func(c *Config, s string) { c.Prompt = s }),
	"log_level":           stringSetter(func(c *Config, s string) { c.LogLevel = strings.ToLower(s) }),
	"disclaimer":          setDisclaimer,
	"timeout":             setTimeout,
	"requests_per_minute": intSetter(func(c *Config, n int) { c.RequestsPerMinute = n }),
	"concurrency":         intSetter(func(c *Config, n int) { c.Concurrency = n }),
}

// ResolveConfig merges the layers in increasing precedence (typically
// config file, then flags and environment, then direct construction) and
// validates the result. Keys are case-insensitive and may use dashes.
func ResolveConfig(layers ...Settings) (*Config, error) {
	cfg := &Config{}
	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			name := normalizeKey(k)
			set, ok := setters[name]
			if !ok {
				return nil, &ConfigError{Err: fmt.Errorf("unknown option %q", k)}
			}
			if err := set(cfg, layer[k]); err != nil {
				return nil, &ConfigError{Err: fmt.Errorf("option %s: %w", name, err)}
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks required options and value ranges.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Err: err}
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return &ConfigError{Err: errors.New(strings.Join(invalid, "; "))}
}

// ResolveDisclaimer returns the text to append after each explanation, or
// "" when the disclaimer is suppressed.
func ResolveDisclaimer(d *string) string {
	switch {
	case d == nil:
		return DefaultDisclaimer
	case strings.EqualFold(strings.TrimSpace(*d), DisclaimerNone), *d == "":
		return ""
	default:
		return *d
	}
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "-", "_")
}

func stringSetter(fn func(*Config, string)) setter {
	return func(c *Config, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		fn(c, s)
		return nil
	}
}

func intSetter(fn func(*Config, int)) setter {
	return func(c *Config, v any) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		fn(c, n)
		return nil
	}
}

// setDisclaimer accepts text, or a boolean where false suppresses the
// disclaimer and true restores the default.
func setDisclaimer(c *Config, v any) error {
	switch d := v.(type) {
	case nil:
		c.Disclaimer = nil
	case bool:
		if d {
			c.Disclaimer = nil
		} else {
			none := DisclaimerNone
			c.Disclaimer = &none
		}
	case string:
		c.Disclaimer = &d
	default:
		return fmt.Errorf("expected a string or boolean, got %T", v)
	}
	return nil
}

// setTimeout accepts a duration, a duration string ("90s") or a number of
// seconds.
func setTimeout(c *Config, v any) error {
	switch d := v.(type) {
	case time.Duration:
		c.Timeout = d
	case string:
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			c.Timeout = time.Duration(secs * float64(time.Second))
			return nil
		}
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return err
		}
		c.Timeout = parsed
	default:
		secs, err := toFloat(v)
		if err != nil {
			return err
		}
		c.Timeout = time.Duration(secs * float64(time.Second))
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("expected a whole number, got %v", f)
		}
		return int(f), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
