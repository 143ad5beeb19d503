package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vigil-sec/vigil/core/findings"
	"github.com/vigil-sec/vigil/core/logging"
)

// DefaultInstructions is the system message sent with every request.
const DefaultInstructions = "You are a world-class application security expert with deep expertise in Ruby and Ruby on Rails security."

// DefaultPrompt introduces each warning.
const DefaultPrompt = `Analyze the following security warning resulting from analyzing a Ruby on Rails application with the static analysis security tool vigil.
Explain the security vulnerability and potential fixes. Jump straight into the explanation, do not have a casual introduction.
Do not ask follow-up questions, as this is not an interactive prompt.
Keep the explanation to less than 400 words.
Ignore 'fingerprint' and 'warning_code' fields and do not explain them.`

const warningPreamble = "The following is a vigil security warning in JSON format that describes a potential security vulnerability:"

// Analyst asks a model to explain one finding at a time. It is safe for
// concurrent use.
type Analyst struct {
	cfg     Config
	docs    *DocResolver
	logger  *zap.Logger
	limiter *requestLimiter

	once     sync.Once
	provider Provider
	initErr  error
}

// AnalystOption configures an Analyst.
type AnalystOption func(*Analyst)

// WithProvider supplies a ready transport instead of building one from the
// configured provider identifier.
func WithProvider(p Provider) AnalystOption {
	return func(a *Analyst) { a.provider = p }
}

// WithDocResolver sets where background documents come from.
func WithDocResolver(r *DocResolver) AnalystOption {
	return func(a *Analyst) { a.docs = r }
}

// WithLogger sets the logger. Its threshold is raised to the configured
// log level.
func WithLogger(l *zap.Logger) AnalystOption {
	return func(a *Analyst) { a.logger = l }
}

// NewAnalyst validates cfg and returns an Analyst. The backend client is
// created on the first Explain, so an unknown or credential-less provider
// fails per call rather than here.
func NewAnalyst(cfg Config, opts ...AnalystOption) (*Analyst, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	a := &Analyst{cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}

	level, err := logging.ParseLevel(cfg.LogLevel, zapcore.ErrorLevel)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if a.docs == nil {
		a.docs = NewDocResolver(nil, a.logger)
	}
	a.logger = logging.AtLeast(a.logger.Named("llm"), level)
	a.limiter = newRequestLimiter(cfg.RequestsPerMinute)
	return a, nil
}

// Model returns the configured model name.
func (a *Analyst) Model() string { return a.cfg.Model }

// Provider returns the configured provider identifier.
func (a *Analyst) Provider() string { return a.cfg.Provider }

// Instructions returns the system message in effect.
func (a *Analyst) Instructions() string { return a.cfg.Instructions }

// Prompt returns the prompt template in effect.
func (a *Analyst) Prompt() string { return a.cfg.Prompt }

// Explain issues exactly one model request for f and returns the reply. The
// finding is not modified and failed requests are not retried.
func (a *Analyst) Explain(ctx context.Context, f findings.Finding) (string, error) {
	p, err := a.backend(ctx)
	if err != nil {
		return "", err
	}

	prompt, err := a.BuildPrompt(f)
	if err != nil {
		return "", err
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}

	start := time.Now()
	resp, err := p.Complete(ctx, []Message{
		{Role: RoleSystem, Content: a.cfg.Instructions},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("explaining %s warning: %w", f.WarningType, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("model returned an empty explanation")
	}

	a.logger.Debug("warning explained",
		zap.String("fingerprint", f.Fingerprint),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
	)
	return resp.Content, nil
}

// BuildPrompt returns the user message for f: the prompt template, any
// background document, and the warning as JSON.
func (a *Analyst) BuildPrompt(f findings.Finding) (string, error) {
	data, err := f.JSON()
	if err != nil {
		return "", fmt.Errorf("encoding warning: %w", err)
	}

	var b strings.Builder
	b.WriteString(a.cfg.Prompt)
	b.WriteString("\n")
	b.WriteString(a.docs.Background(f.Link))
	b.WriteString("\n\n")
	b.WriteString(warningPreamble)
	b.WriteString("\n")
	b.Write(data)
	return b.String(), nil
}

func (a *Analyst) backend(ctx context.Context) (Provider, error) {
	a.once.Do(func() {
		if a.provider != nil {
			return
		}
		a.provider, a.initErr = NewProvider(ctx, a.cfg)
		if a.initErr == nil {
			a.logger.Debug("model client ready",
				zap.String("provider", a.cfg.Provider),
				zap.String("model", a.cfg.Model),
			)
		}
	})
	if a.initErr != nil {
		return nil, fmt.Errorf("%s client: %w", a.cfg.Provider, a.initErr)
	}
	return a.provider, nil
}
