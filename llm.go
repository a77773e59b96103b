package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Request is one completion call
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// LLM completes prompts
type LLM interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider names used as model identifier prefixes
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// splitModel resolves a model identifier to a provider and the provider's
// model name. Identifiers without a known prefix go to OpenRouter.
func splitModel(model string) (provider, name string) {
	switch {
	case strings.HasPrefix(model, "models/"):
		return ProviderGemini, model
	case strings.HasPrefix(model, "gemini/"):
		return ProviderGemini, strings.TrimPrefix(model, "gemini/")
	case strings.HasPrefix(model, "anthropic/"):
		return ProviderAnthropic, strings.TrimPrefix(model, "anthropic/")
	case strings.HasPrefix(model, "openai/"):
		return ProviderOpenAI, strings.TrimPrefix(model, "openai/")
	case strings.HasPrefix(model, "openrouter/"):
		return ProviderOpenRouter, strings.TrimPrefix(model, "openrouter/")
	}
	return ProviderOpenRouter, model
}

var apiKeyEnv = map[string][]string{
	ProviderAnthropic:  {"ANTHROPIC_API_KEY"},
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderOpenRouter: {"OPENROUTER_API_KEY"},
	ProviderGemini:     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func apiKeyFor(provider string) (string, error) {
	for _, env := range apiKeyEnv[provider] {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}
	return "", fatalError("llm", fmt.Errorf("API key required: set %s", strings.Join(apiKeyEnv[provider], " or ")))
}

// Router dispatches requests to a provider client by model prefix, creating
// clients on first use. All calls share one pacing limiter.
type Router struct {
	settings LLMSettings
	logger   *slog.Logger
	limiter  *rate.Limiter
	clients  map[string]LLM
	factory  func(provider string) (LLM, error)
}

// NewRouter creates a router using the real provider clients
func NewRouter(settings LLMSettings, logger *slog.Logger) *Router {
	r := &Router{
		settings: settings,
		logger:   logger,
		limiter:  newPacer(settings.MinInterval),
		clients:  make(map[string]LLM),
	}
	r.factory = r.newProvider
	return r
}

func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (r *Router) newProvider(provider string) (LLM, error) {
	key, err := apiKeyFor(provider)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderAnthropic:
		return newAnthropicLLM(key), nil
	case ProviderOpenAI:
		return newOpenAILLM(key), nil
	case ProviderOpenRouter:
		return newOpenRouterLLM(key, r.settings.OpenRouterBaseURL), nil
	case ProviderGemini:
		return newGeminiLLM(key), nil
	}
	return nil, fatalError("llm", fmt.Errorf("unknown provider %q", provider))
}

// Complete paces the call and forwards it to the provider for req.Model
func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	provider, name := splitModel(req.Model)
	client, ok := r.clients[provider]
	if !ok {
		var err error
		client, err = r.factory(provider)
		if err != nil {
			return "", err
		}
		r.clients[provider] = client
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fatalError("llm", err)
	}

	req.Model = name
	start := time.Now()
	r.logger.Debug("llm request", "provider", provider, "model", name, "prompt_chars", len(req.Prompt))
	text, err := client.Complete(ctx, req)
	if err != nil {
		return "", classifyError(provider, err)
	}
	r.logger.Debug("llm response", "provider", provider, "model", name, "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

var (
	statusCodePattern = regexp.MustCompile(`\b(408|429|5\d\d)\b`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]after[:=\s]+(\d+)`)
)

// classifyError maps provider errors to pipeline kinds. Errors already
// classified pass through unchanged.
func classifyError(provider string, err error) error {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fatalError(provider, err)
	}

	status, retryAfter := providerStatus(err)
	msg := err.Error()
	if status == 0 {
		if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
			status, _ = strconv.Atoi(m[1])
		}
	}
	if retryAfter == 0 {
		if m := retryAfterPattern.FindStringSubmatch(msg); m != nil {
			secs, _ := strconv.Atoi(m[1])
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case status == 429,
		strings.Contains(lower, "rate limit"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return rateLimited(provider, err, retryAfter)
	case status == 401 || status == 403:
		return fatalError(provider, err)
	}
	return transportError(provider, err)
}

// providerStatus extracts an HTTP status and Retry-After from typed SDK errors
func providerStatus(err error) (int, time.Duration) {
	if status, retryAfter, ok := openAIStatus(err); ok {
		return status, retryAfter
	}
	if status, ok := openRouterStatus(err); ok {
		return status, 0
	}
	return 0, 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
