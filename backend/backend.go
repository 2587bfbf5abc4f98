// Package backend defines the translation capability consumed by the
// orchestrator and its LLM-backed implementations: OpenAI-compatible chat
// endpoints (OpenAI, Groq, Ollama, custom servers), Google Gemini and
// Anthropic, plus a no-op backend for dry runs.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownProvider is returned by New for unsupported provider names.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingAPIKey is returned by ValidateConfig when a provider needs a key.
	ErrMissingAPIKey = errors.New("API key is required")
	// ErrMissingModel is returned by ValidateConfig when no model is set.
	ErrMissingModel = errors.New("model is required")
	// ErrMissingBaseURL is returned by ValidateConfig when no endpoint is set.
	ErrMissingBaseURL = errors.New("base URL is required")
	// ErrEmptyResponse marks a reply that contained no usable text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Request is a single string to translate.
type Request struct {
	// ContextKey is the leaf path, given to the model as a hint.
	ContextKey string
	Text       string
	// SourceLang may be empty, meaning auto-detect.
	SourceLang string
	TargetLang string
}

// Result is the outcome of one Translate call. Backends report failures
// here rather than through a Go error.
type Result struct {
	Success bool
	Text    string
	Error   string
}

// Ok returns a successful Result.
func Ok(text string) Result { return Result{Success: true, Text: text} }

// Fail returns a failed Result carrying err's message.
func Fail(err error) Result { return Result{Error: err.Error()} }

// ProviderInfo describes a configured backend.
type ProviderInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
	Format  string `json:"format"`
}

// Backend translates one string at a time. Implementations must be safe for
// concurrent use.
type Backend interface {
	Translate(ctx context.Context, req Request) Result
	ValidateConfig() error
	Info() ProviderInfo
}

// Completer is implemented by backends that accept free-form prompts. The
// batched strategy requires it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Pauser receives provider-wide backoff requests, e.g. after HTTP 429.
type Pauser interface {
	Pause(d time.Duration)
}
