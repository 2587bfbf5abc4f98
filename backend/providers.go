package backend

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider IDs.
const (
	ProviderOpenAI       = "openai"
	ProviderAnthropic    = "anthropic"
	ProviderGemini       = "gemini"
	ProviderGroq         = "groq"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
	ProviderNoop         = "noop"
)

// Wire formats.
const (
	FormatOpenAIChat = "openai-chat"
	FormatGemini     = "gemini"
	FormatAnthropic  = "anthropic"
	FormatNone       = "none"
)

// Provider is a row of the built-in provider table.
type Provider struct {
	ID           string
	Name         string
	BaseURL      string
	DefaultModel string
	Format       string
	RequiresKey  bool
	Timeout      time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderOpenAI: {
			ID:           ProviderOpenAI,
			Name:         "OpenAI",
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4o-mini",
			Format:       FormatOpenAIChat,
			RequiresKey:  true,
			Timeout:      60 * time.Second,
		},
		ProviderAnthropic: {
			ID:           ProviderAnthropic,
			Name:         "Anthropic",
			BaseURL:      "https://api.anthropic.com/v1",
			DefaultModel: "claude-3-5-haiku-latest",
			Format:       FormatAnthropic,
			RequiresKey:  true,
			Timeout:      120 * time.Second,
		},
		ProviderGemini: {
			ID:           ProviderGemini,
			Name:         "Google AI (Gemini)",
			BaseURL:      "https://generativelanguage.googleapis.com",
			DefaultModel: "gemini-2.0-flash",
			Format:       FormatGemini,
			RequiresKey:  true,
			Timeout:      120 * time.Second,
		},
		ProviderGroq: {
			ID:           ProviderGroq,
			Name:         "Groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			DefaultModel: "llama-3.3-70b-versatile",
			Format:       FormatOpenAIChat,
			RequiresKey:  true,
			Timeout:      60 * time.Second,
		},
		ProviderOllama: {
			ID:           ProviderOllama,
			Name:         "Ollama",
			BaseURL:      "http://localhost:11434/v1",
			DefaultModel: "llama3.1",
			Format:       FormatOpenAIChat,
			Timeout:      120 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI-compatible",
			Format:  FormatOpenAIChat,
			Timeout: 60 * time.Second,
		},
		ProviderNoop: {
			ID:     ProviderNoop,
			Name:   "Dry run (no API calls)",
			Format: FormatNone,
		},
	}
}

var aliases = map[string]string{
	"google":            ProviderGemini,
	"claude":            ProviderAnthropic,
	"openai-compatible": ProviderCustomOpenAI,
	"custom":            ProviderCustomOpenAI,
	"dry-run":           ProviderNoop,
}

// NormalizeProviderName lower-cases name and resolves aliases.
func NormalizeProviderName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// Lookup returns the table entry for name.
func Lookup(name string) (Provider, error) {
	id := NormalizeProviderName(name)
	p, ok := DefaultProviders()[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownProvider, name, strings.Join(ProviderIDs(), ", "))
	}
	return p, nil
}

// ProviderIDs returns all provider IDs, sorted.
func ProviderIDs() []string {
	provs := DefaultProviders()
	ids := make([]string, 0, len(provs))
	for id := range provs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
