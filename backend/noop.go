package backend

import "context"

// Noop echoes the source text back. It backs --dry-run.
type Noop struct{}

// NewNoop returns a no-op backend.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Translate(_ context.Context, req Request) Result { return Ok(req.Text) }

// Complete returns the user prompt unchanged, so numbered batch prompts
// parse back to their source strings.
func (*Noop) Complete(_ context.Context, _, userPrompt string) (string, error) {
	return userPrompt, nil
}

func (*Noop) ValidateConfig() error { return nil }

func (*Noop) Info() ProviderInfo {
	return ProviderInfo{ID: ProviderNoop, Name: "Dry run (no API calls)", Format: FormatNone}
}
