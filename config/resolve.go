package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/ratelimit"
	"github.com/minios-linux/jsonloc/translate"
)

// ErrNoProvider is returned when no flag, variable or project file names a
// provider.
var ErrNoProvider = errors.New("no provider specified")

// Overrides are command-line values. Zero values mean "not set".
type Overrides struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	SourceLang  string
	TargetLangs []string
	Strategy    string
	Prompt      string

	RequestsPerMinute int
	MaxConcurrent     int
	BatchSize         int
	RequestDelay      time.Duration
	Timeout           time.Duration
	MaxRetries        *int
}

// Credentials looks up a stored API key and base URL for a provider ID.
type Credentials func(provider string) (apiKey, baseURL string)

// Settings is the fully resolved configuration of a translate run.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	SourceLang  string
	TargetLangs []string
	Strategy    translate.Strategy
	Prompt      string

	Limits       ratelimit.Config
	RequestDelay time.Duration
	Timeout      time.Duration
	MaxRetries   int
}

// Resolve merges flags, environment, project file and provider defaults, in
// that order of precedence. env, file and creds may be nil.
func Resolve(o Overrides, env *Env, file *File, creds Credentials) (Settings, error) {
	if env == nil {
		env = &Env{}
	}
	if file == nil {
		file = &File{}
	}

	name := first(o.Provider, env.Provider, file.Provider)
	if name == "" {
		return Settings{}, ErrNoProvider
	}
	prov, err := backend.Lookup(name)
	if err != nil {
		return Settings{}, err
	}

	var storedKey, storedURL string
	if creds != nil {
		storedKey, storedURL = creds(prov.ID)
	}

	strategy, err := translate.ParseStrategy(first(o.Strategy, file.Strategy))
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Provider:    prov.ID,
		Model:       first(o.Model, env.Model, file.Model),
		APIKey:      first(o.APIKey, env.APIKey, storedKey),
		BaseURL:     first(o.BaseURL, env.BaseURL, file.BaseURL, storedURL),
		SourceLang:  first(o.SourceLang, file.SourceLang),
		TargetLangs: splitLangs(o.TargetLangs, file.TargetLangs),
		Strategy:    strategy,
		Prompt:      first(o.Prompt, file.Prompt),
		Limits: ratelimit.Config{
			RequestsPerMinute:     firstInt(o.RequestsPerMinute, file.RequestsPerMinute),
			MaxConcurrentRequests: firstInt(o.MaxConcurrent, file.MaxConcurrent),
			MaxBatchSize:          firstInt(o.BatchSize, file.BatchSize),
		}.Merge(ratelimit.DefaultsFor(prov.ID)),
		RequestDelay: firstDuration(o.RequestDelay, file.RequestDelay),
		Timeout:      firstDuration(o.Timeout, file.Timeout),
		MaxRetries:   backend.DefaultMaxRetries,
	}
	switch {
	case o.MaxRetries != nil:
		s.MaxRetries = *o.MaxRetries
	case file.MaxRetries != nil:
		s.MaxRetries = *file.MaxRetries
	}
	if strings.EqualFold(s.SourceLang, "auto") {
		s.SourceLang = ""
	}
	if err := s.Limits.Validate(); err != nil {
		return Settings{}, fmt.Errorf("provider %s: %w", prov.ID, err)
	}
	return s, nil
}

// BackendConfig returns the backend configuration for s.
func (s Settings) BackendConfig() backend.Config {
	retries := s.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return backend.Config{
		Provider:     s.Provider,
		APIKey:       s.APIKey,
		BaseURL:      s.BaseURL,
		Model:        s.Model,
		Timeout:      s.Timeout,
		MaxRetries:   retries,
		SystemPrompt: s.Prompt,
	}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstDuration(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// splitLangs returns the first non-empty list, accepting comma-separated
// entries.
func splitLangs(lists ...[]string) []string {
	for _, l := range lists {
		var out []string
		for _, item := range l {
			for _, lang := range strings.Split(item, ",") {
				if lang = strings.TrimSpace(lang); lang != "" {
					out = append(out, lang)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
