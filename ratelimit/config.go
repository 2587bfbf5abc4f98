package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned for non-positive limits.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// DefaultBatchSize is used by the batched strategy when MaxBatchSize is unset.
const DefaultBatchSize = 20

// Config bounds how fast and how wide backend calls are dispatched.
type Config struct {
	RequestsPerMinute     int `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxConcurrentRequests int `yaml:"max_concurrent" json:"max_concurrent"`
	// MaxBatchSize is only consulted by the batched strategy. Zero means
	// DefaultBatchSize.
	MaxBatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

// Validate checks that every limit is positive.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: requests per minute must be > 0, got %d", ErrInvalidConfig, c.RequestsPerMinute)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("%w: max concurrent requests must be > 0, got %d", ErrInvalidConfig, c.MaxConcurrentRequests)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("%w: max batch size must be > 0, got %d", ErrInvalidConfig, c.MaxBatchSize)
	}
	return nil
}

// Interval is the minimum gap between two dispatches.
func (c Config) Interval() time.Duration {
	if c.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.RequestsPerMinute)
}

// BatchSize returns MaxBatchSize, or DefaultBatchSize when unset.
func (c Config) BatchSize() int {
	if c.MaxBatchSize > 0 {
		return c.MaxBatchSize
	}
	return DefaultBatchSize
}

// Merge returns c with every zero field taken from def.
func (c Config) Merge(def Config) Config {
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = def.RequestsPerMinute
	}
	if c.MaxConcurrentRequests == 0 {
		c.MaxConcurrentRequests = def.MaxConcurrentRequests
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	return c
}

// fallback applies to providers missing from the defaults table.
var fallback = Config{RequestsPerMinute: 60, MaxConcurrentRequests: 3, MaxBatchSize: DefaultBatchSize}

var defaults = map[string]Config{
	"openai":        {RequestsPerMinute: 500, MaxConcurrentRequests: 5, MaxBatchSize: 25},
	"anthropic":     {RequestsPerMinute: 50, MaxConcurrentRequests: 5, MaxBatchSize: 25},
	"gemini":        {RequestsPerMinute: 15, MaxConcurrentRequests: 3, MaxBatchSize: 30},
	"groq":          {RequestsPerMinute: 30, MaxConcurrentRequests: 3, MaxBatchSize: 20},
	"ollama":        {RequestsPerMinute: 600, MaxConcurrentRequests: 2, MaxBatchSize: 10},
	"custom-openai": {RequestsPerMinute: 60, MaxConcurrentRequests: 3, MaxBatchSize: 20},
	"noop":          {RequestsPerMinute: 6000, MaxConcurrentRequests: 10, MaxBatchSize: 50},
}

// DefaultsFor returns the default limits for a provider name.
func DefaultsFor(provider string) Config {
	if c, ok := defaults[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return c
	}
	return fallback
}
