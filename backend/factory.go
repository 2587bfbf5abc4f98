package backend

import (
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries applies when Config.MaxRetries is zero.
const DefaultMaxRetries = 3

// DefaultTemperature applies when Config.Temperature is zero.
const DefaultTemperature = 0.3

// Config selects and configures a backend.
type Config struct {
	// Provider is a provider ID or alias (see DefaultProviders).
	Provider string
	APIKey   string
	// BaseURL and Model override the provider defaults.
	BaseURL string
	Model   string
	// Proxy is an optional HTTP/HTTPS proxy URL; HTTP(S)_PROXY is used otherwise.
	Proxy   string
	Timeout time.Duration
	// MaxRetries bounds retries per request. Negative disables retrying.
	MaxRetries  int
	Temperature float64
	// SystemPrompt overrides DefaultSystemPrompt for single-string requests.
	SystemPrompt string

	Pauser     Pauser
	Logger     logrus.FieldLogger
	HTTPClient *http.Client
}

// New builds the backend for cfg.Provider and validates its configuration.
func New(cfg Config) (Backend, error) {
	prov, err := Lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	cfg.Logger.WithFields(logrus.Fields{
		"provider": prov.ID,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Debug("creating backend")

	var b Backend
	switch prov.ID {
	case ProviderNoop:
		b = NewNoop()
	default:
		b = newClient(prov, cfg)
	}
	if err := b.ValidateConfig(); err != nil {
		return nil, err
	}
	return b, nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
