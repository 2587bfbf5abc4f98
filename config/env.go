package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "JSONLOC"

// Env holds the settings read from JSONLOC_* variables.
type Env struct {
	Provider   string `envconfig:"PROVIDER"`
	APIKey     string `envconfig:"API_KEY"`
	Model      string `envconfig:"MODEL"`
	BaseURL    string `envconfig:"BASE_URL"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
}

// LoadEnv reads the JSONLOC_* environment variables.
func LoadEnv() (*Env, error) {
	var e Env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	e.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))
	return &e, nil
}

// LoadDotEnv loads variables from a .env file without overriding variables
// that are already set. A missing file at the default path is not an error;
// a missing explicitly requested file is. It returns the file that was
// loaded, or "" if none.
func LoadDotEnv(path string) (string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("loading %s: %w", path, err)
	}
	return path, nil
}
