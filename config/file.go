// Package config loads the .jsonloc.yaml project file and resolves it
// together with the environment and command-line flags.
//
// A .jsonloc.yaml file in the working directory supplies defaults for the
// translate command. Flags override the environment, which overrides the
// file, which overrides the provider defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/jsonloc/translate"
)

// FileName is the default project file name.
const FileName = ".jsonloc.yaml"

// LangPlaceholder is replaced by the target language in output patterns.
const LangPlaceholder = "{lang}"

// ErrInvalidFile is returned for a project file that parses but does not
// validate.
var ErrInvalidFile = errors.New("invalid project file")

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .jsonloc.yaml structure.
type File struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	// SourceLang may be "auto" or empty to detect it from the document.
	SourceLang  string   `yaml:"source_lang,omitempty"`
	TargetLangs []string `yaml:"target_langs,omitempty"`
	// Strategy: "parallel" or "batched".
	Strategy string `yaml:"strategy,omitempty"`

	RequestsPerMinute int           `yaml:"requests_per_minute,omitempty"`
	MaxConcurrent     int           `yaml:"max_concurrent,omitempty"`
	BatchSize         int           `yaml:"batch_size,omitempty"`
	RequestDelay      time.Duration `yaml:"request_delay,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	// MaxRetries is a pointer so that an explicit 0 disables retries.
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// Prompt overrides the system prompt ({{targetLang}}, {{sourceLang}}).
	Prompt string `yaml:"prompt,omitempty"`

	Files []Target `yaml:"files,omitempty"`

	// path is where the file was loaded from; relative targets resolve
	// against its directory.
	path string
}

// Target is one document to translate.
type Target struct {
	Input string `yaml:"input"`
	// Output is a path or a pattern containing {lang}. Empty means
	// <input dir>/<lang>.json.
	Output string `yaml:"output,omitempty"`
	// Languages overrides the global target_langs for this file.
	Languages []string `yaml:"languages,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadFile loads and validates .jsonloc.yaml from dir. It returns nil if the
// file does not exist.
func LoadFile(dir string) (*File, error) {
	f, err := LoadFilePath(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return f, err
}

// LoadFilePath loads and validates the project file at path. A missing file
// is an error wrapping os.ErrNotExist.
func LoadFilePath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.path = path

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if _, err := translate.ParseStrategy(f.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if f.RequestsPerMinute < 0 || f.MaxConcurrent < 0 || f.BatchSize < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidFile)
	}
	if f.MaxRetries != nil && *f.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidFile)
	}

	for i := range f.Files {
		t := &f.Files[i]
		if strings.TrimSpace(t.Input) == "" {
			return fmt.Errorf("%w: file #%d has no input", ErrInvalidFile, i+1)
		}
		if len(t.Languages) == 0 {
			t.Languages = f.TargetLangs
		}
		if len(t.Languages) > 1 && t.Output != "" && !strings.Contains(t.Output, LangPlaceholder) {
			return fmt.Errorf("%w: file %q translates to %d languages but output %q has no %s",
				ErrInvalidFile, t.Input, len(t.Languages), t.Output, LangPlaceholder)
		}
	}
	return nil
}

// Path returns where the file was loaded from.
func (f *File) Path() string { return f.path }

// Dir returns the directory relative targets resolve against.
func (f *File) Dir() string {
	if f.path == "" {
		return "."
	}
	return filepath.Dir(f.path)
}

// ResolvedTarget is a Target with absolute paths.
type ResolvedTarget struct {
	Input     string
	Output    string
	Languages []string
}

// Resolve returns the file's targets with paths made relative to the
// project file's directory.
func (f *File) Resolve() []ResolvedTarget {
	out := make([]ResolvedTarget, 0, len(f.Files))
	for _, t := range f.Files {
		rt := ResolvedTarget{
			Input:     joinIfRelative(f.Dir(), t.Input),
			Languages: t.Languages,
		}
		if t.Output != "" {
			rt.Output = joinIfRelative(f.Dir(), t.Output)
		}
		out = append(out, rt)
	}
	return out
}

// OutputPath returns the output file for lang.
func (rt ResolvedTarget) OutputPath(lang string) string {
	return OutputPath(rt.Input, rt.Output, lang)
}

// OutputPath expands an output pattern for lang. An empty pattern places
// <lang>.json next to input; a pattern without {lang} is used as is.
func OutputPath(input, pattern, lang string) string {
	if pattern == "" {
		return filepath.Join(filepath.Dir(input), lang+".json")
	}
	return strings.ReplaceAll(pattern, LangPlaceholder, lang)
}

func joinIfRelative(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
