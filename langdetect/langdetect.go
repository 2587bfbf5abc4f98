// Package langdetect guesses the source language of a document's strings.
package langdetect

import (
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the least number of letters worth running detection on.
const minLetters = 6

// maxSample bounds the number of bytes fed to the detector.
const maxSample = 4096

// Detector wraps a lingua detector. Build one per process; model loading is
// lazy and the detector is safe for concurrent use.
type Detector struct {
	detector lingua.LanguageDetector
}

// New returns a detector restricted to languages, or over all languages
// when fewer than two are given.
func New(languages ...lingua.Language) *Detector {
	var b lingua.LanguageDetectorBuilder
	if len(languages) >= 2 {
		b = lingua.NewLanguageDetectorBuilder().FromLanguages(languages...)
	} else {
		b = lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	}
	return &Detector{detector: b.Build()}
}

// Detect returns the ISO 639-1 code of the language the texts are written
// in. It reports false when the texts hold too few letters to tell.
func (d *Detector) Detect(texts []string) (string, bool) {
	sample := buildSample(texts)
	if countLetters(sample) < minLetters {
		return "", false
	}

	language, exists := d.detector.DetectLanguageOf(sample)
	if !exists {
		return "", false
	}
	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return "", false
	}
	return code, true
}

func buildSample(texts []string) string {
	var sb strings.Builder
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if sb.Len()+len(t) > maxSample {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(". ")
		}
		sb.WriteString(t)
	}
	return sb.String()
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
