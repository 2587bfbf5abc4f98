package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/minios-linux/jsonloc/langmeta"
	"github.com/minios-linux/jsonloc/translate"
)

// progressBar renders percent as a colored bar of width cells followed by
// the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorYellow
	switch {
	case percent >= 100:
		color = colorGreen
	case percent < 25:
		color = colorRed
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s%s%s %3d%%", color, bar, colorReset, percent)
}

// progressLine renders one run's progress for a language.
func progressLine(lang string, p translate.Progress) string {
	line := fmt.Sprintf("  %s %s %d/%d", lang, progressBar(int(p.Percentage), 30), p.Completed, p.Total)
	if p.Failed > 0 {
		line += fmt.Sprintf(" %s(%d failed)%s", colorRed, p.Failed, colorReset)
	}
	if p.ItemsPerSecond > 0 && p.Completed < p.Total {
		line += fmt.Sprintf("  %.1f/s, ~%.0fs left", p.ItemsPerSecond, p.EstimatedSecondsRemaining)
	}
	return line
}

// flagFromRegion returns the flag emoji for a two-letter region code.
func flagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	var sb strings.Builder
	for _, r := range strings.ToUpper(region) {
		if r < 'A' || r > 'Z' {
			return ""
		}
		sb.WriteRune(0x1F1E6 + r - 'A')
	}
	return sb.String()
}

// langFlag returns the flag for a language code with a region part.
func langFlag(lang string) string {
	_, region, ok := strings.Cut(strings.ReplaceAll(lang, "_", "-"), "-")
	if !ok {
		return ""
	}
	return flagFromRegion(region)
}

func langColumnWidth(langs []string) int {
	w := 0
	for _, l := range langs {
		w = max(w, utf8.RuneCountInString(l))
	}
	return w
}

// langCell renders a language code padded to width, with its flag and name.
func langCell(lang string, width int) string {
	cell := fmt.Sprintf("%-*s", width, lang)
	if f := langFlag(lang); f != "" {
		cell = f + " " + cell
	}
	if name := langmeta.Name(lang); name != "" && name != lang {
		cell += " (" + name + ")"
	}
	return cell
}

// filterOutLang removes every occurrence of lang.
func filterOutLang(langs []string, lang string) []string {
	var out []string
	for _, l := range langs {
		if !strings.EqualFold(l, lang) {
			out = append(out, l)
		}
	}
	return out
}
