// Package batch packs several strings into one numbered prompt and splits
// the numbered reply back into per-string translations.
package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/minios-linux/jsonloc/langmeta"
)

// SystemPrompt is the system prompt for numbered batch requests.
const SystemPrompt = `You are a professional translator specializing in software and product localization. You are translating UI strings from a JSON localization file from {{sourceLang}} to {{targetLang}}.

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in {{targetLang}}, not word-for-word
- Strings that are numbered close together usually belong to the same screen; keep terminology consistent
- Maintain the original tone and intent

TECHNICAL REQUIREMENTS:
- Reply with exactly one line per input string, using the same number: N. "translation"
- Keep the escape sequences \n, \t and \\ exactly as they appear.
- Preserve all interpolation variables exactly as-is (e.g. {{count}}, {name}, %s, %d).
- Preserve HTML tags and punctuation patterns.
- Keep brand names and proper nouns unchanged.
- Return ONLY the numbered lines, no explanations or markdown code blocks.`

// Entry is one string inside a batch.
type Entry struct {
	ID   string
	Path string
	Text string
}

// SectionKey returns the first path segment: the text before the first
// unescaped '.' or '['.
func SectionKey(path string) string {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '\\':
			i++
		case '.', '[':
			return path[:i]
		}
	}
	return path
}

// Group orders entries by section so related keys share a batch, then cuts
// them into chunks of at most maxBatchSize. A non-positive size yields one
// batch. The input slice is not modified.
func Group(entries []Entry, maxBatchSize int) [][]Entry {
	if len(entries) == 0 {
		return nil
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return SectionKey(sorted[i].Path) < SectionKey(sorted[j].Path)
	})

	if maxBatchSize <= 0 {
		maxBatchSize = len(sorted)
	}
	var batches [][]Entry
	for start := 0; start < len(sorted); start += maxBatchSize {
		end := min(start+maxBatchSize, len(sorted))
		batches = append(batches, sorted[start:end:end])
	}
	return batches
}

// BuildPrompt renders entries as a 1-based numbered list.
func BuildPrompt(entries []Entry, targetLang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following %d strings to %s.\n", len(entries), langmeta.Name(targetLang))
	fmt.Fprintf(&b, "Return exactly %d numbered lines.\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, escapeForPrompt(e.Text))
	}
	return b.String()
}

// ParseResponse extracts n translations from a numbered reply. For each
// position i it takes the first line starting with "i.", strips the prefix
// and the surrounding quotes. Positions with no usable line are "".
func ParseResponse(response string, n int) []string {
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	out := make([]string, n)
	for i := 1; i <= n; i++ {
		prefix := fmt.Sprintf("%d.", i)
		for _, line := range lines {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			out[i-1] = unescapeFromPrompt(stripQuotes(strings.TrimSpace(line[len(prefix):])))
			break
		}
	}
	return out
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if strings.HasPrefix(s, "“") && strings.HasSuffix(s, "”") && len(s) >= len("“”") {
		return strings.TrimSuffix(strings.TrimPrefix(s, "“"), "”")
	}
	return s
}

// escapeForPrompt keeps a string on one line and wraps it in quotes.
func escapeForPrompt(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

func unescapeFromPrompt(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
