package backend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/minios-linux/jsonloc/langmeta"
)

// DefaultSystemPrompt is used for single-string requests.
const DefaultSystemPrompt = `You are a professional translator specializing in software and product localization. You are translating UI strings from a JSON localization file from {{sourceLang}} to {{targetLang}}.

CONTEXT AWARENESS:
- The key path of each string is given as a hint about where it appears in the UI
- The audience is software users
- Tone: professional yet approachable, clear and concise
- Use IT/software terminology that is standard in the {{targetLang}} tech community

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in {{targetLang}}, not word-for-word
- Adapt sentence structure to match {{targetLang}} conventions
- Maintain the original tone and intent

TECHNICAL REQUIREMENTS:
- Preserve all interpolation variables exactly as-is (e.g. {{count}}, {name}, %s, %d).
- Preserve HTML tags, leading/trailing whitespace and punctuation patterns.
- Keep brand names and proper nouns unchanged.
- Return ONLY the translated string, with no quotes, explanations or markdown.`

// ResolvePrompt replaces {{sourceLang}} and {{targetLang}} with English
// language names. An empty source language reads as "the source language".
func ResolvePrompt(template, sourceLang, targetLang string) string {
	src := "the source language"
	if sourceLang != "" && sourceLang != "auto" {
		src = langmeta.Name(sourceLang)
	}
	r := strings.NewReplacer(
		"{{sourceLang}}", src,
		"{{targetLang}}", langmeta.Name(targetLang),
	)
	return r.Replace(template)
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	if req.ContextKey != "" {
		fmt.Fprintf(&b, "Key: %s\n", req.ContextKey)
	}
	fmt.Fprintf(&b, "Translate to %s:\n%s", langmeta.Name(req.TargetLang), req.Text)
	return b.String()
}

var markdownCodeBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// cleanReply strips markdown fences and wrapping quotes the model added
// around a single-string answer. Quotes are kept if the source had them.
func cleanReply(reply, source string) string {
	s := strings.TrimSpace(reply)
	if m := markdownCodeBlock.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	if quoted(s) && !quoted(strings.TrimSpace(source)) {
		s = s[1 : len(s)-1]
	}
	// Models tend to drop edge whitespace; restore it from the source.
	lead := source[:len(source)-len(strings.TrimLeft(source, " \t\n"))]
	trail := source[len(strings.TrimRight(source, " \t\n")):]
	if s == "" {
		return ""
	}
	return lead + strings.TrimSpace(s) + trail
}

func quoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
