// Package langmeta provides a shared language registry (English display
// names) used in prompts, CLI output and language detection.
package langmeta

import "strings"

// Meta describes a language.
type Meta struct {
	Code string
	Name string
}

// Registry maps canonical codes to English names.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]string{
	"af":    "Afrikaans",
	"am":    "Amharic",
	"ar":    "Arabic",
	"ar-EG": "Arabic (Egypt)",
	"az":    "Azerbaijani",
	"be":    "Belarusian",
	"bg":    "Bulgarian",
	"bn":    "Bengali",
	"bs":    "Bosnian",
	"ca":    "Catalan",
	"cs":    "Czech",
	"cy":    "Welsh",
	"da":    "Danish",
	"de":    "German",
	"de-AT": "German (Austria)",
	"de-CH": "German (Switzerland)",
	"el":    "Greek",
	"en":    "English",
	"en-AU": "English (Australia)",
	"en-CA": "English (Canada)",
	"en-GB": "English (UK)",
	"en-US": "English (US)",
	"eo":    "Esperanto",
	"es":    "Spanish",
	"es-AR": "Spanish (Argentina)",
	"es-MX": "Spanish (Mexico)",
	"et":    "Estonian",
	"eu":    "Basque",
	"fa":    "Persian",
	"fi":    "Finnish",
	"fil":   "Filipino",
	"fr":    "French",
	"fr-CA": "French (Canada)",
	"ga":    "Irish",
	"gl":    "Galician",
	"gu":    "Gujarati",
	"he":    "Hebrew",
	"hi":    "Hindi",
	"hr":    "Croatian",
	"hu":    "Hungarian",
	"hy":    "Armenian",
	"id":    "Indonesian",
	"is":    "Icelandic",
	"it":    "Italian",
	"ja":    "Japanese",
	"ka":    "Georgian",
	"kk":    "Kazakh",
	"km":    "Khmer",
	"kn":    "Kannada",
	"ko":    "Korean",
	"lt":    "Lithuanian",
	"lv":    "Latvian",
	"mk":    "Macedonian",
	"ml":    "Malayalam",
	"mn":    "Mongolian",
	"mr":    "Marathi",
	"ms":    "Malay",
	"nb":    "Norwegian Bokmål",
	"ne":    "Nepali",
	"nl":    "Dutch",
	"nn":    "Norwegian Nynorsk",
	"pa":    "Punjabi",
	"pl":    "Polish",
	"pt":    "Portuguese",
	"pt-BR": "Portuguese (Brazil)",
	"pt-PT": "Portuguese (Portugal)",
	"ro":    "Romanian",
	"ru":    "Russian",
	"sk":    "Slovak",
	"sl":    "Slovenian",
	"sq":    "Albanian",
	"sr":    "Serbian",
	"sv":    "Swedish",
	"sw":    "Swahili",
	"ta":    "Tamil",
	"te":    "Telugu",
	"th":    "Thai",
	"tr":    "Turkish",
	"uk":    "Ukrainian",
	"ur":    "Urdu",
	"uz":    "Uzbek",
	"vi":    "Vietnamese",
	"xh":    "Xhosa",
	"yo":    "Yoruba",
	"zh":    "Chinese",
	"zh-CN": "Chinese (Simplified)",
	"zh-TW": "Chinese (Traditional)",
	"zu":    "Zulu",
}

// byName indexes Registry by lower-cased English name.
var byName = func() map[string]string {
	out := make(map[string]string, len(Registry))
	for code, name := range Registry {
		out[strings.ToLower(name)] = code
	}
	return out
}()

// Canonical normalizes a language code: "pt_br" becomes "pt-BR".
func Canonical(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort metadata for a language code or English name,
// supporting variants like pt_BR, pt-BR, and locale fallbacks. Unknown input
// is passed through as both code and name.
func Resolve(lang string) Meta {
	if name, ok := Registry[lang]; ok {
		return Meta{Code: lang, Name: name}
	}
	normalized := Canonical(lang)
	if name, ok := Registry[normalized]; ok {
		return Meta{Code: normalized, Name: name}
	}
	if code, ok := byName[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return Meta{Code: code, Name: Registry[code]}
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if name, ok := Registry[parts[0]]; ok {
			return Meta{Code: normalized, Name: name}
		}
	}
	return Meta{Code: lang, Name: lang}
}

// Name returns the English name for lang, or lang itself when unknown.
func Name(lang string) string {
	return Resolve(lang).Name
}

// Known reports whether lang resolves to a registered language.
func Known(lang string) bool {
	code := Resolve(lang).Code
	if _, ok := Registry[code]; ok {
		return true
	}
	_, ok := Registry[strings.SplitN(code, "-", 2)[0]]
	return ok
}
