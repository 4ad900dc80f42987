package avsr

import (
	"maps"
	"slices"
)

// AutoLanguage lets the model detect the spoken language.
const AutoLanguage = "auto"

// DefaultLanguages is the supported language set, keyed by code.
var DefaultLanguages = map[string]string{
	"en":   "English",
	"ar":   "Arabic",
	"de":   "German",
	"el":   "Greek",
	"es":   "Spanish",
	"it":   "Italian",
	"fr":   "French",
	"pt":   "Portuguese",
	"ru":   "Russian",
	"lrs2": "LRS2 (English)",
}

// Languages is an immutable supported language set.
type Languages struct {
	names map[string]string
}

// NewLanguages builds a language set. An empty map selects DefaultLanguages.
func NewLanguages(names map[string]string) Languages {
	if len(names) == 0 {
		names = DefaultLanguages
	}
	return Languages{names: maps.Clone(names)}
}

// Codes returns the supported codes in sorted order.
func (l Languages) Codes() []string {
	return slices.Sorted(maps.Keys(l.names))
}

// Names returns a copy of the code to name table.
func (l Languages) Names() map[string]string {
	return maps.Clone(l.names)
}

// Validate accepts supported codes and the auto sentinel.
func (l Languages) Validate(code string) error {
	if code == AutoLanguage {
		return nil
	}
	if _, ok := l.names[code]; ok {
		return nil
	}
	return &UnsupportedLanguageError{Language: code, Supported: l.Codes()}
}

// DecodeLanguage maps a request language to the code given to the decoder.
// lrs2 is English; auto leaves detection to the model.
func DecodeLanguage(code string) string {
	switch code {
	case AutoLanguage:
		return ""
	case "lrs2":
		return "en"
	default:
		return code
	}
}
