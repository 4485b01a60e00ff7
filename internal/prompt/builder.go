// Package prompt composes the instruction sent alongside every screenshot.
package prompt

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"shotlate/internal/domain"
)

// TargetLanguage is fixed for the whole service.
const TargetLanguage = "Traditional Chinese (Taiwan)"

const baseInstruction = "You are a professional translator. Recognize all text in the image and translate it into " + TargetLanguage + ".\n" +
	"Output format: output only the translated text. Never add a preamble, notes, or any explanation."

var contextClauses = map[domain.ContextStyle]string{
	domain.ContextGeneral:   "Context: general content. Translate accurately and keep the wording natural.",
	domain.ContextFiction:   "Context: fiction or web novel. Keep each character's voice in dialogue and make the prose read fluently for Taiwanese readers.",
	domain.ContextGame:      "Context: game screenshot. Keep terminology consistent and the phrasing short and punchy.",
	domain.ContextTechnical: "Context: technical document. Keep code, identifiers, numbers, and units unchanged and use the technical terms customary in Taiwan.",
}

// Template is a base instruction plus one clause per context style.
type Template struct {
	Base    string
	Clauses map[domain.ContextStyle]string
}

// Default is the template used by Compose.
var Default = Template{Base: baseInstruction, Clauses: contextClauses}

// Compose builds the instruction text for a job. It is pure: identical
// arguments always produce identical text.
func Compose(source domain.SourceLanguage, style domain.ContextStyle) string {
	return Default.Compose(source, style)
}

// Compose builds the instruction text from t.
func (t Template) Compose(source domain.SourceLanguage, style domain.ContextStyle) string {
	lines := []string{t.Base, t.Clause(style), SourceHint(source)}
	return strings.Join(lines, "\n")
}

// Clause returns the clause for style. UI labels such as "Fiction/WebNovel"
// are accepted; unknown or empty styles fall back to the general clause.
func (t Template) Clause(style domain.ContextStyle) string {
	if clause, ok := t.Clauses[domain.ParseContextStyle(string(style))]; ok {
		return clause
	}
	return t.Clauses[domain.ContextGeneral]
}

// SourceHint renders the source-language hint line. Language tags are shown
// by their English name; free text is passed through unchanged.
func SourceHint(source domain.SourceLanguage) string {
	raw := strings.TrimSpace(string(source))
	if raw == "" || source == domain.SourceAuto {
		return "Source language: detect it automatically."
	}
	return "Source language: " + languageName(raw) + "."
}

func languageName(raw string) string {
	tag, err := language.Parse(raw)
	if err != nil {
		return raw
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return raw
}
