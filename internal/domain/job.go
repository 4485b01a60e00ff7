package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// MaxBatchSize caps how many images a single job processes.
const MaxBatchSize = 10

// SourceLanguage is the hint given to the model about the language printed in
// the screenshot. Values outside the enumerated set are passed through as-is.
type SourceLanguage string

const (
	SourceAuto              SourceLanguage = "auto"
	SourceKorean            SourceLanguage = "ko"
	SourceJapanese          SourceLanguage = "ja"
	SourceEnglish           SourceLanguage = "en"
	SourceSimplifiedChinese SourceLanguage = "zh-Hans"
)

// SourceLanguages lists the options offered to callers, in display order.
var SourceLanguages = []SourceLanguage{SourceAuto, SourceKorean, SourceJapanese, SourceEnglish, SourceSimplifiedChinese}

var sourceLanguageAliases = map[string]SourceLanguage{
	"":                   SourceAuto,
	"auto":               SourceAuto,
	"auto-detect":        SourceAuto,
	"自動偵測":               SourceAuto,
	"ko":                 SourceKorean,
	"korean":             SourceKorean,
	"韓文":                 SourceKorean,
	"ja":                 SourceJapanese,
	"japanese":           SourceJapanese,
	"日文":                 SourceJapanese,
	"en":                 SourceEnglish,
	"english":            SourceEnglish,
	"英文":                 SourceEnglish,
	"zh-hans":            SourceSimplifiedChinese,
	"zh-cn":              SourceSimplifiedChinese,
	"simplified chinese": SourceSimplifiedChinese,
	"簡體中文":               SourceSimplifiedChinese,
}

// ParseSourceLanguage maps ids and the legacy UI labels onto the enumerated
// languages. Unknown values are returned trimmed, never rejected.
func ParseSourceLanguage(raw string) SourceLanguage {
	trimmed := strings.TrimSpace(raw)
	if lang, ok := sourceLanguageAliases[strings.ToLower(trimmed)]; ok {
		return lang
	}
	return SourceLanguage(trimmed)
}

// ContextStyle selects the stylistic clause appended to the instruction.
type ContextStyle string

const (
	ContextGeneral   ContextStyle = "general"
	ContextFiction   ContextStyle = "fiction"
	ContextGame      ContextStyle = "game"
	ContextTechnical ContextStyle = "technical"
)

// ContextStyles lists the closed set of styles, in display order.
var ContextStyles = []ContextStyle{ContextGeneral, ContextFiction, ContextGame, ContextTechnical}

var contextStyleAliases = map[string]ContextStyle{
	"general":            ContextGeneral,
	"一般":                 ContextGeneral,
	"fiction":            ContextFiction,
	"fiction/webnovel":   ContextFiction,
	"webnovel":           ContextFiction,
	"小說/網文":              ContextFiction,
	"game":               ContextGame,
	"gamescreenshot":     ContextGame,
	"game screenshot":    ContextGame,
	"遊戲截圖":               ContextGame,
	"technical":          ContextTechnical,
	"technicaldocument":  ContextTechnical,
	"technical document": ContextTechnical,
	"技術文件":               ContextTechnical,
}

// ParseContextStyle maps ids and legacy labels onto the closed style set.
// Anything unrecognized, including the empty string, is ContextGeneral.
func ParseContextStyle(raw string) ContextStyle {
	if style, ok := contextStyleAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return style
	}
	return ContextGeneral
}

// ImageItem is one uploaded screenshot.
type ImageItem struct {
	Name string
	Data []byte
}

// ItemState tracks an item through a single job.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemEncoded   ItemState = "encoded"
	ItemSubmitted ItemState = "submitted"
	ItemCompleted ItemState = "completed"
	ItemFailed    ItemState = "failed"
	ItemFiltered  ItemState = "filtered"
)

// Terminal reports whether no further transition is allowed.
func (s ItemState) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemFiltered
}

// CanTransition reports whether s may move to next. Items advance
// pending → encoded → submitted → completed|failed|filtered and may fail from
// any non-terminal state.
func (s ItemState) CanTransition(next ItemState) bool {
	switch s {
	case ItemPending:
		return next == ItemEncoded || next == ItemFailed
	case ItemEncoded:
		return next == ItemSubmitted || next == ItemFailed
	case ItemSubmitted:
		return next.Terminal()
	default:
		return false
	}
}

// ProviderConfig selects and authenticates a model backend. The credential is
// write-only: it is never printed, marshalled or logged.
type ProviderConfig struct {
	Provider           string
	Model              string
	Credential         string
	ModerationOverride bool
}

// HasCredential reports whether a non-blank credential was supplied.
func (c ProviderConfig) HasCredential() bool {
	return strings.TrimSpace(c.Credential) != ""
}

func (c ProviderConfig) String() string {
	return fmt.Sprintf("%s/%s", c.Provider, c.Model)
}

// MarshalJSON omits the credential.
func (c ProviderConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Provider           string `json:"provider"`
		Model              string `json:"model"`
		ModerationOverride bool   `json:"moderation_override"`
	}{c.Provider, c.Model, c.ModerationOverride})
}

// MarshalZerologObject omits the credential.
func (c ProviderConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("provider", c.Provider).Str("model", c.Model).Bool("moderation_override", c.ModerationOverride)
}

// TranslationJob is the immutable input of one batch run.
type TranslationJob struct {
	Items          []ImageItem
	Provider       ProviderConfig
	SourceLanguage SourceLanguage
	Context        ContextStyle
}

// JobState is the orchestrator's state machine.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobAborted   JobState = "aborted"
)

// Progress is emitted after every processed item.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Fraction returns Completed/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}
