package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shotlate/internal/classify"
	"shotlate/internal/domain"
	"shotlate/internal/imagecodec"
	"shotlate/internal/infra"
	"shotlate/internal/providers"
	"shotlate/internal/providers/httpx"
)

const (
	Name           = "gemini"
	DefaultModel   = "gemini-3-flash-preview"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	promptBlockPrefix = "PROMPT_"
)

// StopCodes is the finishReason table. Prompt-level blocks surface as
// PROMPT_<blockReason>.
var StopCodes = classify.Table{
	Success: []string{"STOP"},
	Blocked: []string{
		"SAFETY",
		"PROHIBITED_CONTENT",
		"BLOCKLIST",
		"SPII",
		"IMAGE_SAFETY",
		"RECITATION",
		promptBlockPrefix + "SAFETY",
		promptBlockPrefix + "OTHER",
		promptBlockPrefix + "BLOCKLIST",
		promptBlockPrefix + "PROHIBITED_CONTENT",
		promptBlockPrefix + "IMAGE_SAFETY",
	},
}

// overrideCategories are relaxed to BLOCK_NONE when the moderation override
// is requested.
var overrideCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Options controls how the Gemini adapter is configured.
type Options struct {
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client translates screenshots through the generateContent endpoint.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	logger       *infra.Logger
}

var _ providers.Adapter = (*Client)(nil)

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	CandidateCount int `json:"candidateCount,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	SafetySettings   []safetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

// New constructs a Gemini adapter with sane defaults.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.DefaultModel)
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:      baseURL,
		defaultModel: model,
		httpClient:   client,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string                     { return Name }
func (c *Client) DefaultModel() string             { return c.defaultModel }
func (c *Client) SupportsModerationOverride() bool { return true }
func (c *Client) StopCodes() classify.Table        { return StopCodes }

// Translate sends the instruction and image as one user turn.
func (c *Client) Translate(ctx context.Context, img imagecodec.TransportImage, instruction string, cfg domain.ProviderConfig) (classify.Raw, error) {
	raw := classify.Raw{Provider: Name}
	if !cfg.HasCredential() {
		return raw, domain.ErrMissingCredential
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = c.defaultModel
	}

	payload := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: instruction},
				{InlineData: &inlineData{MimeType: img.MIMEType, Data: img.Base64()}},
			},
		}},
		GenerationConfig: &generationConfig{CandidateCount: 1},
	}
	if cfg.ModerationOverride {
		payload.SafetySettings = make([]safetySetting, 0, len(overrideCategories))
		for _, category := range overrideCategories {
			payload.SafetySettings = append(payload.SafetySettings, safetySetting{Category: category, Threshold: "BLOCK_NONE"})
		}
	}

	var resp generateContentResponse
	err := httpx.PostJSON(ctx, c.httpClient, httpx.Request{
		Provider:   Name,
		Endpoint:   fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model)),
		Headers:    map[string]string{"x-goog-api-key": strings.TrimSpace(cfg.Credential)},
		Body:       payload,
		Credential: cfg.Credential,
	}, &resp)
	if err != nil {
		return raw, err
	}

	raw = extract(resp)
	c.logger.Debug().
		Str("model", model).
		Str("stop_code", raw.StopCode).
		Bool("moderation_override", cfg.ModerationOverride).
		Msg("gemini: translate response")
	return raw, nil
}

func extract(resp generateContentResponse) classify.Raw {
	raw := classify.Raw{Provider: Name}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			raw.StopCode = promptBlockPrefix + resp.PromptFeedback.BlockReason
			return raw
		}
		raw.Missing = []string{"candidates"}
		return raw
	}

	first := resp.Candidates[0]
	var text strings.Builder
	for _, p := range first.Content.Parts {
		text.WriteString(p.Text)
	}
	raw.Text = text.String()
	raw.StopCode = first.FinishReason
	if raw.StopCode == "" {
		raw.Missing = []string{"finishReason"}
	}
	return raw
}
