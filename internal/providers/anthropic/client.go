package anthropic

import (
	"context"
	"net/http"
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
	Name           = "anthropic"
	DefaultModel   = "claude-haiku-4-5"
	DefaultBaseURL = "https://api.anthropic.com/v1"
	APIVersion     = "2023-06-01"

	defaultMaxTokens = 4096
)

// StopCodes is the messages API stop_reason table.
var StopCodes = classify.Table{
	Success: []string{"end_turn", "stop_sequence"},
	Blocked: []string{"refusal"},
}

// Options controls how the Anthropic adapter is configured.
type Options struct {
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client translates screenshots through the messages API.
type Client struct {
	baseURL      string
	defaultModel string
	maxTokens    int
	httpClient   *http.Client
	logger       *infra.Logger
}

var _ providers.Adapter = (*Client)(nil)

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content    []block `json:"content"`
	StopReason *string `json:"stop_reason"`
}

// New constructs an Anthropic adapter.
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
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		baseURL:      baseURL,
		defaultModel: model,
		maxTokens:    maxTokens,
		httpClient:   client,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string                     { return Name }
func (c *Client) DefaultModel() string             { return c.defaultModel }
func (c *Client) SupportsModerationOverride() bool { return false }
func (c *Client) StopCodes() classify.Table        { return StopCodes }

// Translate sends the image block followed by the instruction.
func (c *Client) Translate(ctx context.Context, img imagecodec.TransportImage, instruction string, cfg domain.ProviderConfig) (classify.Raw, error) {
	raw := classify.Raw{Provider: Name}
	if !cfg.HasCredential() {
		return raw, domain.ErrMissingCredential
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = c.defaultModel
	}

	payload := messagesRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []block{
				{Type: "image", Source: &imageSource{Type: "base64", MediaType: img.MIMEType, Data: img.Base64()}},
				{Type: "text", Text: instruction},
			},
		}},
	}

	var resp messagesResponse
	err := httpx.PostJSON(ctx, c.httpClient, httpx.Request{
		Provider: Name,
		Endpoint: c.baseURL + "/messages",
		Headers: map[string]string{
			"x-api-key":         strings.TrimSpace(cfg.Credential),
			"anthropic-version": APIVersion,
		},
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
		Msg("anthropic: translate response")
	return raw, nil
}

func extract(resp messagesResponse) classify.Raw {
	raw := classify.Raw{Provider: Name}
	if resp.StopReason == nil {
		raw.Missing = []string{"stop_reason"}
		return raw
	}
	var text strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	raw.Text = text.String()
	raw.StopCode = *resp.StopReason
	return raw
}
