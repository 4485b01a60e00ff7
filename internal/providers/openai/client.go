package openai

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
	Name           = "openai"
	DefaultModel   = "gpt-5-mini"
	DefaultBaseURL = "https://api.openai.com/v1"

	XAIName           = "xai"
	XAIDefaultModel   = "grok-3-mini"
	XAIDefaultBaseURL = "https://api.x.ai/v1"
)

// StopCodes is the chat completions finish_reason table. xAI shares it.
var StopCodes = classify.Table{
	Success: []string{"stop"},
	Blocked: []string{"content_filter"},
}

// Options controls how the chat completions adapter is configured. Name and
// BaseURL let the same client serve OpenAI-compatible backends.
type Options struct {
	Name         string
	BaseURL      string
	DefaultModel string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client translates screenshots through /chat/completions.
type Client struct {
	name         string
	baseURL      string
	defaultModel string
	organization string
	httpClient   *http.Client
	logger       *infra.Logger
}

var _ providers.Adapter = (*Client)(nil)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// New constructs an OpenAI adapter.
func New(opts Options) *Client {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = Name
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = DefaultModel
	}
	return newClient(opts)
}

// NewXAI constructs the adapter for xAI's OpenAI-compatible endpoint.
func NewXAI(opts Options) *Client {
	opts.Name = XAIName
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = XAIDefaultBaseURL
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = XAIDefaultModel
	}
	return newClient(opts)
}

func newClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		name:         strings.ToLower(strings.TrimSpace(opts.Name)),
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		defaultModel: strings.TrimSpace(opts.DefaultModel),
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   client,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string                     { return c.name }
func (c *Client) DefaultModel() string             { return c.defaultModel }
func (c *Client) SupportsModerationOverride() bool { return false }
func (c *Client) StopCodes() classify.Table        { return StopCodes }

// Translate sends the instruction and a data URL image in one user message.
// cfg.ModerationOverride is ignored; the backend has no such parameter.
func (c *Client) Translate(ctx context.Context, img imagecodec.TransportImage, instruction string, cfg domain.ProviderConfig) (classify.Raw, error) {
	raw := classify.Raw{Provider: c.name}
	if !cfg.HasCredential() {
		return raw, domain.ErrMissingCredential
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = c.defaultModel
	}

	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &imageURL{URL: img.DataURL()}},
			},
		}},
	}

	headers := map[string]string{"Authorization": "Bearer " + strings.TrimSpace(cfg.Credential)}
	if c.organization != "" {
		headers["OpenAI-Organization"] = c.organization
	}

	var resp chatResponse
	err := httpx.PostJSON(ctx, c.httpClient, httpx.Request{
		Provider:   c.name,
		Endpoint:   c.baseURL + "/chat/completions",
		Headers:    headers,
		Body:       payload,
		Credential: cfg.Credential,
	}, &resp)
	if err != nil {
		return raw, err
	}

	raw = c.extract(resp)
	c.logger.Debug().
		Str("provider", c.name).
		Str("model", model).
		Str("stop_code", raw.StopCode).
		Msg("openai: translate response")
	return raw, nil
}

func (c *Client) extract(resp chatResponse) classify.Raw {
	raw := classify.Raw{Provider: c.name}
	if len(resp.Choices) == 0 {
		raw.Missing = []string{"choices"}
		return raw
	}
	first := resp.Choices[0]
	if first.Message.Content != nil {
		raw.Text = *first.Message.Content
	}
	raw.StopCode = first.FinishReason
	if raw.StopCode == "" {
		raw.Missing = []string{"finish_reason"}
	}
	return raw
}
