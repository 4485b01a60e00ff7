package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"shotlate/internal/classify"
	"shotlate/internal/domain"
	"shotlate/internal/imagecodec"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var testImage = imagecodec.TransportImage{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

func newTestClient(fn roundTripFunc) *Client {
	return New(Options{BaseURL: "https://gemini.test/v1beta/", HTTPClient: &http.Client{Transport: fn}})
}

func TestTranslateSendsOverrideAndHeaderCredential(t *testing.T) {
	var captured generateContentRequest
	var calls int
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		if req.URL.String() != "https://gemini.test/v1beta/models/gemini-x:generateContent" {
			t.Fatalf("url = %s", req.URL)
		}
		if strings.Contains(req.URL.RawQuery, "secret-key") {
			t.Fatalf("credential leaked into query string: %s", req.URL)
		}
		if got := req.Header.Get("x-goog-api-key"); got != "secret-key" {
			t.Fatalf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"你好"},{"text":"世界"}]},"finishReason":"STOP"}]}`), nil
	})

	raw, err := client.Translate(context.Background(), testImage, "translate", domain.ProviderConfig{
		Provider: Name, Model: "gemini-x", Credential: "secret-key", ModerationOverride: true,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if raw.StopCode != "STOP" || raw.Text != "你好世界" {
		t.Fatalf("raw = %+v", raw)
	}
	if len(captured.SafetySettings) != len(overrideCategories) {
		t.Fatalf("safety settings = %+v", captured.SafetySettings)
	}
	for _, s := range captured.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Fatalf("threshold = %q, want BLOCK_NONE", s.Threshold)
		}
	}
	parts := captured.Contents[0].Parts
	if parts[0].Text != "translate" || parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[1].InlineData.Data != testImage.Base64() {
		t.Fatalf("inline data = %q", parts[1].InlineData.Data)
	}
}

func TestTranslateOmitsSafetySettingsWithoutOverride(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(string(body), "safetySettings") {
			t.Fatalf("unexpected safetySettings in %s", body)
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`), nil
	})
	if _, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "k"}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
}

func TestTranslatePromptBlock(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`), nil
	})
	raw, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "k"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	out := classify.Classify(raw, client.StopCodes())
	if out.Status != domain.StatusSafetyBlocked {
		t.Fatalf("Status = %q, want %q (stop %q)", out.Status, domain.StatusSafetyBlocked, raw.StopCode)
	}
}

func TestTranslateSafetyFinishReason(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[{"finishReason":"SAFETY"}]}`), nil
	})
	raw, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "k"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out := classify.Classify(raw, StopCodes); out.Status != domain.StatusSafetyBlocked {
		t.Fatalf("Status = %q", out.Status)
	}
}

func TestTranslateMissingCandidates(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	raw, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "k"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(raw.Missing) != 1 || raw.Missing[0] != "candidates" {
		t.Fatalf("Missing = %v", raw.Missing)
	}
}

func TestTranslateErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"API key secret-key not valid"}}`, domain.ErrAuth},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"denied"}}`, domain.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, domain.ErrTransport},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrTransport},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, domain.ErrProtocol},
		{"malformed body", http.StatusOK, `{not json`, domain.ErrProtocol},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "secret-key"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if strings.Contains(err.Error(), "secret-key") {
				t.Fatalf("credential leaked: %v", err)
			}
		})
	}
}

func TestTranslateNetworkFailure(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "k"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestTranslateMissingCredentialMakesNoRequest(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request")
		return nil, nil
	})
	_, err := client.Translate(context.Background(), testImage, "x", domain.ProviderConfig{Credential: "   "})
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}
