// Package httpx holds the request/response plumbing shared by all provider
// adapters: one JSON POST, status-code mapping onto the domain error
// taxonomy, and credential redaction.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"shotlate/internal/domain"
	"shotlate/internal/metrics"
)

const (
	maxResponseBytes = 8 << 20
	maxDetailLength  = 300
	redacted         = "[REDACTED]"
)

// Request is one JSON POST to a backend.
type Request struct {
	Provider   string
	Endpoint   string
	Headers    map[string]string
	Body       any
	Credential string
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

// PostJSON sends req and decodes a 2xx body into out. Exactly one request is
// made. Errors wrap domain.ErrTransport, domain.ErrAuth or domain.ErrProtocol
// and never contain the credential.
func PostJSON(ctx context.Context, client *http.Client, req Request, out any) error {
	start := time.Now()
	err := postJSON(ctx, client, req, out)
	result := "ok"
	if err != nil {
		result = domain.ErrorKind(err)
	}
	metrics.ProviderRequestDurationSeconds.WithLabelValues(req.Provider, result).Observe(time.Since(start).Seconds())
	return err
}

func postJSON(ctx context.Context, client *http.Client, req Request, out any) error {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", domain.ErrProtocol, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %s", domain.ErrTransport, Redact(err.Error(), req.Credential))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", domain.ErrTransport, ctxErr)
		}
		return fmt.Errorf("%w: %s", domain.ErrTransport, Redact(err.Error(), req.Credential))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %s", domain.ErrTransport, Redact(err.Error(), req.Credential))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail := Redact(errorDetail(raw), req.Credential)
		return fmt.Errorf("%w: %s status %d: %s", statusError(resp.StatusCode), req.Provider, resp.StatusCode, detail)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrProtocol, req.Provider, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrAuth
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return domain.ErrTransport
	default:
		return domain.ErrProtocol
	}
}

func errorDetail(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return truncate(env.Error.Message)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty body"
	}
	return truncate(text)
}

func truncate(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Redact replaces every occurrence of secret in s.
func Redact(s, secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, redacted)
}
