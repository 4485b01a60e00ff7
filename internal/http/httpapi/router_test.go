package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shotlate/internal/batch"
	"shotlate/internal/http/handlers"
	"shotlate/internal/infra"
	"shotlate/internal/metrics"
	"shotlate/internal/providers/factory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	metrics.Register()
	cfg := &infra.Config{RateLimitPerMin: 100}
	registry := factory.NewRegistry(cfg, nil)
	app := handlers.NewApp(cfg, registry, batch.New(batch.Options{Registry: registry}), nil, nil)
	srv := httptest.NewServer(NewRouter(app))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestProvidersListing(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/providers")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Providers []struct {
			ID                         string `json:"id"`
			DefaultModel               string `json:"default_model"`
			SupportsModerationOverride bool   `json:"supports_moderation_override"`
		} `json:"providers"`
		MaxBatchSize int `json:"max_batch_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 4 || body.MaxBatchSize != 10 {
		t.Fatalf("body = %+v", body)
	}
	for _, p := range body.Providers {
		if p.ID == "gemini" && (!p.SupportsModerationOverride || p.DefaultModel == "") {
			t.Fatalf("gemini = %+v", p)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "shotlate_batch_jobs_in_flight") {
		t.Fatalf("metrics output missing shotlate collectors")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
