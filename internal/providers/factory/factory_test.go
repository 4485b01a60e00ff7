package factory

import (
	"errors"
	"reflect"
	"testing"

	"shotlate/internal/domain"
	"shotlate/internal/infra"
)

func TestNewRegistryRegistersAllBackends(t *testing.T) {
	reg := NewRegistry(&infra.Config{}, nil)
	want := []string{"anthropic", "gemini", "openai", "xai"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestResolveAppliesConfiguredDefaultModel(t *testing.T) {
	reg := NewRegistry(&infra.Config{OpenAI: infra.ProviderSettings{Model: "gpt-custom"}}, nil)
	_, cfg, err := reg.Resolve(domain.ProviderConfig{Provider: "OpenAI", Credential: "k"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-custom" {
		t.Fatalf("cfg = %s, want openai/gpt-custom", cfg)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	reg := NewRegistry(nil, nil)
	if _, _, err := reg.Resolve(domain.ProviderConfig{Provider: "mistral"}); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestOnlyGeminiSupportsModerationOverride(t *testing.T) {
	reg := NewRegistry(nil, nil)
	for _, info := range reg.Infos() {
		if info.SupportsModerationOverride != (info.ID == "gemini") {
			t.Fatalf("%s: SupportsModerationOverride = %t", info.ID, info.SupportsModerationOverride)
		}
	}
}
