package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobPreset is a reusable set of job options for the command line tool.
// Credentials are referenced by environment variable name, never stored.
type JobPreset struct {
	Provider           string `yaml:"provider"`
	Model              string `yaml:"model"`
	SourceLanguage     string `yaml:"source_language"`
	Context            string `yaml:"context"`
	ModerationOverride *bool  `yaml:"moderation_override"`
	APIKeyEnv          string `yaml:"api_key_env"`
	TruncationPolicy   string `yaml:"truncation_policy"`
	Concurrency        int    `yaml:"concurrency"`
}

// LoadPreset reads a YAML preset. Unknown keys are rejected so typos surface.
func LoadPreset(path string) (*JobPreset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var preset JobPreset
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&preset); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}

	preset.TruncationPolicy = strings.ToLower(strings.TrimSpace(preset.TruncationPolicy))
	switch preset.TruncationPolicy {
	case "", TruncateSilent, TruncateWarn:
	default:
		return nil, fmt.Errorf("preset %s: unsupported truncation_policy %q", path, preset.TruncationPolicy)
	}
	if preset.Concurrency < 0 {
		return nil, fmt.Errorf("preset %s: concurrency must not be negative", path)
	}
	return &preset, nil
}

// APIKeyEnvFor names the environment variable holding the key for provider.
func APIKeyEnvFor(provider string) string {
	return strings.ToUpper(strings.TrimSpace(provider)) + "_API_KEY"
}
