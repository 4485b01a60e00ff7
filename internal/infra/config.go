package infra

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Truncation policies for batches above the size cap.
const (
	TruncateSilent = "silent"
	TruncateWarn   = "warn"
)

// ProviderSettings holds the server-side defaults for one backend.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	CORSAllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For; empty means the header is ignored.
	TrustedProxies []netip.Prefix
	GeoIPDatabasePath  string

	Gemini    ProviderSettings
	OpenAI    ProviderSettings
	Anthropic ProviderSettings
	XAI       ProviderSettings

	ProviderTimeout   time.Duration
	ItemTimeout       time.Duration
	ProviderRPS       float64
	BatchConcurrency  int
	TruncationPolicy  string
	ImageMaxDimension int
	MaxUploadBytes    int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		GeoIPDatabasePath:  os.Getenv("GEOIP_DB_PATH"),
		Gemini: ProviderSettings{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:   os.Getenv("GEMINI_MODEL"),
		},
		OpenAI: ProviderSettings{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Anthropic: ProviderSettings{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			Model:   os.Getenv("ANTHROPIC_MODEL"),
		},
		XAI: ProviderSettings{
			APIKey:  os.Getenv("XAI_API_KEY"),
			BaseURL: getEnv("XAI_BASE_URL", "https://api.x.ai/v1"),
			Model:   os.Getenv("XAI_MODEL"),
		},
		ProviderTimeout:   time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)),
		ItemTimeout:       time.Second * time.Duration(getEnvInt("ITEM_TIMEOUT_SECONDS", 120)),
		ProviderRPS:       getEnvFloat("PROVIDER_RPS", 0),
		BatchConcurrency:  getEnvInt("BATCH_CONCURRENCY", 1),
		TruncationPolicy:  strings.ToLower(getEnv("TRUNCATION_POLICY", TruncateSilent)),
		ImageMaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 2048),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_MB", 64)) << 20,
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.TruncationPolicy {
	case TruncateSilent, TruncateWarn:
	default:
		return nil, fmt.Errorf("TRUNCATION_POLICY must be %q or %q, got %q", TruncateSilent, TruncateWarn, cfg.TruncationPolicy)
	}

	proxies, err := parsePrefixes(getEnvList("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}

	if cfg.ProviderRPS < 0 {
		return nil, fmt.Errorf("PROVIDER_RPS must not be negative")
	}

	return cfg, nil
}

// Provider returns the settings for a provider id, or false when unknown.
func (c *Config) Provider(id string) (ProviderSettings, bool) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "gemini":
		return c.Gemini, true
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	case "xai":
		return c.XAI, true
	default:
		return ProviderSettings{}, false
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// parsePrefixes accepts CIDRs and bare addresses.
func parsePrefixes(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
