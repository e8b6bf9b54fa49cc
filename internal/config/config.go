package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	LogLevel    string

	HTTPListenAddr    string
	MetricsListenAddr string
	// ChatOriginPatterns are extra Origin host patterns allowed to open
	// /v1/chat. Same-origin is always allowed.
	ChatOriginPatterns []string

	// ProviderToken is the LKE API personal access token.
	ProviderToken string
	ProviderURL   string

	// Optional mTLS / private CA settings for the provider API, used when
	// ProviderURL points at an internal proxy.
	ProviderTLSCert       string
	ProviderTLSKey        string
	ProviderTLSCACert     string
	ProviderTLSServerName string

	MaxClusters int
	MaxNodes    int
	// OffLimits lists cluster names the bot must never touch.
	OffLimits []string

	SweepInterval     time.Duration
	ReconcileInterval time.Duration

	DefaultRegion   string
	DefaultInstance string
	DefaultSize     string
	DefaultVersion  string
	DefaultLifetime string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:           getEnv("SERVICE_NAME", "kubelease"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:        getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsListenAddr:     getEnv("METRICS_LISTEN_ADDR", ":9100"),
		ProviderToken:         getEnv("LINODE_TOKEN", ""),
		ProviderURL:           getEnv("LINODE_API_URL", "https://api.linode.com/v4"),
		ProviderTLSCert:       getEnv("PROVIDER_TLS_CERT", ""),
		ProviderTLSKey:        getEnv("PROVIDER_TLS_KEY", ""),
		ProviderTLSCACert:     getEnv("PROVIDER_TLS_CA_CERT", ""),
		ProviderTLSServerName: getEnv("PROVIDER_TLS_SERVER_NAME", ""),
		ChatOriginPatterns:    splitList(getEnv("CHAT_ORIGIN_PATTERNS", "")),
		OffLimits:             splitList(getEnv("LKEBOT_OFF_LIMITS", "")),
		DefaultRegion:         getEnv("LKE_DEFAULT_REGION", "us-east"),
		DefaultInstance:       getEnv("LKE_DEFAULT_INSTANCE", "g6-standard-2"),
		DefaultSize:           getEnv("LKE_DEFAULT_SIZE", "1"),
		DefaultVersion:        getEnv("LKE_DEFAULT_VERSION", "1.22"),
		DefaultLifetime:       getEnv("LKE_DEFAULT_LIFETIME", "8"),
	}

	var err error
	if cfg.MaxClusters, err = getEnvInt("LKE_MAX_CLUSTERS", 5, 1); err != nil {
		return nil, err
	}
	if cfg.MaxNodes, err = getEnvInt("LKE_MAX_NODES", 3, 1); err != nil {
		return nil, err
	}

	sweep, err := getEnvInt("LKEBOT_SWEEP_INTERVAL", 0, 0)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval = time.Duration(sweep) * time.Minute

	reconcile, err := getEnvInt("LKEBOT_RECONCILE_INTERVAL", 5, 0)
	if err != nil {
		return nil, err
	}
	cfg.ReconcileInterval = time.Duration(reconcile) * time.Minute

	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.ProviderToken == "" {
		return fmt.Errorf("LINODE_TOKEN is required")
	}
	if (c.ProviderTLSCert == "") != (c.ProviderTLSKey == "") {
		return fmt.Errorf("PROVIDER_TLS_CERT and PROVIDER_TLS_KEY must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer, raising values below min to min.
func getEnvInt(key string, fallback, min int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return max(n, min), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
