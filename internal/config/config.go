// Package config provides the configuration schema, loader, and provider
// registry for the devdraft server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its slog equivalent. Unset or unknown levels map to
// info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure, typically loaded from a YAML
// file via [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Capture    CaptureConfig    `yaml:"capture"`
	Cache      CacheConfig      `yaml:"cache"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists WebSocket origin patterns. Empty allows any
	// origin, matching the original single-page-app deployment.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the backend for each external dependency. Each
// entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// Extraction is the requirement-extraction backend chain.
	Extraction ExtractionProviders `yaml:"extraction"`

	// Generation is the code-generation backend.
	Generation ProviderEntry `yaml:"generation"`

	// STT is the streaming speech-to-text backend.
	STT ProviderEntry `yaml:"stt"`
}

// ExtractionProviders is a primary backend plus an optional fallback tried
// when the primary fails or returns malformed output.
type ExtractionProviders struct {
	Primary  ProviderEntry `yaml:"primary"`
	Fallback ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "cerebras",
	// "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "llama-3.3-70b").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields.
	Options map[string]any `yaml:"options"`
}

// CaptureConfig tunes the capture session.
type CaptureConfig struct {
	// WordTarget is the pending-buffer word count that triggers an
	// extraction cycle. Default 30.
	WordTarget int `yaml:"word_target"`

	// RecentWindowWords is how many trailing transcript words are flagged as
	// recent context in the extraction prompt. Default 200.
	RecentWindowWords int `yaml:"recent_window_words"`

	// SampleRate is the inbound audio sample rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the inbound audio channel count. Default 1.
	Channels int `yaml:"channels"`

	// Language is the BCP-47 recognition language tag.
	Language string `yaml:"language"`
}

// CacheConfig tunes the extraction result cache.
type CacheConfig struct {
	// TTL is how long a cached extraction stays valid. Default 5m.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the cache size. Default 100.
	MaxEntries int `yaml:"max_entries"`
}

// ResilienceConfig tunes the per-backend circuit breakers.
type ResilienceConfig struct {
	// FailureThreshold is the consecutive-failure count that trips a
	// breaker. Default 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// CoolDown is how long a tripped breaker rejects calls. Default 30s.
	CoolDown time.Duration `yaml:"cool_down"`
}

// ArchiveConfig configures the optional spec/project archive.
type ArchiveConfig struct {
	// PostgresDSN is the connection string. Empty disables the Postgres
	// archive; outcomes are kept in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}
