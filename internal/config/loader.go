package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. [Validate]
// warns about unrecognised names but does not fail, so custom registrations
// keep working.
var ValidProviderNames = map[string][]string{
	"llm": {"cerebras", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("llm", cfg.Providers.Extraction.Primary.Name)
	validateProviderName("llm", cfg.Providers.Extraction.Fallback.Name)
	validateProviderName("llm", cfg.Providers.Generation.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	// Missing backends degrade the matching feature at runtime rather than
	// failing startup, matching the original deployment behaviour.
	if cfg.Providers.Extraction.Primary.Name == "" && cfg.Providers.Extraction.Fallback.Name == "" {
		slog.Warn("no extraction provider configured; specifications will never be produced")
	}
	if cfg.Providers.Generation.Name == "" {
		slog.Warn("no generation provider configured; /api/generate will report an error")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no stt provider configured; capture sessions cannot transcribe audio")
	}

	if cfg.Capture.WordTarget < 0 {
		errs = append(errs, fmt.Errorf("capture.word_target %d must not be negative", cfg.Capture.WordTarget))
	}
	if cfg.Capture.RecentWindowWords < 0 {
		errs = append(errs, fmt.Errorf("capture.recent_window_words %d must not be negative", cfg.Capture.RecentWindowWords))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl %s must not be negative", cfg.Cache.TTL))
	}
	if cfg.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries %d must not be negative", cfg.Cache.MaxEntries))
	}
	if cfg.Resilience.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("resilience.failure_threshold %d must not be negative", cfg.Resilience.FailureThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when a provider name is not in the known list
// for its kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("unrecognised provider name; assuming custom registration",
			"kind", kind, "name", name)
	}
}
