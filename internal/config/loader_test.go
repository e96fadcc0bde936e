package config

import (
	"strings"
	"testing"
	"time"
)

const fullConfig = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  extraction:
    primary:
      name: cerebras
      api_key: key-1
      model: llama-3.3-70b
    fallback:
      name: gemini
      api_key: key-2
      model: gemini-2.0-flash
  generation:
    name: gemini
    api_key: key-2
    model: gemini-2.0-flash
  stt:
    name: deepgram
    api_key: key-3
    model: nova-2
capture:
  word_target: 30
  recent_window_words: 200
  sample_rate: 16000
  channels: 1
  language: en-US
cache:
  ttl: 5m
  max_entries: 100
resilience:
  failure_threshold: 5
  cool_down: 30s
archive:
  postgres_dsn: postgres://localhost/devdraft
`

func TestLoadFromReaderFull(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.Extraction.Primary.Name != "cerebras" {
		t.Fatalf("primary = %q", cfg.Providers.Extraction.Primary.Name)
	}
	if cfg.Providers.Extraction.Fallback.Model != "gemini-2.0-flash" {
		t.Fatalf("fallback model = %q", cfg.Providers.Extraction.Fallback.Model)
	}
	if cfg.Capture.WordTarget != 30 {
		t.Fatalf("word_target = %d", cfg.Capture.WordTarget)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Archive.PostgresDSN == "" {
		t.Fatal("postgres_dsn missing")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_adress: ':8080'\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoadFromReaderEmptyIsValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddr != "" {
		t.Fatalf("listen_addr = %q", cfg.Server.ListenAddr)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Capture.WordTarget = -1
	cfg.Cache.MaxEntries = -5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "word_target", "max_entries"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestValidateTLSRequiresBothFiles(t *testing.T) {
	cfg := &Config{}
	cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing key_file")
	}
}

func TestLogLevelSlogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		valid bool
	}{
		{LogDebug, true},
		{LogInfo, true},
		{LogWarn, true},
		{LogError, true},
		{"verbose", false},
	}
	for _, tc := range tests {
		if got := tc.level.IsValid(); got != tc.valid {
			t.Fatalf("IsValid(%q) = %v, want %v", tc.level, got, tc.valid)
		}
	}
}
