// Command devdraft is the main entry point for the devdraft session server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/devdraft-ai/devdraft/internal/archive"
	"github.com/devdraft-ai/devdraft/internal/config"
	"github.com/devdraft-ai/devdraft/internal/extract"
	"github.com/devdraft-ai/devdraft/internal/generate"
	"github.com/devdraft-ai/devdraft/internal/health"
	"github.com/devdraft-ai/devdraft/internal/httpserver"
	"github.com/devdraft-ai/devdraft/internal/observe"
	"github.com/devdraft-ai/devdraft/internal/resilience"
	"github.com/devdraft-ai/devdraft/internal/session"
	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
	"github.com/devdraft-ai/devdraft/pkg/provider/llm/anyllm"
	oaillm "github.com/devdraft-ai/devdraft/pkg/provider/llm/openai"
	"github.com/devdraft-ai/devdraft/pkg/provider/stt"
	"github.com/devdraft-ai/devdraft/pkg/provider/stt/deepgram"
)

const version = "0.1.0"

// cerebrasBaseURL is the OpenAI-compatible endpoint Cerebras exposes.
const cerebrasBaseURL = "https://api.cerebras.ai/v1"

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "devdraft: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "devdraft: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("devdraft starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Extraction chain ──────────────────────────────────────────────────────
	breaker := resilience.FallbackConfig{Breaker: resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		CoolDown:         cfg.Resilience.CoolDown,
	}}

	extractor, err := buildExtractor(cfg, reg, breaker)
	if err != nil {
		slog.Error("failed to build extraction backends", "err", err)
		return 1
	}

	// ── Generation pipeline ───────────────────────────────────────────────────
	var generator *generate.Pipeline
	if name := cfg.Providers.Generation.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.Generation)
		if err != nil {
			slog.Error("failed to create generation provider", "name", name, "err", err)
			return 1
		}
		generator = generate.New(resilience.NewLLMFallback(name, p, breaker))
		slog.Info("provider created", "kind", "generation", "name", name, "model", cfg.Providers.Generation.Model)
	} else {
		slog.Warn("no generation provider configured — /api/generate will report unavailable")
	}

	// ── Speech-to-text ────────────────────────────────────────────────────────
	var sttProvider stt.Provider
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			slog.Error("failed to create stt provider", "name", name, "err", err)
			return 1
		}
		sttProvider = p
		slog.Info("provider created", "kind", "stt", "name", name, "model", cfg.Providers.STT.Model)
	}

	// ── Capture session factory ───────────────────────────────────────────────
	var newSession func() *session.Controller
	if sttProvider != nil && extractor != nil {
		stream := stt.StreamConfig{
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
			Language:   cfg.Capture.Language,
		}
		trigger := session.TriggerPolicy{Target: cfg.Capture.WordTarget}
		newSession = func() *session.Controller {
			return session.New(session.Config{
				STT:       sttProvider,
				Extractor: extractor,
				Trigger:   trigger,
				Stream:    stream,
				Metrics:   metrics,
			})
		}
	} else {
		slog.Warn("stt or extraction provider missing — capture sessions disabled")
	}

	// ── Archive ───────────────────────────────────────────────────────────────
	var store archive.Store
	var checkers []health.Checker
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()

		pg := archive.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate archive schema", "err", err)
			return 1
		}
		store = pg
		checkers = append(checkers, health.Checker{Name: "archive", Check: pool.Ping})
		slog.Info("archive enabled", "backend", "postgres")
	} else {
		store = archive.NewMemoryStore()
		slog.Info("archive enabled", "backend", "memory")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := httpserver.New(httpserver.Config{
		Addr:           listenAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TLS:            cfg.Server.TLS,
		NewSession:     newSession,
		Generator:      generator,
		Archive:        store,
		Health:         health.New(checkers...),
		Metrics:        metrics,
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildExtractor assembles the extraction backend chain, cache included.
// Returns nil without error when no primary backend is configured.
func buildExtractor(cfg *config.Config, reg *config.Registry, breaker resilience.FallbackConfig) (*extract.Extractor, error) {
	primaryEntry := cfg.Providers.Extraction.Primary
	if primaryEntry.Name == "" {
		slog.Warn("no extraction provider configured")
		return nil, nil
	}

	primary, err := reg.CreateLLM(primaryEntry)
	if err != nil {
		return nil, fmt.Errorf("create primary %q: %w", primaryEntry.Name, err)
	}
	group := resilience.NewFallbackGroup[llm.Provider](primaryEntry.Name, primary, breaker)
	slog.Info("provider created", "kind", "extraction", "name", primaryEntry.Name, "model", primaryEntry.Model)

	if fbEntry := cfg.Providers.Extraction.Fallback; fbEntry.Name != "" {
		fb, err := reg.CreateLLM(fbEntry)
		if err != nil {
			return nil, fmt.Errorf("create fallback %q: %w", fbEntry.Name, err)
		}
		group.Add(fbEntry.Name, fb)
		slog.Info("provider created", "kind", "extraction-fallback", "name", fbEntry.Name, "model", fbEntry.Model)
	}

	opts := []extract.Option{
		extract.WithCache(extract.NewCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)),
	}
	if cfg.Capture.RecentWindowWords > 0 {
		opts = append(opts, extract.WithRecentWindow(cfg.Capture.RecentWindowWords))
	}
	return extract.New(group, opts...), nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// cerebras speaks the OpenAI chat-completions protocol at its own endpoint.
	reg.RegisterLLM("cerebras", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = cerebrasBaseURL
		}
		return oaillm.New(entry.APIKey, entry.Model, oaillm.WithBaseURL(baseURL))
	})

	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
