// Command artivox runs articulation assessments: it transcribes a speech
// sample, compares it phonetically against a reference text, and produces a
// structured error report. It runs either as a one-shot CLI assessment or as
// an MCP tool server over stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/aneeshram/artivox/internal/analysis"
	"github.com/aneeshram/artivox/internal/config"
	"github.com/aneeshram/artivox/internal/engine"
	"github.com/aneeshram/artivox/internal/mcptool"
	"github.com/aneeshram/artivox/internal/observe"
	"github.com/aneeshram/artivox/internal/profile"
	"github.com/aneeshram/artivox/internal/report"
	"github.com/aneeshram/artivox/pkg/audio"
	"github.com/aneeshram/artivox/pkg/provider/llm"
	"github.com/aneeshram/artivox/pkg/provider/llm/anyllm"
	openaiprov "github.com/aneeshram/artivox/pkg/provider/llm/openai"
	"github.com/aneeshram/artivox/pkg/provider/stt"
	"github.com/aneeshram/artivox/pkg/provider/stt/whisper"
)

// version is the reported service version. Overridden at build time via
// -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcpMode := flag.Bool("mcp", false, "serve assessment tools over MCP stdio instead of running one assessment")
	audioPath := flag.String("audio", "", "path to the WAV file of the speaker reading the reference text")
	referenceText := flag.String("text", "", "the reference text the speaker was asked to read")
	profilePath := flag.String("profile", "", "optional path to a YAML file of questionnaire answers")
	outPath := flag.String("out", "", "write the report JSON to this file instead of stdout")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "artivox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "artivox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("artivox starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "artivox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, closeSTT, err := buildTranscriber(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	defer closeSTT()
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	load, err := buildLoadFunc(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to configure llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider configured", "kind", "llm", "name", cfg.Providers.LLM.Name)

	// ── Engine and pipeline ───────────────────────────────────────────────────
	mgr := engine.NewManager(load, engine.WithMetrics(metrics))
	defer mgr.Release()

	store, err := openStore(cfg.Report)
	if err != nil {
		slog.Error("failed to open report store", "err", err)
		return 1
	}
	defer store.Close()

	var generators [3]string
	copy(generators[:], cfg.Models.Generators)
	pipeline := analysis.New(mgr, transcriber,
		analysis.Sources{Generators: generators, Judge: cfg.Models.Judge},
		analysis.WithMetrics(metrics),
		analysis.WithCandidates(cfg.Pipeline.Candidates),
		analysis.WithAttemptTries(cfg.Pipeline.AttemptRetries),
	)

	// ── MCP server mode ───────────────────────────────────────────────────────
	if *mcpMode {
		slog.Info("serving MCP tools over stdio")
		server := mcptool.NewServer(mcptool.NewAssessor(pipeline, store), version)
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return 0
	}

	// ── One-shot assessment ───────────────────────────────────────────────────
	if *audioPath == "" || *referenceText == "" {
		fmt.Fprintln(os.Stderr, "artivox: -audio and -text are required (or use -mcp)")
		return 2
	}

	res, err := assess(ctx, pipeline, *audioPath, *referenceText, *profilePath)
	if err != nil {
		slog.Error("assessment failed", "err", err)
		return 1
	}
	if err := store.Save(res); err != nil {
		slog.Warn("failed to persist report", "run_id", res.RunID, "err", err)
	}

	if err := writeReport(res, *outPath); err != nil {
		slog.Error("failed to write report", "err", err)
		return 1
	}
	slog.Info("assessment complete", "run_id", res.RunID)
	return 0
}

// assess loads the audio and optional profile, then runs the pipeline.
func assess(ctx context.Context, pipeline *analysis.Pipeline, audioPath, referenceText, profilePath string) (*analysis.Result, error) {
	wav, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio %q: %w", audioPath, err)
	}
	pcm, err := audio.PrepareForTranscription(wav)
	if err != nil {
		return nil, err
	}

	var prof profile.Profile
	if profilePath != "" {
		data, err := os.ReadFile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("read profile %q: %w", profilePath, err)
		}
		if err := yaml.Unmarshal(data, &prof); err != nil {
			return nil, fmt.Errorf("parse profile %q: %w", profilePath, err)
		}
	}

	return pipeline.Run(ctx, analysis.Input{
		PCM:           pcm,
		ReferenceText: referenceText,
		Profile:       prof,
	})
}

// writeReport marshals the result as indented JSON to outPath or stdout.
func writeReport(res *analysis.Result, outPath string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTranscriber creates the configured STT provider. The returned close
// function releases provider resources; it is a no-op for the HTTP client.
func buildTranscriber(entry config.ProviderEntry) (stt.Transcriber, func(), error) {
	switch entry.Name {
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		t, err := whisper.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil

	case "whisper-native":
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		t, err := whisper.NewNative(entry.Model, opts...)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {
			if err := t.Close(); err != nil {
				slog.Warn("whisper model close error", "err", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported stt provider %q; supported: whisper, whisper-native", entry.Name)
	}
}

// buildLoadFunc returns the engine.LoadFunc that constructs a generation
// backend for a model source. The "openai" name uses the official SDK client
// (full sampling parameter support); every other name goes through the
// any-llm-go multi-provider backend.
func buildLoadFunc(entry config.ProviderEntry) (engine.LoadFunc, error) {
	switch entry.Name {
	case "openai":
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []openaiprov.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(entry.BaseURL))
		}
		return func(_ context.Context, source string) (llm.Provider, error) {
			return openaiprov.New(apiKey, source, opts...)
		}, nil

	case "llamacpp", "ollama", "anthropic", "gemini", "mistral":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		name := entry.Name
		return func(_ context.Context, source string) (llm.Provider, error) {
			return anyllm.New(name, source, opts...)
		}, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q; supported: llamacpp, ollama, openai, anthropic, gemini, mistral", entry.Name)
	}
}

// openStore opens the configured report store, falling back to in-memory
// when no path is configured.
func openStore(cfg config.ReportConfig) (*report.Store, error) {
	if cfg.DBPath == "" {
		return report.OpenInMemory()
	}
	return report.Open(cfg.DBPath)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
