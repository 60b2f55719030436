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

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"llamacpp", "ollama", "openai", "anthropic", "gemini", "mistral"},
	"stt": {"whisper", "whisper-native"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the values an omitted field should take.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Candidates == 0 {
		cfg.Pipeline.Candidates = 3
	}
	if cfg.Pipeline.AttemptRetries == 0 {
		cfg.Pipeline.AttemptRetries = 2
	}
	// A single generator entry is shorthand for "use it for all attempts".
	if len(cfg.Models.Generators) == 1 {
		g := cfg.Models.Generators[0]
		cfg.Models.Generators = []string{g, g, g}
	}
	if cfg.Models.Judge == "" && len(cfg.Models.Generators) > 0 {
		cfg.Models.Judge = cfg.Models.Generators[0]
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.STT.Name == "whisper-native" && cfg.Providers.STT.Model == "" {
		errs = append(errs, errors.New("providers.stt.model (model file path) is required for whisper-native"))
	}

	if n := len(cfg.Models.Generators); n != 3 {
		errs = append(errs, fmt.Errorf("models.generators needs exactly 3 entries (or 1 used for all), got %d", n))
	}
	for i, g := range cfg.Models.Generators {
		if g == "" {
			errs = append(errs, fmt.Errorf("models.generators[%d] must not be empty", i))
		}
	}
	if cfg.Models.Judge == "" {
		errs = append(errs, errors.New("models.judge is required"))
	}

	if cfg.Pipeline.Candidates < 3 {
		errs = append(errs, fmt.Errorf("pipeline.candidates %d is below the consolidation quorum of 3", cfg.Pipeline.Candidates))
	}
	if cfg.Pipeline.AttemptRetries < 1 {
		errs = append(errs, fmt.Errorf("pipeline.attempt_retries %d must be at least 1", cfg.Pipeline.AttemptRetries))
	}

	if cfg.Report.DBPath == "" {
		slog.Warn("report.db_path is empty; reports are stored in memory and lost on exit")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
