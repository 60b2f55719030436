// Package config provides the configuration schema and loader for the
// artivox assessment service.
package config

// LogLevel controls log verbosity for the artivox process.
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

// Config is the root configuration structure for artivox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Models    ModelsConfig    `yaml:"models"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Report    ReportConfig    `yaml:"report"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// external collaborator.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "llamacpp", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For the whisper
	// STT provider this is the whisper.cpp server URL. Leave empty to use
	// the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider. For whisper-native
	// this is the GGUF/GGML model file path.
	Model string `yaml:"model"`

	// Language is the BCP-47 transcription language for STT providers
	// (e.g., "en"). Ignored for LLM providers.
	Language string `yaml:"language"`
}

// ModelsConfig names the model sources the pipeline generates with. Three
// generator sources and one judge source; in the common deployment all four
// are the same model and the engine never reloads between calls.
type ModelsConfig struct {
	// Generators are the candidate-attempt model sources. Exactly three.
	Generators []string `yaml:"generators"`

	// Judge is the selection-call model source.
	Judge string `yaml:"judge"`
}

// PipelineConfig tunes the candidate-consensus behaviour.
type PipelineConfig struct {
	// Candidates is the number of independent attempts per candidate stage.
	// Defaults to 3.
	Candidates int `yaml:"candidates"`

	// AttemptRetries is the total number of tries per phonetic attempt
	// before it is dropped. Defaults to 2.
	AttemptRetries int `yaml:"attempt_retries"`
}

// ReportConfig holds settings for the persisted report store.
type ReportConfig struct {
	// DBPath is the directory for the BadgerDB report store. Empty means
	// in-memory only; reports are lost on exit.
	DBPath string `yaml:"db_path"`
}
