package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete worker configuration
type Config struct {
	Model         ModelConfig         `yaml:"model"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ModelConfig points at the model weights and decoding temperature
type ModelConfig struct {
	Path        string  `yaml:"path"`
	Temperature float64 `yaml:"temperature"`
	Seed        int64   `yaml:"seed"`
}

// TranscriptionConfig controls the streaming transcription sessions
type TranscriptionConfig struct {
	PartialInterval     float64 `yaml:"partial_interval"` // seconds
	MinChunksForPartial int     `yaml:"min_chunks_for_partial"`
	CycleInterval       float64 `yaml:"cycle_interval"` // seconds
}

// SynthesisConfig controls text to speech output
type SynthesisConfig struct {
	Voice      string  `yaml:"voice"`
	Speed      float64 `yaml:"speed"`
	SampleRate int     `yaml:"sample_rate"`
	ChunkSize  int     `yaml:"chunk_size"` // samples per emitted block
}

// HTTPConfig contains the monitoring HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given. Environment
// overrides still apply on top of it.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:        "",
			Temperature: 0,
			Seed:        0,
		},
		Transcription: TranscriptionConfig{
			PartialInterval:     1.0,
			MinChunksForPartial: 4,
			CycleInterval:       0.02,
		},
		Synthesis: SynthesisConfig{
			Voice:      "default",
			Speed:      1.0,
			SampleRate: 24000,
			ChunkSize:  4800,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the configuration file, then applies environment
// overrides. An empty path yields the defaults with overrides applied.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Environment variables recognized by applyEnv.
const (
	EnvModelPath           = "VOXMLX_MODEL"
	EnvTemperature         = "VOXMLX_TEMP"
	EnvPartialInterval     = "VOXMLX_PARTIAL_INTERVAL_SEC"
	EnvMinChunksForPartial = "VOXMLX_MIN_CHUNKS_FOR_PARTIAL"
	EnvVoice               = "VOXMLX_TTS_VOICE"
	EnvSpeed               = "VOXMLX_TTS_SPEED"
)

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvTemperature); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTemperature, err)
		}
		c.Model.Temperature = f
	}
	if v := os.Getenv(EnvPartialInterval); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPartialInterval, err)
		}
		c.Transcription.PartialInterval = f
	}
	if v := os.Getenv(EnvMinChunksForPartial); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMinChunksForPartial, err)
		}
		c.Transcription.MinChunksForPartial = n
	}
	if v := os.Getenv(EnvVoice); v != "" {
		c.Synthesis.Voice = v
	}
	if v := os.Getenv(EnvSpeed); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSpeed, err)
		}
		c.Synthesis.Speed = f
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates model configuration
func (m *ModelConfig) Validate() error {
	if m.Temperature < 0 {
		return fmt.Errorf("temperature cannot be negative, got %f", m.Temperature)
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.PartialInterval <= 0 {
		return fmt.Errorf("partial_interval must be positive, got %f", t.PartialInterval)
	}

	if t.MinChunksForPartial < 1 {
		return fmt.Errorf("min_chunks_for_partial must be at least 1, got %d", t.MinChunksForPartial)
	}

	if t.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive, got %f", t.CycleInterval)
	}

	return nil
}

// Validate validates synthesis configuration
func (s *SynthesisConfig) Validate() error {
	if s.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	if s.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", s.Speed)
	}

	if s.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", s.SampleRate)
	}

	if s.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1 sample, got %d", s.ChunkSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPartialIntervalDuration returns the partial cadence as a time.Duration
func (t *TranscriptionConfig) GetPartialIntervalDuration() time.Duration {
	return time.Duration(t.PartialInterval * float64(time.Second))
}

// GetCycleIntervalDuration returns the decode cycle period as a time.Duration
func (t *TranscriptionConfig) GetCycleIntervalDuration() time.Duration {
	return time.Duration(t.CycleInterval * float64(time.Second))
}
