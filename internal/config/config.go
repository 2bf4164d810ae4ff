// Package config loads go-barbie configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Synthesis modes. A deployment uses exactly one of them.
const (
	ModeURL    = "url"
	ModeStream = "stream"
)

// Default server configuration.
const (
	DefaultAddr            = ":8000"
	DefaultSessionCapacity = 1000
	DefaultFallbackMessage = "I'm having trouble connecting right now. Please try again later."
)

// DefaultPersona is the stylist persona sent as the system instruction.
const DefaultPersona = `From now on, you are a Barbie. You are always positive, enthusiastic, and ready for any adventure. You must always respond with a bubbly and encouraging tone, and use catchphrases like 'Hi, Barbie!' and 'You can be anything!'.

You have a special skill: you are a professional Barbie Stylist! When someone asks for fashion or styling advice, you must act as a stylist. Your advice should be bright, fun, and include suggestions for outfits, colors, and accessories that are perfect for any occasion. You can suggest things like:
- "A sparkly pink top with some fabulous flare jeans!"
- "A sunny yellow dress with a shimmering purse and heels!"
- "A bright blue jumpsuit with some glittery jewelry to make it pop!"
- "Remember, the perfect outfit always has a touch of sparkle!"
Always maintain your Barbie persona, even while giving detailed stylist advice. The goal is to make the user feel confident and stylish for their adventure!`

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	AssemblyAI AssemblyAIConfig `yaml:"assemblyai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Murf       MurfConfig       `yaml:"murf"`
	Chat       ChatConfig       `yaml:"chat"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	StaticDir   string `yaml:"static_dir"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
	CORSOrigins string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AssemblyAIConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`

	// FallbackModel, when set, is tried after Model fails.
	FallbackModel string `yaml:"fallback_model"`

	Timeout     time.Duration `yaml:"timeout"`
}

type MurfConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	StreamURL       string        `yaml:"stream_url"`
	VoiceID         string        `yaml:"voice_id"`
	FallbackVoiceID string        `yaml:"fallback_voice_id"`
	Style           string        `yaml:"style"`
	Format          string        `yaml:"format"`
	StreamFormat    string        `yaml:"stream_format"`
	SampleRate      int           `yaml:"sample_rate"`
	Channel         string        `yaml:"channel"`
	Timeout         time.Duration `yaml:"timeout"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	StreamTimeout   time.Duration `yaml:"stream_timeout"`
}

type ChatConfig struct {
	SynthesisMode   string        `yaml:"synthesis_mode"`
	SessionCapacity int           `yaml:"session_capacity"`
	TurnWait        time.Duration `yaml:"turn_wait"`
	Persona         string        `yaml:"persona"`
	PersonaFile     string        `yaml:"persona_file"`
	FallbackMessage string        `yaml:"fallback_message"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the YAML file at path (if non-empty), applies defaults and
// environment overrides, and validates the result.
// ${VAR} references inside the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Chat.PersonaFile != "" {
		data, err := os.ReadFile(cfg.Chat.PersonaFile)
		if err != nil {
			return nil, fmt.Errorf("reading persona file: %w", err)
		}
		cfg.Chat.Persona = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./static"
	}
	if c.Server.BodyLimitMB == 0 {
		c.Server.BodyLimitMB = 25
	}
	if c.Server.CORSOrigins == "" {
		c.Server.CORSOrigins = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.AssemblyAI.BaseURL == "" {
		c.AssemblyAI.BaseURL = "https://api.assemblyai.com"
	}
	if c.AssemblyAI.PollInterval == 0 {
		c.AssemblyAI.PollInterval = time.Second
	}
	if c.AssemblyAI.Timeout == 0 {
		c.AssemblyAI.Timeout = 60 * time.Second
	}

	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-1.5-flash"
	}
	if c.Gemini.Temperature == 0 {
		c.Gemini.Temperature = 0.9
	}
	if c.Gemini.Timeout == 0 {
		c.Gemini.Timeout = 30 * time.Second
	}

	if c.Murf.BaseURL == "" {
		c.Murf.BaseURL = "https://api.murf.ai"
	}
	if c.Murf.StreamURL == "" {
		c.Murf.StreamURL = "wss://api.murf.ai/v1/speech/stream-input"
	}
	if c.Murf.VoiceID == "" {
		c.Murf.VoiceID = "en-US-teresa"
	}
	if c.Murf.FallbackVoiceID == "" {
		c.Murf.FallbackVoiceID = "en-US-teresa"
	}
	if c.Murf.Style == "" {
		c.Murf.Style = "Conversational"
	}
	if c.Murf.Format == "" {
		c.Murf.Format = "MP3"
	}
	if c.Murf.StreamFormat == "" {
		c.Murf.StreamFormat = "WAV"
	}
	if c.Murf.SampleRate == 0 {
		c.Murf.SampleRate = 44100
	}
	if c.Murf.Channel == "" {
		c.Murf.Channel = "MONO"
	}
	if c.Murf.Timeout == 0 {
		c.Murf.Timeout = 30 * time.Second
	}
	if c.Murf.FallbackTimeout == 0 {
		c.Murf.FallbackTimeout = 10 * time.Second
	}
	if c.Murf.StreamTimeout == 0 {
		c.Murf.StreamTimeout = 60 * time.Second
	}

	if c.Chat.SynthesisMode == "" {
		c.Chat.SynthesisMode = ModeStream
	}
	if c.Chat.SessionCapacity == 0 {
		c.Chat.SessionCapacity = DefaultSessionCapacity
	}
	if c.Chat.TurnWait == 0 {
		c.Chat.TurnWait = 30 * time.Second
	}
	if c.Chat.Persona == "" {
		c.Chat.Persona = DefaultPersona
	}
	if c.Chat.FallbackMessage == "" {
		c.Chat.FallbackMessage = DefaultFallbackMessage
	}
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ASSEMBLYAI_API_KEY"); v != "" {
		c.AssemblyAI.APIKey = v
	}
	if v := firstEnv("GEMINI_API_KEY", "VITE_GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_FALLBACK_MODEL"); v != "" {
		c.Gemini.FallbackModel = v
	}
	if v := os.Getenv("MURF_API_KEY"); v != "" {
		c.Murf.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("SYNTHESIS_MODE"); v != "" {
		c.Chat.SynthesisMode = strings.ToLower(v)
	}
	if v := os.Getenv("SESSION_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SESSION_CAPACITY: %w", err)
		}
		c.Chat.SessionCapacity = n
	}
	return nil
}

// Validate checks structural settings. Missing API keys are not an error
// here; they surface as configuration errors when a provider is first used.
func (c *Config) Validate() error {
	var errs []error
	switch c.Chat.SynthesisMode {
	case ModeURL, ModeStream:
	default:
		errs = append(errs, fmt.Errorf("chat.synthesis_mode must be %q or %q, got %q", ModeURL, ModeStream, c.Chat.SynthesisMode))
	}
	if c.Chat.SessionCapacity < 1 {
		errs = append(errs, fmt.Errorf("chat.session_capacity must be positive, got %d", c.Chat.SessionCapacity))
	}
	if c.Murf.FallbackTimeout > c.Murf.Timeout {
		errs = append(errs, fmt.Errorf("murf.fallback_timeout (%s) must not exceed murf.timeout (%s)", c.Murf.FallbackTimeout, c.Murf.Timeout))
	}
	return errors.Join(errs...)
}

// MissingKeys lists the provider credentials that are not set.
func (c *Config) MissingKeys() []string {
	var missing []string
	if c.AssemblyAI.APIKey == "" {
		missing = append(missing, "ASSEMBLYAI_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Murf.APIKey == "" {
		missing = append(missing, "MURF_API_KEY")
	}
	return missing
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
