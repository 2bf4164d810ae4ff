package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ASSEMBLYAI_API_KEY", "GEMINI_API_KEY", "VITE_GEMINI_API_KEY", "MURF_API_KEY",
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "SYNTHESIS_MODE", "SESSION_CAPACITY",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Chat.SynthesisMode != ModeStream {
		t.Errorf("SynthesisMode = %q, want %q", cfg.Chat.SynthesisMode, ModeStream)
	}
	if cfg.Chat.SessionCapacity != DefaultSessionCapacity {
		t.Errorf("SessionCapacity = %d", cfg.Chat.SessionCapacity)
	}
	if cfg.Murf.FallbackTimeout != 10*time.Second {
		t.Errorf("FallbackTimeout = %s, want 10s", cfg.Murf.FallbackTimeout)
	}
	if cfg.Chat.Persona != DefaultPersona {
		t.Error("expected default persona")
	}
	if cfg.Chat.FallbackMessage != DefaultFallbackMessage {
		t.Errorf("FallbackMessage = %q", cfg.Chat.FallbackMessage)
	}
	if got := len(cfg.MissingKeys()); got != 3 {
		t.Errorf("MissingKeys = %d, want 3", got)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_MURF_KEY", "murf-from-file")

	path := writeFile(t, "config.yaml", `
server:
  addr: ":9090"
chat:
  synthesis_mode: url
  session_capacity: 5
  turn_wait: 2s
murf:
  api_key: ${TEST_MURF_KEY}
  voice_id: en-US-natalie
  fallback_timeout: 3s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Chat.SynthesisMode != ModeURL {
		t.Errorf("SynthesisMode = %q", cfg.Chat.SynthesisMode)
	}
	if cfg.Chat.SessionCapacity != 5 {
		t.Errorf("SessionCapacity = %d", cfg.Chat.SessionCapacity)
	}
	if cfg.Chat.TurnWait != 2*time.Second {
		t.Errorf("TurnWait = %s", cfg.Chat.TurnWait)
	}
	if cfg.Murf.APIKey != "murf-from-file" {
		t.Errorf("Murf.APIKey = %q, want expanded env value", cfg.Murf.APIKey)
	}
	if cfg.Murf.VoiceID != "en-US-natalie" {
		t.Errorf("VoiceID = %q", cfg.Murf.VoiceID)
	}
	if cfg.Murf.FallbackTimeout != 3*time.Second {
		t.Errorf("FallbackTimeout = %s", cfg.Murf.FallbackTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSEMBLYAI_API_KEY", "aai")
	t.Setenv("VITE_GEMINI_API_KEY", "vite-gemini")
	t.Setenv("MURF_API_KEY", "murf")
	t.Setenv("PORT", "7000")
	t.Setenv("SYNTHESIS_MODE", "URL")
	t.Setenv("SESSION_CAPACITY", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gemini.APIKey != "vite-gemini" {
		t.Errorf("Gemini.APIKey = %q, want VITE_ fallback", cfg.Gemini.APIKey)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Chat.SynthesisMode != ModeURL {
		t.Errorf("SynthesisMode = %q", cfg.Chat.SynthesisMode)
	}
	if cfg.Chat.SessionCapacity != 42 {
		t.Errorf("SessionCapacity = %d", cfg.Chat.SessionCapacity)
	}
	if missing := cfg.MissingKeys(); len(missing) != 0 {
		t.Errorf("MissingKeys = %v, want none", missing)
	}

	t.Run("GEMINI_API_KEY wins over VITE_ prefix", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "direct")
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Gemini.APIKey != "direct" {
			t.Errorf("Gemini.APIKey = %q", cfg.Gemini.APIKey)
		}
	})
}

func TestLoadPersonaFile(t *testing.T) {
	clearEnv(t)
	persona := writeFile(t, "persona.txt", "  You are a test persona.  \n")
	path := writeFile(t, "config.yaml", "chat:\n  persona_file: "+persona+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Persona != "You are a test persona." {
		t.Errorf("Persona = %q", cfg.Chat.Persona)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "bad mode",
			content: "chat:\n  synthesis_mode: carrier-pigeon\n",
			wantErr: "synthesis_mode",
		},
		{
			name:    "negative capacity",
			content: "chat:\n  session_capacity: -1\n",
			wantErr: "session_capacity",
		},
		{
			name:    "fallback slower than normal synthesis",
			content: "murf:\n  timeout: 5s\n  fallback_timeout: 20s\n",
			wantErr: "fallback_timeout",
		},
		{
			name:    "malformed yaml",
			content: "chat: [unterminated\n",
			wantErr: "parsing config",
		},
		{
			name:    "bad capacity env",
			content: "",
			env:     map[string]string{"SESSION_CAPACITY": "lots"},
			wantErr: "SESSION_CAPACITY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
