package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server != "http://localhost:8080" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Capture.SilenceWindow != 2*time.Second || cfg.Capture.HardTimeout != 10*time.Second || cfg.Capture.FinalizeTimeout != 3*time.Minute {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.ElevenLabs.SampleRate != 16000 {
		t.Errorf("sample rate = %d", cfg.ElevenLabs.SampleRate)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server: http://habits.local:9000\nspeak: true\ncapture:\n  silence_window: 1500ms\n  activation_level: 0.05\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HABITVOICE_TOKEN", "env-token")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server != "http://habits.local:9000" || !cfg.Speak {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.ElevenLabs.APIKey != "el-key" {
		t.Errorf("APIKey = %q", cfg.ElevenLabs.APIKey)
	}
	if cfg.Capture.SilenceWindow != 1500*time.Millisecond || cfg.Capture.ActivationLevel != 0.05 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
