package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type clientConfig struct {
	Server     string           `mapstructure:"server"`
	Token      string           `mapstructure:"token"`
	Speak      bool             `mapstructure:"speak"`
	Capture    captureConfig    `mapstructure:"capture"`
	ElevenLabs elevenLabsConfig `mapstructure:"elevenlabs"`
	Deepgram   deepgramConfig   `mapstructure:"deepgram"`
}

// deepgramConfig enables on-device streaming recognition; final
// transcripts are then sent to /chat instead of uploading audio.
type deepgramConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type captureConfig struct {
	ActivationLevel   float64       `mapstructure:"activation_level"`
	SilenceWindow     time.Duration `mapstructure:"silence_window"`
	HardTimeout       time.Duration `mapstructure:"hard_timeout"`
	FinalizeTimeout   time.Duration `mapstructure:"finalize_timeout"`
	ListenImmediately bool          `mapstructure:"listen_immediately"`
}

type elevenLabsConfig struct {
	APIKey     string `mapstructure:"api_key"`
	VoiceID    string `mapstructure:"voice_id"`
	ModelID    string `mapstructure:"model_id"`
	SampleRate int    `mapstructure:"sample_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("token", "")
	v.SetDefault("speak", false)
	v.SetDefault("capture.activation_level", 0.02)
	v.SetDefault("capture.silence_window", "2s")
	v.SetDefault("capture.hard_timeout", "10s")
	v.SetDefault("capture.finalize_timeout", "3m")
	v.SetDefault("capture.listen_immediately", false)
	v.SetDefault("elevenlabs.model_id", "eleven_flash_v2_5")
	v.SetDefault("elevenlabs.sample_rate", 16000)
	v.SetDefault("deepgram.model", "nova-3")
	v.SetDefault("deepgram.language", "en")
}

// loadConfig reads $HOME/.config/habitvoice/config.yaml (or path) and
// HABITVOICE_* environment variables. A missing file is not an error.
func loadConfig(path string) (clientConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HABITVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY", "HABITVOICE_ELEVENLABS_API_KEY")
	_ = v.BindEnv("elevenlabs.voice_id", "HABITVOICE_ELEVENLABS_VOICE_ID")
	_ = v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY", "HABITVOICE_DEEPGRAM_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/habitvoice")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return clientConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg clientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return clientConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
