package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Mode selects the session variant: "human" or "avatar".
	Mode     string `mapstructure:"mode"`
	HTTPAddr string `mapstructure:"http_addr"`

	Signal SignalConfig `mapstructure:"signal"`
	Avatar AvatarConfig `mapstructure:"avatar"`
	Media  MediaConfig  `mapstructure:"media"`
	ICE    ICEConfig    `mapstructure:"ice"`
}

type SignalConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	Room  string `mapstructure:"room"`
}

type AvatarConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type MediaConfig struct {
	// SelectionPath points at the device-selection record written by the
	// device-test step; a missing file means default devices.
	SelectionPath string `mapstructure:"selection_path"`
}

type ICEConfig struct {
	URLs          []string      `mapstructure:"urls"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "human")
	v.SetDefault("http_addr", "127.0.0.1:8090")
	v.SetDefault("signal.url", "ws://localhost:8080/ws")
	v.SetDefault("signal.room", "")
	v.SetDefault("avatar.base_url", "")
	v.SetDefault("media.selection_path", "./device_selection.json")
	v.SetDefault("ice.urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.gather_timeout", "4s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Mode != "human" && cfg.Mode != "avatar" {
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	fmt.Printf("🧩 Mode: %s | HTTP: %s\n", cfg.Mode, cfg.HTTPAddr)
	return &cfg, nil
}
