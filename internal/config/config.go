package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	RelayURL     string        `mapstructure:"relay_url"`
	RecordingURL string        `mapstructure:"recording_url"`
	Room         string        `mapstructure:"room"`
	UserID       string        `mapstructure:"user_id"`
	DebugPort    int           `mapstructure:"debug_port"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	BotPrefix    string        `mapstructure:"bot_prefix"`
	RecPrefix    string        `mapstructure:"recorder_prefix"`
	RelayChat    bool          `mapstructure:"relay_chat"`
	STUNServers  []string      `mapstructure:"stun_servers"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("relay_url", "ws://localhost:8080")
	v.SetDefault("recording_url", "")
	v.SetDefault("debug_port", 9090)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("bot_prefix", "Bot")
	v.SetDefault("recorder_prefix", "RecorderBot")
	v.SetDefault("relay_chat", true)
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
