package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit" validate:"gt=0"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"gt=0"`
}

type RoomsConfig struct {
	Initial  int `mapstructure:"initial" validate:"gte=0"`
	Capacity int `mapstructure:"capacity" validate:"gt=0"`
}

type PollConfig struct {
	InitialDelay      time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
	Interval          time.Duration `mapstructure:"interval" validate:"gt=0"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval" validate:"gt=0"`
}

type ProgressConfig struct {
	CommitWeight      int `mapstructure:"commit_weight" validate:"gte=0"`
	PullRequestWeight int `mapstructure:"pull_request_weight" validate:"gte=0"`
}

type GitHubConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type Config struct {
	Mode        string `mapstructure:"mode" validate:"oneof=debug release"`
	Port        int    `mapstructure:"port" validate:"gt=0"`
	StaticPath  string `mapstructure:"static_path"`
	Secret      string `mapstructure:"secret"`
	AdminSecret string `mapstructure:"admin_secret"`

	WS       WSConfig       `mapstructure:"ws"`
	Rooms    RoomsConfig    `mapstructure:"rooms"`
	Poll     PollConfig     `mapstructure:"poll"`
	Progress ProgressConfig `mapstructure:"progress"`
	GitHub   GitHubConfig   `mapstructure:"github"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "grove-dev-secret")
	v.SetDefault("admin_secret", "")
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 32)
	v.SetDefault("rooms.initial", 4)
	v.SetDefault("rooms.capacity", 16)
	v.SetDefault("poll.initial_delay", "10s")
	v.SetDefault("poll.interval", "60s")
	v.SetDefault("poll.rate_limit_interval", "15m")
	v.SetDefault("progress.commit_weight", 2)
	v.SetDefault("progress.pull_request_weight", 10)
	v.SetDefault("github.base_url", "https://api.github.com")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
