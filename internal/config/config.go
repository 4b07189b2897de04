package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	MatchDurationSeconds int `env:"MATCH_DURATION_SECONDS" envDefault:"30" validate:"min=5,max=600"`
	TextWordCount        int `env:"TEXT_WORD_COUNT"        envDefault:"40" validate:"min=5,max=200"`

	RoomRetentionMinutes int `env:"ROOM_RETENTION_MINUTES" envDefault:"5"  validate:"min=1"`
	RoomIdleMinutes      int `env:"ROOM_IDLE_MINUTES"      envDefault:"10" validate:"min=1"`
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60" validate:"min=1"`
}

func (c *Config) MatchDuration() time.Duration {
	return time.Duration(c.MatchDurationSeconds) * time.Second
}

func (c *Config) RoomRetention() time.Duration {
	return time.Duration(c.RoomRetentionMinutes) * time.Minute
}

func (c *Config) RoomIdleTTL() time.Duration {
	return time.Duration(c.RoomIdleMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
