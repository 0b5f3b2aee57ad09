package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Runtime holds process settings read from the environment and an optional
// .env file.
type Runtime struct {
	Env              string        `env:"EHREVAL_ENV" envDefault:"local"`
	LogLevel         string        `env:"EHREVAL_LOG_LEVEL" envDefault:"info"`
	InferenceURL     string        `env:"EHREVAL_INFERENCE_URL" envDefault:"http://localhost:8500"`
	InferenceTimeout time.Duration `env:"EHREVAL_INFERENCE_TIMEOUT" envDefault:"10m"`
	HistoryDB        string        `env:"EHREVAL_HISTORY_DB" envDefault:".ehreval/history.db"`
}

func LoadRuntime() (*Runtime, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Runtime{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}
