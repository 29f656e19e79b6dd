// Package config содержит логику чтения конфигурации сервиса финансового учёта.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress  = "localhost:8080"
	defaultEventBuffer = 256
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	EventsEndpoint      string `env:"EVENTS_ENDPOINT"`
	StrictRounds        bool   `env:"STRICT_ROUNDS"`
	StrictContributions bool   `env:"STRICT_CONTRIBUTIONS"`
	EventBuffer         int    `env:"EVENT_BUFFER"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Заданная переменная окружения имеет приоритет над флагом.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.EventsEndpoint, "e", "", "webhook endpoint for domain events")
	flag.BoolVar(&cfg.StrictRounds, "strict-rounds", false, "require consecutive round numbers")
	flag.BoolVar(&cfg.StrictContributions, "strict-contributions", false, "allow one contribution per member and round")
	flag.IntVar(&cfg.EventBuffer, "event-buffer", defaultEventBuffer, "size of the event queue")

	flag.Parse()

	// Переменные, которых нет в окружении, не меняют значения флагов.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	return cfg, nil
}
