package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
)

type Config struct {
	Addr        string
	DatabaseDSN string // empty: no journal, in-memory store only
	Debug       bool
	Rules       game.Rules
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env file is fine

	cfg := Config{
		Addr:        getenv("QUIZ_ADDR", ":8080"),
		DatabaseDSN: os.Getenv("QUIZ_DB_DSN"),
		Debug:       os.Getenv("QUIZ_DEBUG") != "",
		Rules:       game.DefaultRules(),
	}

	var err error
	if cfg.Rules.ScoreBonus, err = getenvInt("QUIZ_SCORE_BONUS", cfg.Rules.ScoreBonus); err != nil {
		return Config{}, err
	}
	if cfg.Rules.DefaultTimeLimit, err = getenvInt("QUIZ_TIME_LIMIT", cfg.Rules.DefaultTimeLimit); err != nil {
		return Config{}, err
	}
	if cfg.Rules.ScoreBonus < 1 {
		return Config{}, fmt.Errorf("QUIZ_SCORE_BONUS must be positive")
	}
	if cfg.Rules.DefaultTimeLimit < 1 {
		return Config{}, fmt.Errorf("QUIZ_TIME_LIMIT must be positive")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
