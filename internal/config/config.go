package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/scoring"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port" validate:"omitempty,numeric"`
		ShutdownTimeout string `yaml:"shutdown_timeout" validate:"omitempty,duration"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		// TTL bounds how long a question stays in the shared Redis cache.
		TTL      string `yaml:"ttl" validate:"omitempty,duration"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Quiz struct {
		// TTL bounds how long a question stays in the in-process cache, and in
		// Redis when redis.ttl is empty.
		TTL                  string `yaml:"ttl" validate:"omitempty,duration"`
		Timezone             string `yaml:"timezone" validate:"omitempty,timezone"`
		DefaultQuestionCount int    `yaml:"default_question_count" validate:"gte=1"`
		MaxQuestionCount     int    `yaml:"max_question_count" validate:"gtefield=DefaultQuestionCount,lte=100"`
		StaleAfter           string `yaml:"stale_after" validate:"omitempty,duration"`
		SweepInterval        string `yaml:"sweep_interval" validate:"omitempty,duration"`
		AutoComplete         bool   `yaml:"auto_complete"`
		// QuestionsFile is a YAML question bank used when Postgres is not configured.
		QuestionsFile string `yaml:"questions_file"`
	} `yaml:"quiz"`
	Scoring struct {
		EasyPoints           int `yaml:"easy_points" validate:"gt=0"`
		MediumPoints         int `yaml:"medium_points" validate:"gtfield=EasyPoints"`
		HardPoints           int `yaml:"hard_points" validate:"gtfield=MediumPoints"`
		StreakStepPercent    int `yaml:"streak_step_percent" validate:"gte=0"`
		MaxMultiplierPercent int `yaml:"max_multiplier_percent" validate:"gte=100"`
	} `yaml:"scoring"`
	Leaderboard struct {
		Limit    int    `yaml:"limit" validate:"gte=0"`
		CacheTTL string `yaml:"cache_ttl" validate:"omitempty,duration"`
	} `yaml:"leaderboard"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"log"`
}

// Defaults returns a configuration that runs with no external services.
func Defaults() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.Timezone = "UTC"
	cfg.Quiz.DefaultQuestionCount = 10
	cfg.Quiz.MaxQuestionCount = 50
	cfg.Quiz.StaleAfter = "6h"
	cfg.Quiz.SweepInterval = "5m"

	sc := scoring.DefaultConfig()
	cfg.Scoring.EasyPoints = sc.EasyPoints
	cfg.Scoring.MediumPoints = sc.MediumPoints
	cfg.Scoring.HardPoints = sc.HardPoints
	cfg.Scoring.StreakStepPercent = sc.StreakStepPercent
	cfg.Scoring.MaxMultiplierPercent = sc.MaxMultiplierPercent

	cfg.Leaderboard.Limit = 100
	cfg.Leaderboard.CacheTTL = "30s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path on top of Defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("PORT", &c.Server.Port)
	set("DATABASE_URL", &c.Postgres.URL)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("JWT_SECRET", &c.Auth.JWTSecret)
	set("QUIZ_TIMEZONE", &c.Quiz.Timezone)
	set("LOG_LEVEL", &c.Log.Level)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks struct tags and the derived scoring configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.ScoringConfig().Validate()
}

// ScoringConfig converts the scoring section.
func (c Config) ScoringConfig() scoring.Config {
	return scoring.Config{
		EasyPoints:           c.Scoring.EasyPoints,
		MediumPoints:         c.Scoring.MediumPoints,
		HardPoints:           c.Scoring.HardPoints,
		StreakStepPercent:    c.Scoring.StreakStepPercent,
		MaxMultiplierPercent: c.Scoring.MaxMultiplierPercent,
	}
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
