package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/quizbridge-backend/internal/data/db"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz"
	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
	"github.com/yungbote/quizbridge-backend/internal/platform/canvas"
	"github.com/yungbote/quizbridge-backend/internal/platform/envutil"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
	"github.com/yungbote/quizbridge-backend/internal/platform/openai"
	"github.com/yungbote/quizbridge-backend/internal/platform/validate"
	"github.com/yungbote/quizbridge-backend/internal/realtime/bus"
)

type TxConfig struct {
	Isolation  string `yaml:"isolation" validate:"omitempty,oneof=default read_committed repeatable_read serializable"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type TimeoutsConfig struct {
	Extraction time.Duration `yaml:"extraction" validate:"gt=0"`
	Generation time.Duration `yaml:"generation" validate:"gt=0"`
	Export     time.Duration `yaml:"export" validate:"gt=0"`
}

type GenerationConfig struct {
	Concurrency              int           `yaml:"concurrency" validate:"gte=1,lte=32"`
	MaxRetries               int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	MaxCorrections           int           `yaml:"max_corrections" validate:"gte=0,lte=10"`
	MaxValidationCorrections int           `yaml:"max_validation_corrections" validate:"gte=0,lte=10"`
	BaseDelay                time.Duration `yaml:"base_delay" validate:"gte=0"`
}

type Config struct {
	Env         string   `yaml:"env"`
	ServiceName string   `yaml:"service_name"`
	Port        string   `yaml:"port" validate:"required"`
	MetricsAddr string   `yaml:"metrics_addr"`
	CORSOrigins []string `yaml:"cors_origins"`

	DB         db.Config        `yaml:"db"`
	Tx         TxConfig         `yaml:"tx"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Generation GenerationConfig `yaml:"generation"`
	Canvas     canvas.Config    `yaml:"canvas"`
	OpenAI     openai.Config    `yaml:"openai"`
	Redis      bus.RedisConfig  `yaml:"redis"`
}

func (c Config) Limits() generation.Limits {
	return generation.Limits{
		MaxRetries:               c.Generation.MaxRetries,
		MaxCorrections:           c.Generation.MaxCorrections,
		MaxValidationCorrections: c.Generation.MaxValidationCorrections,
		BaseDelay:                c.Generation.BaseDelay,
		CorrectionSnippetChars:   generation.DefaultLimits().CorrectionSnippetChars,
	}
}

func (c Config) StageTimeouts() quiz.Timeouts {
	return quiz.Timeouts{
		Extraction: c.Timeouts.Extraction,
		Generation: c.Timeouts.Generation,
		Export:     c.Timeouts.Export,
	}
}

func configFromEnv() Config {
	limits := generation.DefaultLimits()
	timeouts := quiz.DefaultTimeouts()
	return Config{
		Env:         envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "quizbridge"),
		Port:        envutil.String("PORT", "8080"),
		MetricsAddr: envutil.String("METRICS_ADDR", ""),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		DB: db.Config{
			Driver:     envutil.String("DB_DRIVER", "postgres"),
			Host:       envutil.String("POSTGRES_HOST", "localhost"),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "quizbridge"),
			SSLMode:    envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath: envutil.String("SQLITE_PATH", "quizbridge.db"),
		},
		Tx: TxConfig{
			Isolation:  envutil.String("TX_ISOLATION", "default"),
			MaxRetries: envutil.Int("TX_MAX_RETRIES", 3),
		},
		Timeouts: TimeoutsConfig{
			Extraction: envutil.Duration("EXTRACTION_TIMEOUT", timeouts.Extraction),
			Generation: envutil.Duration("GENERATION_TIMEOUT", timeouts.Generation),
			Export:     envutil.Duration("EXPORT_TIMEOUT", timeouts.Export),
		},
		Generation: GenerationConfig{
			Concurrency:              envutil.Int("GENERATION_CONCURRENCY", 4),
			MaxRetries:               envutil.Int("GENERATION_MAX_RETRIES", limits.MaxRetries),
			MaxCorrections:           envutil.Int("GENERATION_MAX_CORRECTIONS", limits.MaxCorrections),
			MaxValidationCorrections: envutil.Int("GENERATION_MAX_VALIDATION_CORRECTIONS", limits.MaxValidationCorrections),
			BaseDelay:                time.Duration(envutil.Int("GENERATION_BASE_DELAY_MS", int(limits.BaseDelay/time.Millisecond))) * time.Millisecond,
		},
		Canvas: canvas.ConfigFromEnv(),
		OpenAI: openai.ConfigFromEnv(),
		Redis: bus.RedisConfig{
			Addr:    envutil.String("REDIS_ADDR", ""),
			Channel: envutil.String("REDIS_CHANNEL", "quiz_status"),
		},
	}
}

// LoadConfig reads the environment, overlays the YAML file named by
// QUIZ_CONFIG_FILE when set, then validates the result.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := configFromEnv()
	if path := strings.TrimSpace(os.Getenv("QUIZ_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if log != nil {
			log.Info("config file applied", "path", path)
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
