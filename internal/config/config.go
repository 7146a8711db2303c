package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	GinMode          string        `mapstructure:"GIN_MODE"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	ModelEndpoint    string        `mapstructure:"MODEL_ENDPOINT"`
	ModelName        string        `mapstructure:"MODEL_NAME"`
	ModelAPIKey      string        `mapstructure:"MODEL_API_KEY"`
	GeneratorTimeout time.Duration `mapstructure:"GENERATOR_TIMEOUT"`
	QuestionCount    int           `mapstructure:"QUESTION_COUNT"`
	SessionStore     string        `mapstructure:"SESSION_STORE"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	EnableDB         bool          `mapstructure:"ENABLE_DB"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	StaticRoot       string        `mapstructure:"STATIC_ROOT"`
}

var keys = []string{
	"PORT", "ENV", "GIN_MODE", "LOG_LEVEL",
	"MODEL_ENDPOINT", "MODEL_NAME", "MODEL_API_KEY", "GENERATOR_TIMEOUT", "QUESTION_COUNT",
	"SESSION_STORE", "REDIS_URL", "SESSION_TTL",
	"ENABLE_DB", "DATABASE_URL", "CORS_ORIGINS", "STATIC_ROOT",
}

// New returns a viper instance with defaults and env bindings. Callers may
// bind command flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "7860")
	v.SetDefault("ENV", "development")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MODEL_ENDPOINT", "")
	v.SetDefault("MODEL_NAME", "medgemma-4b-it")
	v.SetDefault("GENERATOR_TIMEOUT", "60s")
	v.SetDefault("QUESTION_COUNT", 10)
	v.SetDefault("SESSION_STORE", StoreMemory)
	v.SetDefault("SESSION_TTL", "2h")
	v.SetDefault("ENABLE_DB", false)
	v.SetDefault("CORS_ORIGINS", "*")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads .env (if present) into the environment and decodes v.
func Load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.SessionStore)
	}
	if c.QuestionCount < 1 {
		return fmt.Errorf("QUESTION_COUNT must be at least 1, got %d", c.QuestionCount)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
