package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StorageInMemory = "memory"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type OpenAI struct {
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel    string `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-3.5-turbo"`
	OpenAIBaseURL  string `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	MaxInputTokens int    `yaml:"max_input_tokens" env-default:"2048"`
}

// Decoding parameters are fixed for every completion request.
type Decoding struct {
	MaxTokens        int     `yaml:"max_tokens" env-default:"150"`
	Temperature      float32 `yaml:"temperature" env-default:"0.7"`
	PresencePenalty  float32 `yaml:"presence_penalty" env-default:"0.6"`
	FrequencyPenalty float32 `yaml:"frequency_penalty" env-default:"0.3"`
}

type Gemini struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	Model        string `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-1.5-flash-latest"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type SQLite struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"data/wellness.db"`
}

type Storage struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"redis"`
}

type Quota struct {
	DailyLimit int `yaml:"daily_limit" env:"QUOTA_DAILY_LIMIT" env-default:"20"`
}

type Gate struct {
	ShortMessageThreshold int      `yaml:"short_message_threshold" env-default:"50"`
	Keywords              []string `yaml:"keywords" env:"GATE_KEYWORDS" env-separator:","`
}

type Session struct {
	Provider         string        `yaml:"provider" env:"MODEL_PROVIDER" env-default:"openai"`
	Timezone         string        `yaml:"timezone" env:"SESSION_TIMEZONE" env-default:"UTC"`
	DayCheckInterval time.Duration `yaml:"day_check_interval" env-default:"60s"`
	MaxMessageRunes  int           `yaml:"max_message_runes" env-default:"1000"`
	ModelTimeout     time.Duration `yaml:"model_timeout" env-default:"30s"`
	PersistQueueSize int           `yaml:"persist_queue_size" env-default:"64"`
}

type Telegram struct {
	TelegramAPIToken  string `env:"TELEGRAM_APITOKEN"`
	MaxParallelUpdate int    `yaml:"max_parallel_updates" env-default:"16"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Config struct {
	OpenAI   OpenAI   `yaml:"openai"`
	Decoding Decoding `yaml:"decoding"`
	Gemini   Gemini   `yaml:"gemini"`
	Redis    Redis    `yaml:"redis"`
	SQLite   SQLite   `yaml:"sqlite"`
	Storage  Storage  `yaml:"storage"`
	Quota    Quota    `yaml:"quota"`
	Gate     Gate     `yaml:"gate"`
	Session  Session  `yaml:"session"`
	Telegram Telegram `yaml:"telegram"`
	HTTP     HTTP     `yaml:"http"`
	Auth     Auth     `yaml:"auth"`
	Language string   `yaml:"language" env:"LANGUAGE" env-default:"en"`
}

// LoadConfig reads cfgPath (when it is not empty) and then the environment.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageRedis, StorageSQLite, StorageInMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Session.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown model provider %q", c.Session.Provider)
	}
	if c.Quota.DailyLimit <= 0 {
		return errors.New("quota.daily_limit must be positive")
	}
	if c.Session.DayCheckInterval <= 0 {
		return errors.New("session.day_check_interval must be positive")
	}
	return nil
}
