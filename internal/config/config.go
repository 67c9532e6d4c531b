// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"divination-ai/internal/domain/model"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty keeps jobs in memory
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables status cache and rate limit
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // job status cache
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type AIConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiModel     string        `yaml:"gemini_model"`
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	LocalBaseURL    string        `yaml:"local_base_url"` // OpenAI-compatible server (ollama, llama.cpp, vLLM)
	LocalModel      string        `yaml:"local_model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`          // per interpretation
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type WorkerConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	FetchInterval time.Duration `yaml:"fetch_interval"`
}

type ClientConfig struct {
	ServerURL       string                  `yaml:"server_url"`
	Token           string                  `yaml:"token"`   // bearer credential; minted from auth.jwt_secret when empty
	UserID          string                  `yaml:"user_id"` // subject of minted tokens
	PollInterval    time.Duration           `yaml:"poll_interval"`
	RefreshInterval time.Duration           `yaml:"refresh_interval"`
	RequestTimeout  time.Duration           `yaml:"request_timeout"`
	MaxQuestionLen  int                     `yaml:"max_question_len"`
	Lang            string                  `yaml:"lang"` // locale of rendered progress: en | zh
	Providers       []model.ProviderProfile `yaml:"providers"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"` // empty disables the progress renderer
	ChatID int64  `yaml:"chat_id"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AI        AIConfig        `yaml:"ai"`
	Auth      AuthConfig      `yaml:"auth"`
	Worker    WorkerConfig    `yaml:"worker"`
	Client    ClientConfig    `yaml:"client"`
	Telegram  TelegramConfig  `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, applies environment overrides and
// defaults. A missing file is not an error in dev mode.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && dev:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DIVINATION_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DIVINATION_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 2 * time.Second
	}
	if cfg.RateLimit.Limit <= 0 {
		cfg.RateLimit.Limit = 10
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}

	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "gemini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.5-flash"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.LocalBaseURL == "" {
		cfg.AI.LocalBaseURL = "http://localhost:11434/v1"
	}
	if cfg.AI.LocalModel == "" {
		cfg.AI.LocalModel = "qwen2.5:7b"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 5 * time.Minute
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "divination-ai"
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = runtime.NumCPU()
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.Workers * 4
	}
	if cfg.Worker.FetchInterval <= 0 {
		cfg.Worker.FetchInterval = 500 * time.Millisecond
	}

	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = "http://localhost:8080"
	}
	cfg.Client.ServerURL = strings.TrimRight(cfg.Client.ServerURL, "/")
	if cfg.Client.UserID == "" {
		cfg.Client.UserID = "local-user"
	}
	if cfg.Client.PollInterval <= 0 {
		cfg.Client.PollInterval = 2 * time.Second
	}
	if cfg.Client.RefreshInterval <= 0 {
		cfg.Client.RefreshInterval = time.Second
	}
	if cfg.Client.RequestTimeout <= 0 {
		cfg.Client.RequestTimeout = 15 * time.Second
	}
	if cfg.Client.Lang == "" {
		cfg.Client.Lang = "en"
	}
	if cfg.Client.MaxQuestionLen <= 0 {
		cfg.Client.MaxQuestionLen = 500
	}
	if len(cfg.Client.Providers) == 0 {
		cfg.Client.Providers = []model.ProviderProfile{
			{Name: "gemini", Kind: model.ProviderCloud},
			{Name: "openai", Kind: model.ProviderCloud},
			{Name: "local", Kind: model.ProviderLocal},
		}
	}
	for i := range cfg.Client.Providers {
		cfg.Client.Providers[i] = cfg.Client.Providers[i].WithDefaults()
	}
}

// ValidateServer is the minimal check for cmd/app.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

// ValidateClient is the minimal check for cmd/divine.
func (c *Config) ValidateClient() error {
	if c.Client.Token == "" && c.Auth.JWTSecret == "" {
		return errors.New("client.token or auth.jwt_secret is required")
	}
	for _, p := range c.Client.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("client.providers: %w", err)
		}
	}
	return nil
}

// Provider returns the profile configured under name.
func (c ClientConfig) Provider(name string) (model.ProviderProfile, bool) {
	for _, p := range c.Providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.ProviderProfile{}, false
}
