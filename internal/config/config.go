package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Dispatch    DispatchConfig    `yaml:"dispatch" mapstructure:"dispatch"`
	Scrapingdog ScrapingdogConfig `yaml:"scrapingdog" mapstructure:"scrapingdog"`
	Hunter      HunterConfig      `yaml:"hunter" mapstructure:"hunter"`
	Tomba       TombaConfig       `yaml:"tomba" mapstructure:"tomba"`
	SendGrid    SendGridConfig    `yaml:"sendgrid" mapstructure:"sendgrid"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DispatchConfig configures workflow event delivery.
type DispatchConfig struct {
	Mode        string `yaml:"mode" mapstructure:"mode"` // "inproc" or "temporal"
	Workers     int    `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`

	TemporalHostPort  string `yaml:"temporal_host_port" mapstructure:"temporal_host_port"`
	TemporalNamespace string `yaml:"temporal_namespace" mapstructure:"temporal_namespace"`
	TaskQueue         string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ScrapingdogConfig holds Scrapingdog API settings (maps discovery + page scrape).
type ScrapingdogConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// HunterConfig holds Hunter.io domain-search settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// TombaConfig holds Tomba domain-search settings.
type TombaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SendGridConfig holds SendGrid suppression-sync settings (read-only).
type SendGridConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	PrescreenModel string `yaml:"prescreen_model" mapstructure:"prescreen_model"`
	GradeModel     string `yaml:"grade_model" mapstructure:"grade_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures controller behavior.
type PipelineConfig struct {
	ResumeBatchSize      int `yaml:"resume_batch_size" mapstructure:"resume_batch_size"`
	PrescreenConcurrency int `yaml:"prescreen_concurrency" mapstructure:"prescreen_concurrency"`
	StaleAfterMinutes    int `yaml:"stale_after_minutes" mapstructure:"stale_after_minutes"`
}

// ServerConfig configures the control API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("dispatch.mode", "inproc")
	v.SetDefault("dispatch.workers", 8)
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.temporal_host_port", "localhost:7233")
	v.SetDefault("dispatch.temporal_namespace", "default")
	v.SetDefault("dispatch.task_queue", "leadgen-events")
	v.SetDefault("scrapingdog.base_url", "https://api.scrapingdog.com")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("tomba.base_url", "https://api.tomba.io/v1")
	v.SetDefault("sendgrid.base_url", "https://api.sendgrid.com/v3")
	v.SetDefault("anthropic.prescreen_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.grade_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("pipeline.resume_batch_size", 100)
	v.SetDefault("pipeline.prescreen_concurrency", 5)
	v.SetDefault("pipeline.stale_after_minutes", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
