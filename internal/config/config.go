package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one contextual reply provider.
type ProviderConfig struct {
	Type              string        `yaml:"type"` // gemini, groq or openrouter
	APIKey            string        `yaml:"api_key"`
	ModelName         string        `yaml:"model_name"`
	BaseURL           string        `yaml:"base_url"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Database struct {
		Type string `yaml:"type"` // postgres or sqlite
		URL  string `yaml:"url"`
	} `yaml:"database"`
	Instagram struct {
		GraphAPIURL string `yaml:"graph_api_url"`
		AppSecret   string `yaml:"app_secret"`
		VerifyToken string `yaml:"verify_token"`
	} `yaml:"instagram"`
	Dispatch struct {
		MinInterval    time.Duration `yaml:"min_interval"`
		MaxAttempts    int           `yaml:"max_attempts"`
		InitialBackoff time.Duration `yaml:"initial_backoff"`
		MaxBackoff     time.Duration `yaml:"max_backoff"`
		CallTimeout    time.Duration `yaml:"call_timeout"`
	} `yaml:"dispatch"`
	Processing struct {
		Workers          int           `yaml:"workers"`
		EventTimeout     time.Duration `yaml:"event_timeout"`
		MaxEventAttempts int           `yaml:"max_event_attempts"`
		ClaimTTL         time.Duration `yaml:"claim_ttl"`
		HistoryLimit     int           `yaml:"history_limit"`
		FallbackReply    string        `yaml:"fallback_reply"`
	} `yaml:"processing"`
	LLM struct {
		Providers               []ProviderConfig `yaml:"providers"`
		MaxFailuresBeforeSwitch int              `yaml:"max_failures_before_switch"`
	} `yaml:"llm"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Crypto struct {
		MasterKey string `yaml:"master_key"`
	} `yaml:"crypto"`
	Alerts struct {
		Enabled          bool   `yaml:"enabled"`
		TelegramBotToken string `yaml:"telegram_bot_token"`
		ChatID           int64  `yaml:"chat_id"`
		APIEndpoint      string `yaml:"api_endpoint"` // optional Bot API endpoint override
	} `yaml:"alerts"`
	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
}

// LoadConfig reads configuration from the specified YAML file.
// ${VAR} references are expanded from the environment before decoding.
func LoadConfig(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	return Parse(raw)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(raw []byte) (*Config, error) {
	config := &Config{}

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Instagram.GraphAPIURL == "" {
		c.Instagram.GraphAPIURL = "https://graph.facebook.com/v21.0"
	}
	if c.Dispatch.MinInterval == 0 {
		c.Dispatch.MinInterval = 5 * time.Second
	}
	if c.Dispatch.MaxAttempts == 0 {
		c.Dispatch.MaxAttempts = 3
	}
	if c.Dispatch.InitialBackoff == 0 {
		c.Dispatch.InitialBackoff = 2 * time.Second
	}
	if c.Dispatch.MaxBackoff == 0 {
		c.Dispatch.MaxBackoff = 30 * time.Second
	}
	if c.Dispatch.CallTimeout == 0 {
		c.Dispatch.CallTimeout = 15 * time.Second
	}
	if c.Processing.Workers == 0 {
		c.Processing.Workers = 16
	}
	if c.Processing.EventTimeout == 0 {
		c.Processing.EventTimeout = 5 * time.Minute
	}
	if c.Processing.MaxEventAttempts == 0 {
		c.Processing.MaxEventAttempts = 5
	}
	if c.Processing.ClaimTTL == 0 {
		c.Processing.ClaimTTL = 10 * time.Minute
	}
	if c.Processing.HistoryLimit == 0 {
		c.Processing.HistoryLimit = 20
	}
	if c.Processing.FallbackReply == "" {
		c.Processing.FallbackReply = "Thanks for reaching out! We'll get back to you shortly."
	}
	if c.LLM.MaxFailuresBeforeSwitch == 0 {
		c.LLM.MaxFailuresBeforeSwitch = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.type must be postgres or sqlite, got %q", c.Database.Type)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Crypto.MasterKey == "" {
		return errors.New("crypto.master_key is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Dispatch.MaxAttempts < 1 {
		return errors.New("dispatch.max_attempts must be >= 1")
	}
	if c.Processing.Workers < 1 {
		return errors.New("processing.workers must be >= 1")
	}
	if c.Alerts.Enabled && (c.Alerts.TelegramBotToken == "" || c.Alerts.ChatID == 0) {
		return errors.New("alerts.telegram_bot_token and alerts.chat_id are required when alerts are enabled")
	}
	for i, p := range c.LLM.Providers {
		switch p.Type {
		case "gemini", "groq", "openrouter":
		default:
			return fmt.Errorf("llm.providers[%d].type %q is not supported", i, p.Type)
		}
	}
	return nil
}
