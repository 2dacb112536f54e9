package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// JWTConfig holds the signing key location and token lifetimes.
// The private key is loaded once at startup; a missing or unreadable
// key is a fatal configuration error.
type JWTConfig struct {
	PrivateKeyPath     string `yaml:"private_key_path"`
	Audience           string `yaml:"audience"`
	Issuer             string `yaml:"issuer"`
	AccessTokenMinutes int    `yaml:"access_token_minutes"`
	RefreshTokenDays   int    `yaml:"refresh_token_days"`
}

type AuthConfig struct {
	// Minimum wall-clock duration of a login attempt, in milliseconds.
	// Failed and successful logins are padded to this floor so response
	// timing does not reveal whether the username exists.
	MinLoginLatencyMS  int `yaml:"min_login_latency_ms"`
	AuditRetentionDays int `yaml:"audit_retention_days"`
}

type EngineConfig struct {
	Provider    string   `yaml:"provider"` // openai, azure, ollama, anthropic, gemini
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	StopTokens  []string `yaml:"stop_tokens"`
}

type SessionConfig struct {
	// ConcurrentTurn controls what happens when a second message arrives
	// for a user whose previous turn is still generating:
	// "serialize" queues it behind the running turn, "reject" refuses it.
	ConcurrentTurn       string `yaml:"concurrent_turn"`
	TurnTimeoutSeconds   int    `yaml:"turn_timeout_seconds"`
	OrphanTTLMinutes     int    `yaml:"orphan_ttl_minutes"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.applyDefaults()
	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "chatrelay.db",
		},
		JWT: JWTConfig{
			PrivateKeyPath:     "signing-key.pem",
			Audience:           "chatrelay-clients",
			Issuer:             "chatrelay",
			AccessTokenMinutes: 15,
			RefreshTokenDays:   14,
		},
		Auth: AuthConfig{
			MinLoginLatencyMS:  200,
			AuditRetentionDays: 30,
		},
		Engine: EngineConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3",
			Temperature: 0.6,
			MaxTokens:   1024,
		},
		Session: SessionConfig{
			ConcurrentTurn:       "serialize",
			TurnTimeoutSeconds:   300,
			OrphanTTLMinutes:     30,
			SweepIntervalMinutes: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills in zero-valued fields that have sane defaults so a
// partial config file still produces a runnable server.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Mode == "" {
		c.Server.Mode = d.Server.Mode
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = d.Database.DSN
	}
	if c.JWT.PrivateKeyPath == "" {
		c.JWT.PrivateKeyPath = d.JWT.PrivateKeyPath
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = d.JWT.Audience
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = d.JWT.Issuer
	}
	if c.JWT.AccessTokenMinutes <= 0 {
		c.JWT.AccessTokenMinutes = d.JWT.AccessTokenMinutes
	}
	if c.JWT.RefreshTokenDays <= 0 {
		c.JWT.RefreshTokenDays = d.JWT.RefreshTokenDays
	}
	if c.Auth.MinLoginLatencyMS <= 0 {
		c.Auth.MinLoginLatencyMS = d.Auth.MinLoginLatencyMS
	}
	if c.Auth.AuditRetentionDays == 0 {
		c.Auth.AuditRetentionDays = d.Auth.AuditRetentionDays
	}
	if c.Engine.Provider == "" {
		c.Engine.Provider = d.Engine.Provider
	}
	if c.Engine.Temperature <= 0 {
		c.Engine.Temperature = d.Engine.Temperature
	}
	if c.Engine.MaxTokens <= 0 {
		c.Engine.MaxTokens = d.Engine.MaxTokens
	}
	if c.Session.ConcurrentTurn == "" {
		c.Session.ConcurrentTurn = d.Session.ConcurrentTurn
	}
	if c.Session.OrphanTTLMinutes <= 0 {
		c.Session.OrphanTTLMinutes = d.Session.OrphanTTLMinutes
	}
	if c.Session.SweepIntervalMinutes <= 0 {
		c.Session.SweepIntervalMinutes = d.Session.SweepIntervalMinutes
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if keyPath := os.Getenv("JWT_PRIVATE_KEY"); keyPath != "" {
		c.JWT.PrivateKeyPath = keyPath
	}
	if aud := os.Getenv("JWT_AUDIENCE"); aud != "" {
		c.JWT.Audience = aud
	}
	if iss := os.Getenv("JWT_ISSUER"); iss != "" {
		c.JWT.Issuer = iss
	}
	if minutes := os.Getenv("JWT_ACCESS_MINUTES"); minutes != "" {
		if v, err := strconv.Atoi(minutes); err == nil && v > 0 {
			c.JWT.AccessTokenMinutes = v
		}
	}
	if days := os.Getenv("JWT_REFRESH_DAYS"); days != "" {
		if v, err := strconv.Atoi(days); err == nil && v > 0 {
			c.JWT.RefreshTokenDays = v
		}
	}
	if provider := os.Getenv("ENGINE_PROVIDER"); provider != "" {
		c.Engine.Provider = provider
	}
	if baseURL := os.Getenv("ENGINE_BASE_URL"); baseURL != "" {
		c.Engine.BaseURL = baseURL
	}
	if apiKey := os.Getenv("ENGINE_API_KEY"); apiKey != "" {
		c.Engine.APIKey = apiKey
	}
	if model := os.Getenv("ENGINE_MODEL"); model != "" {
		c.Engine.Model = model
	}
	if stop := os.Getenv("ENGINE_STOP_TOKENS"); stop != "" {
		parts := strings.Split(stop, ",")
		tokens := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				tokens = append(tokens, p)
			}
		}
		c.Engine.StopTokens = tokens
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}
