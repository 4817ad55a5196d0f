// Package config provides configuration management for AgentSocial.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for AgentSocial.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Apps     []AppConfig    `mapstructure:"apps"`
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AgentConfig holds agent CLI invocation configuration.
type AgentConfig struct {
	// Type selects the agent profile from the registry (default: gemini).
	Type string `mapstructure:"type"`

	// Executable overrides the profile's executable name when set.
	Executable string `mapstructure:"executable"`

	// CredentialDir is the global directory holding the agent CLI's
	// authentication artifacts (default: the profile's own, e.g. ~/.gemini).
	CredentialDir string `mapstructure:"credentialDir"`

	// MaxRunDuration bounds a single agent invocation, in seconds.
	// Zero disables the bound.
	MaxRunDuration int `mapstructure:"maxRunDuration"`
}

// SessionsConfig holds workspace isolation configuration.
type SessionsConfig struct {
	// Root is the base directory under which per-conversation workspaces are
	// created (default: ~/.agentsocial/sessions).
	Root string `mapstructure:"root"`
}

// StoreConfig holds command history persistence configuration.
// An empty path selects the in-memory store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// AppConfig holds one chat-platform application identity.
type AppConfig struct {
	Platform    string `mapstructure:"platform"`
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	ProjectPath string `mapstructure:"project_path"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// MaxRunDurationTime returns the run bound as a time.Duration.
func (a *AgentConfig) MaxRunDurationTime() time.Duration {
	return time.Duration(a.MaxRunDuration) * time.Second
}

// detectDefaultLogFormat returns "json" in production environments and "text"
// for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTSOCIAL_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentsocial")
	v.SetDefault("nats.maxReconnects", 10)

	// Agent defaults
	v.SetDefault("agent.type", "gemini")
	v.SetDefault("agent.executable", "")
	v.SetDefault("agent.credentialDir", "")
	v.SetDefault("agent.maxRunDuration", 1800) // 30 minutes

	// Sessions defaults
	v.SetDefault("sessions.root", defaultSessionsRoot())

	// Store defaults - empty path means in-memory history
	v.SetDefault("store.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

func defaultSessionsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agentsocial", "sessions")
	}
	return filepath.Join(home, ".agentsocial", "sessions")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTSOCIAL_ with snake_case naming.
// The config file is named config.yaml and looked up in the current directory
// and ~/.agentsocial/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTSOCIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".agentsocial"))
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Agent.Type == "" {
		errs = append(errs, "agent.type is required")
	}
	if cfg.Agent.MaxRunDuration < 0 {
		errs = append(errs, "agent.maxRunDuration must not be negative")
	}

	if cfg.Sessions.Root == "" {
		errs = append(errs, "sessions.root is required")
	}

	for i, app := range cfg.Apps {
		if app.AppID == "" {
			errs = append(errs, fmt.Sprintf("apps[%d].app_id is required", i))
		}
		if app.AppSecret == "" {
			errs = append(errs, fmt.Sprintf("apps[%d].app_secret is required", i))
		}
		if app.Platform != "" && app.Platform != "feishu" {
			errs = append(errs, fmt.Sprintf("apps[%d].platform %q is not supported", i, app.Platform))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
