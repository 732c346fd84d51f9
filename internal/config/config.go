package config

import (
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the scanhub server.
type Config struct {
	Port       int    `mapstructure:"PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`

	GithubToken        string `mapstructure:"GITHUB_TOKEN"`
	GithubActionsOwner string `mapstructure:"GITHUB_ACTIONS_OWNER"`
	GithubActionsRepo  string `mapstructure:"GITHUB_ACTIONS_REPO"`
	WorkflowFile       string `mapstructure:"WORKFLOW_FILE"`
	WorkflowRef        string `mapstructure:"WORKFLOW_REF"`
	CallbackBaseURL    string `mapstructure:"CALLBACK_BASE_URL"`

	DiscordToken     string `mapstructure:"DISCORD_TOKEN"`
	DiscordChannelID string `mapstructure:"DISCORD_CHANNEL_ID"`
}

// LoadConfig reads configuration from a .env file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "scanhub")
	v.SetDefault("DB_PASSWORD", "scanhub")
	v.SetDefault("DB_NAME", "scanhub")
	v.SetDefault("WORKFLOW_FILE", "security-scan.yml")
	v.SetDefault("WORKFLOW_REF", "main")

	// Keys without a default must still be registered or Unmarshal will not
	// pick them up from the environment.
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_ACTIONS_OWNER", "")
	v.SetDefault("GITHUB_ACTIONS_REPO", "")
	v.SetDefault("CALLBACK_BASE_URL", "")
	v.SetDefault("DISCORD_TOKEN", "")
	v.SetDefault("DISCORD_CHANNEL_ID", "")

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.GithubActionsOwner == "" || cfg.GithubActionsRepo == "" {
		return nil, errors.New("GITHUB_ACTIONS_OWNER and GITHUB_ACTIONS_REPO are required configuration fields")
	}
	if cfg.CallbackBaseURL == "" {
		return nil, errors.New("CALLBACK_BASE_URL is a required configuration field")
	}
	cfg.CallbackBaseURL = strings.TrimRight(cfg.CallbackBaseURL, "/")

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.New("LOG_LEVEL must be a valid logrus level (debug, info, warn, error)")
	}

	// LOG_LEVEL is hot-reloadable when a .env file is in use.
	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			level, err := logrus.ParseLevel(v.GetString("LOG_LEVEL"))
			if err != nil {
				logrus.Warnf("Ignoring invalid LOG_LEVEL after config change: %v", err)
				return
			}
			logrus.SetLevel(level)
			logrus.Infof("Log level set to %s after change to %s", level, e.Name)
		})
		v.WatchConfig()
	}

	return &cfg, nil
}

// ParsedLogLevel returns the configured level; LoadConfig already validated it.
func (c *Config) ParsedLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
