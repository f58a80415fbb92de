// Package config loads vaultsync configuration.
//
// Configuration is read from ~/.config/vaultsync/config.yaml (or the
// directory given by VAULTSYNC_CONFIG_DIR), with every key overridable
// through VAULTSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all user-tunable settings.
type Config struct {
	// VaultPath is the local note vault (a git working tree).
	VaultPath string `mapstructure:"vault_path"`

	// EditorCommand launches the note editor. The vault path is
	// appended as the final argument.
	EditorCommand string `mapstructure:"editor_command"`

	// Remote and Branch identify where the vault syncs to.
	Remote string `mapstructure:"remote"`
	Branch string `mapstructure:"branch"`

	// CommitMessage is used for the post-editing auto commit.
	CommitMessage string `mapstructure:"commit_message"`

	// InitialCommitMessage is used when bootstrapping an empty repo.
	InitialCommitMessage string `mapstructure:"initial_commit_message"`

	// NetTimeout bounds each remote operation and the connectivity
	// probe. Retries beyond one attempt are the offline queue's job.
	NetTimeout time.Duration `mapstructure:"net_timeout"`

	// Queue configures offline push retry policy.
	Queue QueueConfig `mapstructure:"queue"`

	// Monitor configures the optional live event feed.
	Monitor MonitorConfig `mapstructure:"monitor"`

	// LogFile is the rotating log destination. Empty disables file
	// logging.
	LogFile string `mapstructure:"log_file"`
}

// QueueConfig holds offline queue retry policy settings.
type QueueConfig struct {
	// Backoff selects the flush retry policy: "fixed" or "exponential".
	Backoff string `mapstructure:"backoff"`

	// BaseInterval is the fixed interval, or the starting interval for
	// exponential backoff.
	BaseInterval time.Duration `mapstructure:"base_interval"`

	// MaxInterval caps exponential backoff growth.
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// MonitorConfig holds the websocket event feed settings.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Dir returns the configuration directory, honoring
// VAULTSYNC_CONFIG_DIR for tests and portable installs.
func Dir() (string, error) {
	if d := os.Getenv("VAULTSYNC_CONFIG_DIR"); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "vaultsync"), nil
}

// StateDir returns the directory for persisted state (offline queue,
// session history, lock files). Kept outside the repository so records
// survive vault resets.
func StateDir() (string, error) {
	if d := os.Getenv("VAULTSYNC_STATE_DIR"); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate state dir: %w", err)
	}
	return filepath.Join(base, "vaultsync", "state"), nil
}

// Load reads configuration from disk and environment.
// A missing config file is not an error; defaults and environment
// variables still apply.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("VAULTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote", "origin")
	v.SetDefault("branch", "main")
	v.SetDefault("commit_message", "Auto sync commit")
	v.SetDefault("initial_commit_message", "Initial commit (auto-sync)")
	v.SetDefault("net_timeout", 30*time.Second)
	v.SetDefault("queue.backoff", "fixed")
	v.SetDefault("queue.base_interval", time.Minute)
	v.SetDefault("queue.max_interval", 30*time.Minute)
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8080)
}

// Validate checks settings needed before a sync cycle can start.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return errors.New("vault_path is not configured")
	}
	if c.EditorCommand == "" {
		return errors.New("editor_command is not configured")
	}
	if info, err := os.Stat(c.VaultPath); err != nil || !info.IsDir() {
		return fmt.Errorf("vault_path %q is not a directory", c.VaultPath)
	}
	switch c.Queue.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("queue.backoff must be fixed or exponential, got %q", c.Queue.Backoff)
	}
	return nil
}
