package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon config file (~/.chat-center/config.toml).
type Config struct {
	// APIBaseURL is the back-office REST API root, e.g. "https://ops.example.com/api".
	APIBaseURL string `toml:"api_base_url"`
	// LiveURL is the live-event channel endpoint. Empty derives it from
	// APIBaseURL by swapping the scheme and appending /ws.
	LiveURL string `toml:"live_url"`
	// Token authenticates both the REST and the live channel.
	Token string `toml:"token"`
	// Operator is the display name sent with typing intents.
	Operator string `toml:"operator"`
	// StateDir holds the durable slot db, logs and the instance lock.
	StateDir string `toml:"state_dir"`
	// ControlAddr is the local control API listen address used by the
	// console UI and chatctl.
	ControlAddr string `toml:"control_addr"`
	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string `toml:"metrics_addr"`
	// SoundCommand is the external player invoked for the notification
	// cue, e.g. "paplay". Empty means only the synthesized tone is used.
	SoundCommand string `toml:"sound_command"`
	// SoundFile is the primary audio asset passed to SoundCommand.
	SoundFile string `toml:"sound_file"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chat-center", "config.toml")
}

// Load reads config from the given path and fills in defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		home, _ := os.UserHomeDir()
		c.StateDir = filepath.Join(home, ".chat-center", "state")
	}
	if c.Operator == "" {
		c.Operator = "operator"
	}
	if c.ControlAddr == "" {
		c.ControlAddr = "127.0.0.1:8790"
	}
}

// LiveEndpoint returns the live-event channel URL, deriving it from
// the API base when live_url is not set explicitly.
func (c *Config) LiveEndpoint() string {
	if c.LiveURL != "" {
		return c.LiveURL
	}
	u := c.APIBaseURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimSuffix(u, "/") + "/ws"
}

// DBPath returns the durable slot database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.StateDir, "console.db")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir, "logs", "chatsyncd.log")
}

// EnsureStateDir creates the state directory tree with 0700 perms.
func (c *Config) EnsureStateDir() error {
	for _, d := range []string{c.StateDir, filepath.Dir(c.LogPath())} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
