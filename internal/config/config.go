// Package config handles quillagent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./quillagent.yaml, ~/.config/quillagent/config.yaml,
// /etc/quillagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"quillagent.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "quillagent", "config.yaml"))
	}

	paths = append(paths, "/etc/quillagent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all quillagent configuration.
type Config struct {
	API       APIConfig      `yaml:"api"`
	Model     ModelConfig    `yaml:"model"`
	Admin     AdminConfig    `yaml:"admin"`
	Activity  ActivityConfig `yaml:"activity"`
	DataDir   string         `yaml:"data_dir"`
	ActionLog string         `yaml:"action_log"`
	LogLevel  string         `yaml:"log_level"`
}

// APIConfig defines the blog backend connection.
type APIConfig struct {
	// BaseURL is the blog REST API root, e.g. "http://localhost:8000/api".
	BaseURL string `yaml:"base_url"`
	// TimeoutSec is the per-request timeout in seconds (default 15).
	TimeoutSec int `yaml:"timeout_sec"`
}

// ModelConfig defines the generative model settings.
type ModelConfig struct {
	APIKey      string  `yaml:"api_key"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	// MaxToolCycles bounds tool-call rounds within one trigger (default 6).
	MaxToolCycles int `yaml:"max_tool_cycles"`
	// RetryAttempts bounds retries of a failed model call (default 3).
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelaySec is the fixed delay between model call retries (default 5).
	RetryDelaySec int `yaml:"retry_delay_sec"`
}

// AdminConfig identifies the administrator account seeded into the
// local address book at startup. The backend is expected to already
// know this account.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// ActivityConfig defines the scheduler's timing envelope, in seconds
// except for the burst bounds.
type ActivityConfig struct {
	MinActiveSec int `yaml:"min_active_sec"`
	MaxActiveSec int `yaml:"max_active_sec"`
	MinIdleSec   int `yaml:"min_idle_sec"`
	MaxIdleSec   int `yaml:"max_idle_sec"`
	// MinBurst and MaxBurst bound the number of triggers per active period.
	MinBurst int `yaml:"min_burst"`
	MaxBurst int `yaml:"max_burst"`
	// MeanDelaySec is the mean of the exponential inter-trigger delay.
	MeanDelaySec int `yaml:"mean_delay_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with timing and retry defaults filled
// in. API base URL and model credentials have no defaults and must be
// supplied.
func Default() *Config {
	return &Config{
		API: APIConfig{TimeoutSec: 15},
		Model: ModelConfig{
			Name:          "gemini-2.0-flash",
			Temperature:   1.0,
			MaxToolCycles: 6,
			RetryAttempts: 3,
			RetryDelaySec: 5,
		},
		Admin: AdminConfig{
			Username: "admin",
			Email:    "admin@example.com",
		},
		Activity: ActivityConfig{
			MinActiveSec: 300,
			MaxActiveSec: 600,
			MinIdleSec:   1800,
			MaxIdleSec:   10800,
			MinBurst:     9,
			MaxBurst:     15,
			MeanDelaySec: 5,
		},
		DataDir:   ".",
		ActionLog: "quillagent.log",
	}
}

// Validate checks for settings without which the agent cannot start.
// Called once at startup; a failure here aborts the process.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is required")
	}
	if c.Admin.Password == "" {
		return fmt.Errorf("admin.password is required")
	}
	if c.Activity.MinBurst < 1 || c.Activity.MaxBurst < c.Activity.MinBurst {
		return fmt.Errorf("activity burst bounds invalid: min %d, max %d",
			c.Activity.MinBurst, c.Activity.MaxBurst)
	}
	return nil
}

// APITimeout returns the request timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// RetryDelay returns the model retry delay as a duration.
func (c *ModelConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}
