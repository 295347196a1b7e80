// Package config handles MindViza configuration loading.
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
// Then: ./config.yaml, ~/.config/mindviza/config.yaml, /etc/mindviza/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mindviza", "config.yaml"))
	}

	paths = append(paths, "/etc/mindviza/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
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

// Config holds all MindViza configuration.
type Config struct {
	ProjectName string       `yaml:"project_name"`
	Listen      ListenConfig `yaml:"listen"`
	Groq        GroqConfig   `yaml:"groq"`
	Auth        AuthConfig   `yaml:"auth"`
	Quota       QuotaConfig  `yaml:"quota"`
	Memory      MemoryConfig `yaml:"memory"`
	Defaults    RestDefaults `yaml:"defaults"`
	DataDir     string       `yaml:"data_dir"`
	LogLevel    string       `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GroqConfig defines the completion backend settings.
type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // defaults to the hosted Groq endpoint
	Model   string `yaml:"model"`
	// TimeoutSec bounds each completion call. Zero means the default
	// of 60 seconds; the backend is never called without a deadline.
	TimeoutSec int `yaml:"timeout_sec"`
}

// Timeout returns the completion call deadline as a duration.
func (g GroqConfig) Timeout() time.Duration {
	if g.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(g.TimeoutSec) * time.Second
}

// AuthConfig defines credential verification settings.
type AuthConfig struct {
	// SecretKey is the HMAC signing key for bearer tokens.
	SecretKey string `yaml:"secret_key"`
	// Algorithm is the only accepted signing algorithm (default HS256).
	Algorithm string `yaml:"algorithm"`
}

// QuotaConfig defines the daily guest turn ceiling.
type QuotaConfig struct {
	// GuestDailyLimit is the number of turns a guest identity may
	// consume per calendar day. Zero means the default of 10.
	GuestDailyLimit int `yaml:"guest_daily_limit"`
}

// Limit returns the effective guest ceiling.
func (q QuotaConfig) Limit() int {
	if q.GuestDailyLimit <= 0 {
		return 10
	}
	return q.GuestDailyLimit
}

// MemoryConfig defines long-term memory retrieval settings.
type MemoryConfig struct {
	// SearchLimit is the number of ranked snippets injected per turn.
	// Zero means the default of 3.
	SearchLimit int `yaml:"search_limit"`
	// SummarizeAfter is the history length (messages) beyond which the
	// session history is compacted. Zero disables compaction.
	SummarizeAfter int `yaml:"summarize_after"`
}

// Limit returns the effective search snippet bound.
func (m MemoryConfig) Limit() int {
	if m.SearchLimit <= 0 {
		return 3
	}
	return m.SearchLimit
}

// RestDefaults is the fixed identity and thread used by the REST /chat
// endpoint, which carries no per-user credential.
type RestDefaults struct {
	Identity string `yaml:"identity"`
	ThreadID string `yaml:"thread_id"`
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

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		ProjectName: "MindViza",
		Listen:      ListenConfig{Port: 8080},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "meta-llama/llama-4-scout-17b-16e-instruct",
		},
		Auth:     AuthConfig{Algorithm: "HS256"},
		Defaults: RestDefaults{Identity: "80", ThreadID: "90"},
		DataDir:  ".",
	}
}

// DatabasePath returns the SQLite database location under DataDir.
func (c *Config) DatabasePath() string {
	dir := c.DataDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "mindviza.db")
}
