// ABOUTME: Configuration loading for the hol-registry CLI
// ABOUTME: Merges TOML config file, environment overrides, and derived broker/p2p settings

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultBaseURL is the production Registry Broker API endpoint.
const DefaultBaseURL = "https://hol.org/registry/api/v1"

// Config represents the complete CLI configuration.
type Config struct {
	Broker  BrokerConfig  `toml:"broker"`
	P2P     P2PConfig     `toml:"p2p"`
	Logging LoggingConfig `toml:"logging"`

	// keyDir is resolved at load time and not part of the file format.
	keyDir string
}

// BrokerConfig holds Registry Broker connection settings.
type BrokerConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// P2PConfig holds peer-to-peer transport settings.
type P2PConfig struct {
	Homeserver string `toml:"homeserver"`
	Env        string `toml:"env"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the config file (if present), expands ${VAR} environment
// references, and applies environment variable overrides. A missing config
// file is not an error; environment and defaults still apply.
func Load() (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(keyDir(), "config.toml")
	if data, err := os.ReadFile(path); err == nil {
		expanded := expandEnvVars(string(data))
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.keyDir = keyDir()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv applies environment variable overrides on top of file values.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("REGISTRY_BROKER_API_URL")); v != "" {
		c.Broker.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REGISTRY_BROKER_API_KEY")); v != "" {
		c.Broker.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("HOL_P2P_HOMESERVER")); v != "" {
		c.P2P.Homeserver = v
	}
	if v := strings.TrimSpace(os.Getenv("HOL_P2P_ENV")); v != "" {
		c.P2P.Env = v
	}
}

func (c *Config) applyDefaults() {
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = DefaultBaseURL
	}
	c.Broker.BaseURL = strings.TrimSuffix(c.Broker.BaseURL, "/")
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// keyDir returns the user-local state directory.
// Priority: HOL_REGISTRY_DIR env var > ~/.hol-registry
func keyDir() string {
	if dir := os.Getenv("HOL_REGISTRY_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hol-registry"
	}
	return filepath.Join(home, ".hol-registry")
}

// KeyDir returns the directory holding identity, session, and p2p state.
func (c *Config) KeyDir() string { return c.keyDir }

// IdentityFile returns the path of the persisted identity record.
func (c *Config) IdentityFile() string { return filepath.Join(c.keyDir, "identity.json") }

// SessionsDB returns the path of the local session cache database.
func (c *Config) SessionsDB() string { return filepath.Join(c.keyDir, "sessions.db") }

// P2PStateDir returns the directory for per-identity p2p transport state.
func (c *Config) P2PStateDir() string { return filepath.Join(c.keyDir, "p2p") }

// IsStaging reports whether the configured broker is a staging or local
// deployment. Staging brokers get agent seeding before roundtrips.
func (c *Config) IsStaging() bool {
	base := strings.ToLower(c.Broker.BaseURL)
	return strings.Contains(base, "registry-staging.hol.org") ||
		strings.Contains(base, "localhost") ||
		strings.Contains(base, "127.0.0.1")
}

// LedgerNetwork returns the ledger network used for authentication.
// HOL_LEDGER_NETWORK overrides; otherwise inferred from the base URL.
func (c *Config) LedgerNetwork() string {
	if v := strings.TrimSpace(os.Getenv("HOL_LEDGER_NETWORK")); v != "" {
		return v
	}
	if c.IsStaging() {
		return "base-sepolia"
	}
	return "base"
}

// P2PEnv returns the peer-to-peer transport environment: dev, local, or production.
func (c *Config) P2PEnv() string {
	env := strings.ToLower(strings.TrimSpace(c.P2P.Env))
	if env == "dev" || env == "local" || env == "production" {
		return env
	}
	if c.IsStaging() {
		return "dev"
	}
	return "production"
}

// WebBaseURL returns the web origin for shareable session links,
// derived by stripping the API suffix from the broker base URL.
func (c *Config) WebBaseURL() string {
	if strings.HasSuffix(c.Broker.BaseURL, "/api/v1") {
		return strings.TrimSuffix(c.Broker.BaseURL, "/api/v1")
	}
	return c.Broker.BaseURL
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
