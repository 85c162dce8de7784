package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node configuration. Values come from an optional YAML file
// with MEDVAULT_* environment variables taking precedence.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	DataDir    string `yaml:"dataDir"`
	AuditLog   string `yaml:"auditLog"`

	// Ledger selects where capability events live: "local" keeps an
	// embedded event log, "chain" submits to an external ledger node.
	Ledger LedgerConfig `yaml:"ledger"`

	// Blob selects where ciphertext lives: "local" embeds a
	// content-addressed store, "gateway" talks to a network store.
	Blob BlobConfig `yaml:"blob"`

	JWTSecret string `yaml:"jwtSecret"`

	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	StalenessWindow time.Duration `yaml:"stalenessWindow"`
	RetryAttempts   int           `yaml:"retryAttempts"`
	RetryBackoff    time.Duration `yaml:"retryBackoff"`

	OutboxMaxAttempts int           `yaml:"outboxMaxAttempts"`
	OutboxDrainEvery  time.Duration `yaml:"outboxDrainEvery"`
}

type LedgerConfig struct {
	Mode     string `yaml:"mode"` // "local" or "chain"
	Endpoint string `yaml:"endpoint"`
}

type BlobConfig struct {
	Mode       string `yaml:"mode"` // "local" or "gateway"
	GatewayURL string `yaml:"gatewayURL"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		DataDir:           "data",
		AuditLog:          "audit.log",
		Ledger:            LedgerConfig{Mode: "local"},
		Blob:              BlobConfig{Mode: "local"},
		RequestTimeout:    15 * time.Second,
		StalenessWindow:   5 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      250 * time.Millisecond,
		OutboxMaxAttempts: 8,
		OutboxDrainEvery:  5 * time.Second,
	}
}

// Load reads path (if non-empty and present) and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("could not read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "MEDVAULT_LISTEN_ADDR")
	setString(&c.DataDir, "MEDVAULT_DATA_DIR")
	setString(&c.AuditLog, "MEDVAULT_AUDIT_LOG")
	setString(&c.Ledger.Mode, "MEDVAULT_LEDGER_MODE")
	setString(&c.Ledger.Endpoint, "MEDVAULT_LEDGER_ENDPOINT")
	setString(&c.Blob.Mode, "MEDVAULT_BLOB_MODE")
	setString(&c.Blob.GatewayURL, "MEDVAULT_BLOB_GATEWAY_URL")
	setString(&c.JWTSecret, "MEDVAULT_JWT_SECRET")
	setDuration(&c.RequestTimeout, "MEDVAULT_REQUEST_TIMEOUT")
	setDuration(&c.StalenessWindow, "MEDVAULT_STALENESS_WINDOW")
	setInt(&c.RetryAttempts, "MEDVAULT_RETRY_ATTEMPTS")
	setDuration(&c.RetryBackoff, "MEDVAULT_RETRY_BACKOFF")
	setInt(&c.OutboxMaxAttempts, "MEDVAULT_OUTBOX_MAX_ATTEMPTS")
	setDuration(&c.OutboxDrainEvery, "MEDVAULT_OUTBOX_DRAIN_EVERY")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

// Validate rejects configurations that cannot be started.
func (c *Config) Validate() error {
	switch c.Ledger.Mode {
	case "local":
	case "chain":
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger mode %q requires an endpoint", c.Ledger.Mode)
		}
	default:
		return fmt.Errorf("unknown ledger mode %q", c.Ledger.Mode)
	}
	switch c.Blob.Mode {
	case "local":
	case "gateway":
		if c.Blob.GatewayURL == "" {
			return fmt.Errorf("blob mode %q requires a gateway URL", c.Blob.Mode)
		}
	default:
		return fmt.Errorf("unknown blob mode %q", c.Blob.Mode)
	}
	return nil
}
