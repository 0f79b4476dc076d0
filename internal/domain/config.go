package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Engine      EngineConfig      `json:"engine" yaml:"engine"`
	Bus         BusConfig         `json:"bus" yaml:"bus"`
	Credentials CredentialsConfig `json:"credentials" yaml:"credentials"`
}

type EngineConfig struct {
	WorkerCount       int           `json:"worker_count" yaml:"worker_count"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
	DefaultTimeout    time.Duration `json:"default_timeout" yaml:"default_timeout"`
	PollInterval      time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

type BusConfig struct {
	Partitions int           `json:"partitions" yaml:"partitions"`
	ClaimTTL   time.Duration `json:"claim_ttl" yaml:"claim_ttl"`
}

type CredentialsConfig struct {
	EncryptionKey string        `json:"-" yaml:"-"`
	ExpiryBuffer  time.Duration `json:"expiry_buffer" yaml:"expiry_buffer"`
}

const MinEncryptionKeyLength = 32

func (c *Config) ApplyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Engine.WorkerCount <= 0 {
		c.Engine.WorkerCount = 4
	}
	if c.Engine.BackoffMultiplier <= 1 {
		c.Engine.BackoffMultiplier = 2.0
	}
	if c.Engine.MaxBackoff <= 0 {
		c.Engine.MaxBackoff = 5 * time.Minute
	}
	if c.Engine.DefaultTimeout <= 0 {
		c.Engine.DefaultTimeout = 30 * time.Second
	}
	if c.Engine.PollInterval <= 0 {
		c.Engine.PollInterval = 100 * time.Millisecond
	}
	if c.Bus.Partitions <= 0 {
		c.Bus.Partitions = 16
	}
	if c.Bus.ClaimTTL <= 0 {
		c.Bus.ClaimTTL = 5 * time.Minute
	}
	if c.Credentials.ExpiryBuffer <= 0 {
		c.Credentials.ExpiryBuffer = 5 * time.Minute
	}
}

func (c *Config) Validate() error {
	if len(c.Credentials.EncryptionKey) < MinEncryptionKeyLength {
		return NewValidationError("credentials.encryption_key",
			"encryption key must be at least 32 characters")
	}
	return nil
}
