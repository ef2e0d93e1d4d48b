package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable the coordinator recognizes. All values come
// from the environment; defaults suit a single-instance deployment.
type Config struct {
	Env  string `env:"ENV" envDefault:"production"`
	Port string `env:"PORT" envDefault:"8080"`

	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"60m"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"15m"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`
	MissedHeartbeats  int           `env:"MISSED_HEARTBEATS" envDefault:"3"`
	ReconnectGrace    time.Duration `env:"RECONNECT_GRACE" envDefault:"2m"`

	MaxParticipants int `env:"MAX_PARTICIPANTS" envDefault:"24"`

	EventRetention  int `env:"EVENT_RETENTION" envDefault:"512"`
	SubscriberQueue int `env:"SUBSCRIBER_QUEUE" envDefault:"64"`

	CodeLength      int `env:"CODE_LENGTH" envDefault:"6"`
	CodeMaxAttempts int `env:"CODE_MAX_ATTEMPTS" envDefault:"10"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"ideastorm.db"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", c.InactivityTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.MissedHeartbeats <= 0 {
		return fmt.Errorf("MISSED_HEARTBEATS must be positive, got %d", c.MissedHeartbeats)
	}
	if c.ReconnectGrace <= 0 {
		return fmt.Errorf("RECONNECT_GRACE must be positive, got %s", c.ReconnectGrace)
	}
	if c.MaxParticipants <= 0 {
		return fmt.Errorf("MAX_PARTICIPANTS must be positive, got %d", c.MaxParticipants)
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("EVENT_RETENTION must be positive, got %d", c.EventRetention)
	}
	if c.SubscriberQueue <= 0 {
		return fmt.Errorf("SUBSCRIBER_QUEUE must be positive, got %d", c.SubscriberQueue)
	}
	if c.CodeLength < 4 || c.CodeLength%2 != 0 {
		return fmt.Errorf("CODE_LENGTH must be an even number >= 4, got %d", c.CodeLength)
	}
	if c.CodeMaxAttempts <= 0 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be positive, got %d", c.CodeMaxAttempts)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// MissedWindow is how long a participant may go silent before the sweep marks
// it Disconnected.
func (c *Config) MissedWindow() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.MissedHeartbeats)
}

// OfflineWindow is how long after the last heartbeat a participant is dropped
// from the live roster entirely.
func (c *Config) OfflineWindow() time.Duration {
	return c.MissedWindow() + c.ReconnectGrace
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
