package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.InstanceID == "" {
		return errors.New("server.instance_id is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	switch c.Broker.Kind {
	case "none", "memory":
	case "redis":
		if c.Broker.Redis.Addr == "" {
			return errors.New("broker.redis.addr is required when broker.kind is redis")
		}
	case "nats":
		if c.Broker.NATS.URL == "" {
			return errors.New("broker.nats.url is required when broker.kind is nats")
		}
	default:
		return fmt.Errorf("broker.kind must be none, memory, redis or nats, got %q", c.Broker.Kind)
	}

	if c.Rooms.Capacity < 0 {
		return errors.New("rooms.capacity must be >= 0")
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.PerMinute < 0 {
		return errors.New("rate_limit.per_second and rate_limit.per_minute must be >= 0")
	}
	if c.RateLimit.MaxViolations < 1 {
		return errors.New("rate_limit.max_violations must be >= 1")
	}
	if c.Queue.MaxDepth < 1 {
		return errors.New("queue.max_depth must be >= 1")
	}
	if c.Queue.BatchSize < 1 {
		return errors.New("queue.batch_size must be >= 1")
	}
	if c.Queue.DrainInterval <= 0 {
		return errors.New("queue.drain_interval must be positive")
	}
	if c.Registry.PingInterval <= 0 || c.Registry.PingInterval >= c.Registry.IdleTimeout {
		return errors.New("registry.ping_interval must be positive and below registry.idle_timeout")
	}
	if c.Draft.TickInterval <= 0 {
		return errors.New("draft.tick_interval must be positive")
	}
	if c.Draft.DefaultPickTimeLimitSeconds < 1 {
		return errors.New("draft.default_pick_time_limit_seconds must be >= 1")
	}
	if c.Notify.HeartbeatInterval <= 0 {
		return errors.New("notify.heartbeat_interval must be positive")
	}
	if c.Notify.WriteTimeout < 0 {
		return errors.New("notify.write_timeout must be >= 0")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.DSN == "" {
		if db.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if db.User == "" {
			return fmt.Errorf("%s.user is required", prefix)
		}
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
