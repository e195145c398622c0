package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr                 = ":8080"
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultLogLevel             = "info"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBrokerKind           = "none"
	DefaultChannelPrefix        = "rooms:"
	DefaultBrokerRetry          = 5 * time.Second
	DefaultPublishTimeout       = 2 * time.Second
	DefaultBreakerMaxFailures   = 5
	DefaultBreakerResetTimeout  = 30 * time.Second
	DefaultRoomCapacity         = 500
	DefaultPerSecond            = 10
	DefaultPerMinute            = 300
	DefaultRateSweepInterval    = time.Minute
	DefaultMaxViolations        = 20
	DefaultQueueDepth           = 256
	DefaultBatchSize            = 64
	DefaultDrainInterval        = 25 * time.Millisecond
	DefaultWriteBuffer          = 128
	DefaultIdleTimeout          = 2 * time.Minute
	DefaultIdleSweepInterval    = 15 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultDraftTick            = time.Second
	DefaultPickTimeLimitSeconds = 90
	DefaultStoreTimeout         = 5 * time.Second
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultStreamWriteTimeout   = 10 * time.Second
	DefaultRedisAddr            = "localhost:6379"
	DefaultNATSURL              = "nats://localhost:4222"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.InstanceID == "" {
		c.Server.InstanceID = newInstanceID()
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	applyDBDefaults(&c.Database)

	// Broker defaults
	if c.Broker.Kind == "" {
		c.Broker.Kind = DefaultBrokerKind
	}
	if c.Broker.ChannelPrefix == "" {
		c.Broker.ChannelPrefix = DefaultChannelPrefix
	}
	if c.Broker.RetryInterval == 0 {
		c.Broker.RetryInterval = DefaultBrokerRetry
	}
	if c.Broker.PublishTimeout == 0 {
		c.Broker.PublishTimeout = DefaultPublishTimeout
	}
	if c.Broker.MaxFailures == 0 {
		c.Broker.MaxFailures = DefaultBreakerMaxFailures
	}
	if c.Broker.ResetTimeout == 0 {
		c.Broker.ResetTimeout = DefaultBreakerResetTimeout
	}
	if c.Broker.Redis.Addr == "" {
		c.Broker.Redis.Addr = DefaultRedisAddr
	}
	if c.Broker.NATS.URL == "" {
		c.Broker.NATS.URL = DefaultNATSURL
	}

	// Rooms defaults
	if c.Rooms.Capacity == 0 {
		c.Rooms.Capacity = DefaultRoomCapacity
	}
	if c.Rooms.AutoCleanup == nil {
		on := true
		c.Rooms.AutoCleanup = &on
	}

	// Rate limit defaults
	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = DefaultPerSecond
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = DefaultPerMinute
	}
	if c.RateLimit.SweepInterval == 0 {
		c.RateLimit.SweepInterval = DefaultRateSweepInterval
	}
	if c.RateLimit.MaxViolations == 0 {
		c.RateLimit.MaxViolations = DefaultMaxViolations
	}

	// Queue defaults
	if c.Queue.MaxDepth == 0 {
		c.Queue.MaxDepth = DefaultQueueDepth
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = DefaultBatchSize
	}
	if c.Queue.DrainInterval == 0 {
		c.Queue.DrainInterval = DefaultDrainInterval
	}
	if c.Queue.WriteBuffer == 0 {
		c.Queue.WriteBuffer = DefaultWriteBuffer
	}

	// Registry defaults
	if c.Registry.IdleTimeout == 0 {
		c.Registry.IdleTimeout = DefaultIdleTimeout
	}
	if c.Registry.SweepInterval == 0 {
		c.Registry.SweepInterval = DefaultIdleSweepInterval
	}
	if c.Registry.PingInterval == 0 {
		c.Registry.PingInterval = DefaultPingInterval
	}

	// Draft defaults
	if c.Draft.TickInterval == 0 {
		c.Draft.TickInterval = DefaultDraftTick
	}
	if c.Draft.DefaultPickTimeLimitSeconds == 0 {
		c.Draft.DefaultPickTimeLimitSeconds = DefaultPickTimeLimitSeconds
	}
	if c.Draft.StoreTimeout == 0 {
		c.Draft.StoreTimeout = DefaultStoreTimeout
	}

	if c.Notify.HeartbeatInterval == 0 {
		c.Notify.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Notify.WriteTimeout == 0 {
		c.Notify.WriteTimeout = DefaultStreamWriteTimeout
	}
}

func applyDBDefaults(db *DatabaseConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
