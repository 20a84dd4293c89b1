package config

import "time"

// Config is the root configuration of the auth service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Session SessionConfig `mapstructure:"session"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// JWTConfig configures token issuance and verification. The Validate* flags
// toggle the corresponding claim checks independently; the signature is
// always verified.
type JWTConfig struct {
	SecretKey        string        `mapstructure:"secret_key"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	ValidateIssuer   bool          `mapstructure:"validate_issuer"`
	ValidateAudience bool          `mapstructure:"validate_audience"`
	ValidateLifetime bool          `mapstructure:"validate_lifetime"`
	ClockSkew        time.Duration `mapstructure:"clock_skew"`
}

// SessionConfig configures session lifecycle policy.
type SessionConfig struct {
	DefaultDuration            time.Duration `mapstructure:"default_duration"`
	RefreshThreshold           time.Duration `mapstructure:"refresh_threshold"`
	ActivityExtensionThreshold time.Duration `mapstructure:"activity_extension_threshold"`
	MaxConcurrentSessions      int           `mapstructure:"max_concurrent_sessions"`
	EnableSessionExtension     bool          `mapstructure:"enable_session_extension"`
	CleanupInterval            time.Duration `mapstructure:"cleanup_interval"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}
