package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig reads configuration from an optional yaml file and AUTH_-prefixed
// environment variables. A missing config file is not an error; the defaults
// plus environment are enough to run.
func LoadConfig() (*Config, error) {
	// Local development convenience; absence of .env is fine.
	_ = godotenv.Load()

	setDefaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/auth-service")
	}

	viper.SetEnvPrefix("AUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("jwt.secret_key is required")
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "15s")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.key_prefix", "auth:")

	viper.SetDefault("jwt.issuer", "marketplace")
	viper.SetDefault("jwt.audience", "marketplace")
	viper.SetDefault("jwt.access_token_ttl", "15m")
	viper.SetDefault("jwt.refresh_token_ttl", "168h")
	viper.SetDefault("jwt.validate_issuer", true)
	viper.SetDefault("jwt.validate_audience", true)
	viper.SetDefault("jwt.validate_lifetime", true)
	viper.SetDefault("jwt.clock_skew", "0s")

	viper.SetDefault("session.default_duration", "24h")
	viper.SetDefault("session.refresh_threshold", "30m")
	viper.SetDefault("session.activity_extension_threshold", "15m")
	viper.SetDefault("session.max_concurrent_sessions", 5)
	viper.SetDefault("session.enable_session_extension", true)
	viper.SetDefault("session.cleanup_interval", "1h")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topic", "auth.sessions")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.environment", "development")
}
