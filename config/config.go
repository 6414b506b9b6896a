package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Consul     ConsulConfig
	Auth       AuthConfig
	Poll       PollConfig
	Resilience ResilienceConfig
	LogLevel   string
}

type ServerConfig struct {
	Port string
	Host string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ConsulConfig struct {
	Enabled bool
	Host    string
	Port    string
}

type AuthConfig struct {
	// HostTokenSecret signs the JWT handed to a poll's creator; possession of
	// that token is what authorises state transitions.
	HostTokenSecret string
}

type PollConfig struct {
	// Retention is how long a poll stays active after creation before
	// housekeeping marks it inactive.
	Retention time.Duration
	// StaleTimeout is how long a participant may go unseen before the sweep
	// treats it as disconnected.
	StaleTimeout time.Duration
	// SweepInterval is the housekeeping tick.
	SweepInterval time.Duration
}

type ResilienceConfig struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	AttemptTimeout   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Read loads config.yaml from the working directory, with POLL_* environment
// variables taking precedence (POLL_REDIS_ADDR overrides redis.addr, etc.).
func Read() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("poll")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env cover local runs.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Host: viper.GetString("server.host"),
		},
		Mongo: MongoConfig{
			URI:      viper.GetString("mongo.uri"),
			Database: viper.GetString("mongo.database"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Consul: ConsulConfig{
			Enabled: viper.GetBool("consul.enabled"),
			Host:    viper.GetString("consul.host"),
			Port:    viper.GetString("consul.port"),
		},
		Auth: AuthConfig{
			HostTokenSecret: viper.GetString("auth.host_token_secret"),
		},
		Poll: PollConfig{
			Retention:     viper.GetDuration("poll.retention"),
			StaleTimeout:  viper.GetDuration("poll.stale_timeout"),
			SweepInterval: viper.GetDuration("poll.sweep_interval"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      viper.GetInt("resilience.max_attempts"),
			InitialBackoff:   viper.GetDuration("resilience.initial_backoff"),
			MaxBackoff:       viper.GetDuration("resilience.max_backoff"),
			AttemptTimeout:   viper.GetDuration("resilience.attempt_timeout"),
			BreakerThreshold: uint32(viper.GetInt("resilience.breaker_threshold")),
			BreakerCooldown:  viper.GetDuration("resilience.breaker_cooldown"),
		},
		LogLevel: viper.GetString("log.level"),
	}, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "pollservice")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("consul.enabled", false)
	viper.SetDefault("consul.host", "localhost")
	viper.SetDefault("consul.port", "8500")
	viper.SetDefault("auth.host_token_secret", "dev-only-secret")
	viper.SetDefault("poll.retention", "2h")
	viper.SetDefault("poll.stale_timeout", "90s")
	viper.SetDefault("poll.sweep_interval", "30s")
	viper.SetDefault("resilience.max_attempts", 3)
	viper.SetDefault("resilience.initial_backoff", "50ms")
	viper.SetDefault("resilience.max_backoff", "2s")
	viper.SetDefault("resilience.attempt_timeout", "3s")
	viper.SetDefault("resilience.breaker_threshold", 5)
	viper.SetDefault("resilience.breaker_cooldown", "10s")
	viper.SetDefault("log.level", "info")
}
