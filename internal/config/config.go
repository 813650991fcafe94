// Package config loads service configuration from a YAML file, environment
// variables and command-line overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Auth     AuthConfig     `yaml:"auth"`
	Hub      HubConfig      `yaml:"hub"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Migrate      bool   `yaml:"migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
}

// AuthConfig selects how bearer tokens are verified: dev ("subject:role"
// tokens), hmac (HS256) or jwks (RS256).
type AuthConfig struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmac_secret"`
	JWKSURL    string `yaml:"jwks_url"`
	RoleClaim  string `yaml:"role_claim"`
	NameClaim  string `yaml:"name_claim"`
}

// HubConfig tunes the live-session fan-out.
type HubConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	ControlRate    float64       `yaml:"control_rate"`
	ControlBurst   int           `yaml:"control_burst"`
	RequireAuth    bool          `yaml:"require_auth"`
}

type IngestConfig struct {
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: DatabaseConfig{
			Migrate:      true,
			MaxOpenConns: 20,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			ClientID: "logistrans-api",
			Topic:    "logistrans/locations",
			QoS:      1,
		},
		Auth: AuthConfig{
			Mode:      "dev",
			RoleClaim: "role",
			NameClaim: "username",
		},
		Hub: HubConfig{
			QueueSize:      64,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     20 * time.Second,
			MaxMessageSize: 1 << 16,
			ControlRate:    5,
			ControlBurst:   10,
		},
		Ingest: IngestConfig{
			RateRPS:   50,
			RateBurst: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips
// the file. Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HOST", &c.Server.Host)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("MQTT_URL", &c.MQTT.BrokerURL)
	str("MQTT_TOPIC", &c.MQTT.Topic)
	str("AUTH_MODE", &c.Auth.Mode)
	str("JWT_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v, ok := lookup("DB_MIGRATE"); ok && v != "" {
		c.Database.Migrate = v != "false"
	}
	if v, ok := lookup("ALLOW_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.Ingest.RateRPS = f
	}
	if v, ok := lookup("RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.Ingest.RateBurst = n
	}
	if v, ok := lookup("WS_QUEUE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WS_QUEUE_SIZE: %w", err)
		}
		c.Hub.QueueSize = n
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Hub.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("hub.queue_size must be > 0"))
	}
	if c.Hub.PongWait <= 0 || c.Hub.PingPeriod <= 0 || c.Hub.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("hub keepalive durations must be > 0"))
	} else if c.Hub.PingPeriod >= c.Hub.PongWait {
		errs = append(errs, fmt.Errorf("hub.ping_period (%s) must be shorter than hub.pong_wait (%s)", c.Hub.PingPeriod, c.Hub.PongWait))
	}
	if c.Hub.ControlRate <= 0 || c.Hub.ControlBurst <= 0 {
		errs = append(errs, fmt.Errorf("hub.control_rate and hub.control_burst must be > 0"))
	}
	if c.Ingest.RateRPS <= 0 || c.Ingest.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("ingest.rate_rps and ingest.rate_burst must be > 0"))
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "dev", "jwks":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, fmt.Errorf("auth.hmac_secret (JWT_SECRET) required for hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth.mode %q", c.Auth.Mode))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
