package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr        string        `yaml:"addr"`
	CallTimeout time.Duration `yaml:"callTimeout"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Driver string `yaml:"driver"` // postgres|sqlite
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	Migrate         bool          `yaml:"migrate"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

// Redis is optional; without an address the send limiter is process-local.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWT struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Secret        string        `yaml:"secret"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type Auth struct {
	JWT JWT `yaml:"jwt"`
}

type WS struct {
	PingEvery      time.Duration `yaml:"pingEvery"`
	ReadLimit      int64         `yaml:"readLimit"`
	SendBuffer     int           `yaml:"sendBuffer"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type RateLimit struct {
	Burst    int           `yaml:"burst"`
	Interval time.Duration `yaml:"interval"`
}

type Chat struct {
	HistoryLimit     int       `yaml:"historyLimit"`
	MaxMessageLength int       `yaml:"maxMessageLength"`
	RateLimit        RateLimit `yaml:"rateLimit"`
}

type VAPID struct {
	PublicKey  string `yaml:"publicKey"`
	PrivateKey string `yaml:"privateKey"`
	Subscriber string `yaml:"subscriber"`
}

type Notifications struct {
	Cooldown      time.Duration `yaml:"cooldown"`
	TTL           time.Duration `yaml:"ttl"`
	Urgency       string        `yaml:"urgency"`
	Title         string        `yaml:"title"`
	URLTemplate   string        `yaml:"urlTemplate"`
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queueSize"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	VAPID         VAPID         `yaml:"vapid"`
}

type Config struct {
	HTTP          HTTP          `yaml:"http"`
	GRPC          GRPC          `yaml:"grpc"`
	Logging       Logging       `yaml:"logging"`
	Store         Store         `yaml:"store"`
	Postgres      Postgres      `yaml:"postgres"`
	SQLite        SQLite        `yaml:"sqlite"`
	Redis         Redis         `yaml:"redis"`
	Auth          Auth          `yaml:"auth"`
	WS            WS            `yaml:"ws"`
	Chat          Chat          `yaml:"chat"`
	Notifications Notifications `yaml:"notifications"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets stay out of the file.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Postgres.DSN, "POSTGRES_DSN")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Auth.JWT.Secret, "JWT_SECRET")
	set(&c.Notifications.VAPID.PrivateKey, "VAPID_PRIVATE_KEY")
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "postgres":
		c.Store.Driver = "postgres"
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			c.SQLite.Path = "chat.db"
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}

	v := c.Notifications.VAPID
	if (v.PublicKey == "") != (v.PrivateKey == "") {
		return errors.New("notifications.vapid needs both publicKey and privateKey")
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Chat.RateLimit.Burst <= 0 {
		c.Chat.RateLimit.Burst = 10
	}
	if c.Chat.RateLimit.Interval <= 0 {
		c.Chat.RateLimit.Interval = 10 * time.Second
	}
	if c.Notifications.Cooldown <= 0 {
		c.Notifications.Cooldown = 24 * time.Hour
	}
	if c.Notifications.Retention <= 0 {
		c.Notifications.Retention = 30 * 24 * time.Hour
	}
	if c.Notifications.SweepInterval <= 0 {
		c.Notifications.SweepInterval = time.Hour
	}
	return nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.Notifications.VAPID.PrivateKey != ""
}
