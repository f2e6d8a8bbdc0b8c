package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	dbconfig "mentorlink/pkg/database"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// EnvPrefix is prepended to every environment key, e.g.
	// MENTORLINK_HTTP_PORT for http.port.
	EnvPrefix = "MENTORLINK"
)

type Config struct {
	Env       string
	Database  DatabaseConfig
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Chat      ChatConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Driver         string
	Path           string
	URL            string
	Timeout        time.Duration
	MaxConnections int
}

type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WebSocketConfig tunes the per-connection pumps.
type WebSocketConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret string
}

// RedisConfig controls the notification subscriber.
type RedisConfig struct {
	Enabled       bool
	URL           string
	ChannelPrefix string
}

type ChatConfig struct {
	RateLimit     int
	RateWindow    time.Duration
	MaxBodyLength int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Env: EnvDevelopment,
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Path:           "./data/mentorlink.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 64 * 1024,
		},
		Redis: RedisConfig{
			ChannelPrefix: "notifications:",
		},
		Chat: ChatConfig{
			RateLimit:     100,
			RateWindow:    time.Minute,
			MaxBodyLength: 5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with precedence file > environment > defaults.
// A .env file in the working directory is loaded into the environment
// first. path may be empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		file := viper.New()
		file.SetConfigFile(path)
		if err := file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		for _, key := range file.AllKeys() {
			v.Set(key, file.Get(key))
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("env", d.Env)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.max_message_size", d.WebSocket.MaxMessageSize)
	v.SetDefault("websocket.allowed_origins", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.channel_prefix", d.Redis.ChannelPrefix)

	v.SetDefault("chat.rate_limit", d.Chat.RateLimit)
	v.SetDefault("chat.rate_window", d.Chat.RateWindow)
	v.SetDefault("chat.max_body_length", d.Chat.MaxBodyLength)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env: strings.ToLower(v.GetString("env")),
		Database: DatabaseConfig{
			Driver:         strings.ToLower(v.GetString("database.driver")),
			Path:           v.GetString("database.path"),
			URL:            v.GetString("database.url"),
			Timeout:        v.GetDuration("database.timeout"),
			MaxConnections: v.GetInt("database.max_connections"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("http.host"),
			Port:            v.GetInt("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		WebSocket: WebSocketConfig{
			PingInterval:   v.GetDuration("websocket.ping_interval"),
			ReadTimeout:    v.GetDuration("websocket.read_timeout"),
			WriteTimeout:   v.GetDuration("websocket.write_timeout"),
			BufferSize:     v.GetInt("websocket.buffer_size"),
			MaxMessageSize: v.GetInt64("websocket.max_message_size"),
			AllowedOrigins: stringList(v.Get("websocket.allowed_origins")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		Redis: RedisConfig{
			Enabled:       v.GetBool("redis.enabled"),
			URL:           v.GetString("redis.url"),
			ChannelPrefix: v.GetString("redis.channel_prefix"),
		},
		Chat: ChatConfig{
			RateLimit:     v.GetInt("chat.rate_limit"),
			RateWindow:    v.GetDuration("chat.rate_window"),
			MaxBodyLength: v.GetInt("chat.max_body_length"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// stringList accepts either a list from a config file or a comma separated
// string from the environment.
func stringList(raw interface{}) []string {
	var parts []string
	switch value := raw.(type) {
	case string:
		parts = strings.Split(value, ",")
	case []string:
		parts = value
	case []interface{}:
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path cannot be empty")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Timeout <= 0 {
		return errors.New("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	// Port 0 asks the kernel for a free port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("redis url is required when redis is enabled")
	}

	if c.Chat.MaxBodyLength <= 0 {
		return errors.New("chat max body length must be positive")
	}
	if c.Chat.RateLimit > 0 && c.Chat.RateWindow <= 0 {
		return errors.New("chat rate window must be positive when rate limiting is on")
	}

	return nil
}

// Address is the listen address of the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// SQLite converts the database section into the sqlite store settings.
func (c *Config) SQLite() *dbconfig.Config {
	db := dbconfig.DefaultConfig()
	db.DatabasePath = c.Database.Path
	db.MaxConnections = c.Database.MaxConnections
	return db
}
