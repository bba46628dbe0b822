package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/loopboard/realtime/internal/slogging"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Auth      AuthConfig      `yaml:"auth"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port" env:"SERVER_PORT"`
	Interface       string        `yaml:"interface" env:"SERVER_INTERFACE"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	TLSEnabled      bool          `yaml:"tls_enabled" env:"SERVER_TLS_ENABLED"`
	TLSCertFile     string        `yaml:"tls_cert_file" env:"SERVER_TLS_CERT_FILE"`
	TLSKeyFile      string        `yaml:"tls_key_file" env:"SERVER_TLS_KEY_FILE"`
}

// RedisConfig holds the optional presence mirror configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     string `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// PostgresConfig holds the optional user directory database configuration.
// The database is owned by the task-management backend; this service only
// reads display data from it.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled" env:"POSTGRES_ENABLED"`
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     string `yaml:"port" env:"POSTGRES_PORT"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSL_MODE"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT JWTConfig `yaml:"jwt"`
	// InternalAPIKey authenticates the task-management backend on /internal routes
	InternalAPIKey string `yaml:"internal_api_key" env:"AUTH_INTERNAL_API_KEY"`
}

// JWTConfig holds JWT verification configuration. Tokens are issued by the
// task-management backend; this service only verifies them.
type JWTConfig struct {
	SigningMethod     string `yaml:"signing_method" env:"JWT_SIGNING_METHOD"`
	Secret            string `yaml:"secret" env:"JWT_SECRET"`
	PublicKeyFile     string `yaml:"public_key_file" env:"JWT_PUBLIC_KEY_FILE"`
	PrivateKeyFile    string `yaml:"private_key_file" env:"JWT_PRIVATE_KEY_FILE"`
	ExpirationSeconds int    `yaml:"expiration_seconds" env:"JWT_EXPIRATION_SECONDS"`
}

// WebSocketConfig holds WebSocket transport tuning
type WebSocketConfig struct {
	SendBufferSize     int `yaml:"send_buffer_size" env:"WEBSOCKET_SEND_BUFFER_SIZE"`
	ReadLimitBytes     int `yaml:"read_limit_bytes" env:"WEBSOCKET_READ_LIMIT_BYTES"`
	PongWaitSeconds    int `yaml:"pong_wait_seconds" env:"WEBSOCKET_PONG_WAIT_SECONDS"`
	WriteWaitSeconds   int `yaml:"write_wait_seconds" env:"WEBSOCKET_WRITE_WAIT_SECONDS"`
	PresenceTTLSeconds int `yaml:"presence_ttl_seconds" env:"WEBSOCKET_PRESENCE_TTL_SECONDS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level" env:"LOGGING_LEVEL"`
	IsDev            bool   `yaml:"is_dev" env:"LOGGING_IS_DEV"`
	LogDir           string `yaml:"log_dir" env:"LOGGING_LOG_DIR"`
	MaxAgeDays       int    `yaml:"max_age_days" env:"LOGGING_MAX_AGE_DAYS"`
	MaxSizeMB        int    `yaml:"max_size_mb" env:"LOGGING_MAX_SIZE_MB"`
	MaxBackups       int    `yaml:"max_backups" env:"LOGGING_MAX_BACKUPS"`
	AlsoLogToConsole bool   `yaml:"also_log_to_console" env:"LOGGING_ALSO_LOG_TO_CONSOLE"`
}

// MetricsConfig holds metrics exposure configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(configFile string) (*Config, error) {
	config := getDefaultConfig()

	if configFile != "" {
		if err := loadFromYAML(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from YAML: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, fmt.Errorf("failed to override with environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with default values
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Interface:       "0.0.0.0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    "6379",
			DB:      0,
		},
		Postgres: PostgresConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     "5432",
			User:     "loopboard",
			Database: "loopboard",
			SSLMode:  "disable",
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				SigningMethod:     "HS256",
				ExpirationSeconds: 3600,
			},
		},
		WebSocket: WebSocketConfig{
			SendBufferSize:     256,
			ReadLimitBytes:     65536,
			PongWaitSeconds:    60,
			WriteWaitSeconds:   10,
			PresenceTTLSeconds: 86400,
		},
		Logging: LoggingConfig{
			Level:            "info",
			IsDev:            true,
			LogDir:           "logs",
			MaxAgeDays:       7,
			MaxSizeMB:        100,
			MaxBackups:       10,
			AlsoLogToConsole: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// loadFromYAML loads configuration from a YAML file
func loadFromYAML(config *Config, filename string) error {
	data, err := os.ReadFile(filename) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// overrideWithEnv overrides configuration values with environment variables
func overrideWithEnv(config *Config) error {
	return overrideStructWithEnv(reflect.ValueOf(config).Elem())
}

// overrideStructWithEnv recursively overrides struct fields with environment variables
func overrideStructWithEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := overrideStructWithEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldFromString(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromString sets a struct field value from a string based on the field type
func setFieldFromString(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value: %s", value)
		}
		field.SetBool(boolVal)
	case reflect.Int:
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid int value: %s", value)
		}
		field.SetInt(int64(intVal))
	case reflect.Int64:
		// time.Duration fields accept values like "30s"
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid int64 value: %s", value)
			}
			field.SetInt(intVal)
		}
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			return fmt.Errorf("tls cert and key files are required when tls is enabled")
		}
	}

	switch strings.ToUpper(c.Auth.JWT.SigningMethod) {
	case "HS256":
		if c.Auth.JWT.Secret == "" {
			return fmt.Errorf("jwt secret is required for HS256")
		}
	case "RS256", "ES256":
		if c.Auth.JWT.PublicKeyFile == "" {
			return fmt.Errorf("jwt public key file is required for %s", c.Auth.JWT.SigningMethod)
		}
	default:
		return fmt.Errorf("unsupported jwt signing method: %s", c.Auth.JWT.SigningMethod)
	}

	if c.Auth.InternalAPIKey == "" {
		return fmt.Errorf("internal api key is required")
	}

	if c.Redis.Enabled {
		if c.Redis.Host == "" || c.Redis.Port == "" {
			return fmt.Errorf("redis host and port are required when redis is enabled")
		}
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.Port == "" {
			return fmt.Errorf("postgres host and port are required when postgres is enabled")
		}
		if c.Postgres.User == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres user and database are required when postgres is enabled")
		}
	}

	if c.WebSocket.SendBufferSize < 1 {
		return fmt.Errorf("websocket send buffer size must be at least 1")
	}
	if c.WebSocket.PongWaitSeconds < 15 {
		return fmt.Errorf("websocket pong wait must be at least 15 seconds")
	}
	if c.WebSocket.WriteWaitSeconds < 1 {
		return fmt.Errorf("websocket write wait must be at least 1 second")
	}

	return nil
}

// GetLogLevel returns the parsed log level
func (c *Config) GetLogLevel() slogging.LogLevel {
	return slogging.ParseLogLevel(c.Logging.Level)
}

// GetJWTDuration returns the JWT expiration duration used for minted dev tokens
func (c *Config) GetJWTDuration() time.Duration {
	return time.Duration(c.Auth.JWT.ExpirationSeconds) * time.Second
}

// Addr returns the host:port pair for the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ConnString returns a pgx-compatible connection URL
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:   p.Database,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// PongWait returns how long to wait for a pong before dropping a connection
func (w WebSocketConfig) PongWait() time.Duration {
	return time.Duration(w.PongWaitSeconds) * time.Second
}

// WriteWait returns the per-frame write deadline
func (w WebSocketConfig) WriteWait() time.Duration {
	return time.Duration(w.WriteWaitSeconds) * time.Second
}

// PingPeriod returns the transport ping interval, kept under PongWait
func (w WebSocketConfig) PingPeriod() time.Duration {
	return w.PongWait() * 9 / 10
}

// PresenceTTL returns the expiry for mirrored presence records
func (w WebSocketConfig) PresenceTTL() time.Duration {
	return time.Duration(w.PresenceTTLSeconds) * time.Second
}
