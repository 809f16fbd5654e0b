package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	DocStore    DocStoreConfig
	Directory   DirectoryConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Stream      StreamConfig
	Notify      NotifyConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DocStoreConfig points at the Bolt file holding the task and assignment
// collections.
type DocStoreConfig struct {
	Path string
}

// DirectoryConfig describes the Postgres database backing the user directory.
type DirectoryConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// StreamConfig controls the change-event outbox and its drain schedule.
type StreamConfig struct {
	Path               string
	DrainInterval      time.Duration
	BatchSize          int
	MaxRetry           int
	TopicAssigned      string
	TopicStatusChanged string
}

// NotifyConfig configures outbound e-mail delivery.
type NotifyConfig struct {
	Enabled   bool
	SMTPAddr  string
	SMTPUser  string
	SMTPPass  string
	FromEmail string
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "teamtasks-backend"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		DocStore: DocStoreConfig{
			Path: getString("DOCSTORE_PATH", "./data/tasks.db"),
		},
		Directory: DirectoryConfig{
			URL:             os.Getenv("DIRECTORY_DATABASE_URL"),
			Host:            getString("DIRECTORY_DB_HOST", "localhost"),
			Port:            getString("DIRECTORY_DB_PORT", "5432"),
			Name:            getString("DIRECTORY_DB_NAME", "directory"),
			User:            getString("DIRECTORY_DB_USER", "directory_user"),
			Password:        os.Getenv("DIRECTORY_DB_PASSWORD"),
			MaxOpenConns:    getInt("DIRECTORY_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DIRECTORY_DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DIRECTORY_DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DIRECTORY_DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "teamtasks-backend"),
		},
		Stream: StreamConfig{
			Path:               getString("STREAM_PATH", "./data/stream.db"),
			DrainInterval:      getDuration("STREAM_DRAIN_INTERVAL", 5*time.Second),
			BatchSize:          getInt("STREAM_BATCH_SIZE", 50),
			MaxRetry:           getInt("STREAM_MAX_RETRY", 3),
			TopicAssigned:      getString("STREAM_TOPIC_ASSIGNED", "tasks.assigned"),
			TopicStatusChanged: getString("STREAM_TOPIC_STATUS", "tasks.status-changed"),
		},
		Notify: NotifyConfig{
			Enabled:   getBool("NOTIFY_ENABLED", true),
			SMTPAddr:  getString("SMTP_ADDR", "localhost:25"),
			SMTPUser:  os.Getenv("SMTP_USER"),
			SMTPPass:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: getString("NOTIFY_FROM_EMAIL", "noreply@example.com"),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Directory.URL == "" {
		cfg.Directory.URL = buildPostgresURL(cfg)
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// IsProduction reports whether the service runs in a production environment;
// internal error detail is withheld from responses when it does.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Directory.User,
		cfg.Directory.Password,
		cfg.Directory.Host,
		cfg.Directory.Port,
		cfg.Directory.Name,
		cfg.Directory.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
