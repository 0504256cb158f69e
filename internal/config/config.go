package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RepositorySQLite   = "sqlite"
	RepositoryPostgres = "postgres"
	RepositoryMySQL    = "mysql"
	RepositoryInMemory = "inmemory"

	envPrefix     = "TASKS"
	envConfigPath = "TASKS_CONFIG"
	defaultFile   = "config.yml"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Import     ImportConfig     `mapstructure:"import"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MinConnections int           `mapstructure:"min_connections"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

type RepositoryConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres, mysql или inmemory
}

type ImportConfig struct {
	Path string `mapstructure:"path"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("repository.type", RepositorySQLite)

	v.SetDefault("database.url", ":memory:")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.idle_timeout", 5*time.Minute)

	v.SetDefault("logging.development", false)

	v.SetDefault("import.path", "tasks.csv")

	v.SetDefault("rate_limit.requests_per_minute", 100)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "task-service")
}

// Load читает config.yml (или файл из TASKS_CONFIG), переменные TASKS_* имеют приоритет.
// Отсутствие файла не ошибка - тогда работают значения по умолчанию.
func Load() (*Config, error) {
	path := os.Getenv(envConfigPath)
	explicit := path != ""
	if !explicit {
		path = defaultFile
	}
	return load(path, explicit)
}

func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if required || !missing {
			return nil, fmt.Errorf("не могу прочитать %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Repository.Type {
	case RepositorySQLite, RepositoryPostgres, RepositoryMySQL:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url обязателен для хранилища %q", c.Repository.Type)
		}
	case RepositoryInMemory:
	default:
		return fmt.Errorf("неизвестный тип хранилища %q", c.Repository.Type)
	}

	if c.Server.Port == "" {
		return errors.New("server.port не может быть пустым")
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		return errors.New("rate_limit.requests_per_minute не может быть отрицательным")
	}

	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
