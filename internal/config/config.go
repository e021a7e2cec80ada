// Package config предоставляет структуры и функции для загрузки конфигурации шлюза
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	JWTToken                `yaml:"jwttoken"`
	Security                `yaml:"security"`
	Breaker                 `yaml:"breaker"`
	Upstream                `yaml:"upstream"`
	RabbitMQ                `yaml:"rabbitmq"`
	GRPC                    `yaml:"grpc"`
	RateLimit               `yaml:"rate_limit"`
	Janitor                 `yaml:"janitor"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш отчётов.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	ReportTTL    time.Duration `yaml:"report_ttl" env-default:"30s"`
}

// JWTToken структура для работы с токенами доступа и обновления
type JWTToken struct {
	JWTSecretKey    string        `yaml:"jwt_secret_key" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_ttl" env-default:"168h"`
}

// Security параметры защиты учётных записей
type Security struct {
	MaxFailedLogins     int           `yaml:"max_failed_logins" env-default:"5"`
	LockoutDuration     time.Duration `yaml:"lockout_duration" env-default:"15m"`
	BcryptCost          int           `yaml:"bcrypt_cost" env-default:"10"`
	DefaultDailyLimit   int64         `yaml:"default_daily_limit" env-default:"-1"`
	DefaultMonthlyLimit int64         `yaml:"default_monthly_limit" env-default:"-1"`
}

// Breaker параметры автомата защиты вызовов к внешнему AI-сервису
type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold" env-default:"5"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env-default:"60s"`
}

// Upstream параметры внешнего AI-сервиса
type Upstream struct {
	BaseURL string        `yaml:"base_url" env:"UPSTREAM_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"UPSTREAM_API_KEY"`
	Model   string        `yaml:"model" env-default:"default"`
	Timeout time.Duration `yaml:"timeout" env-default:"60s"`
}

// RabbitMQ параметры публикации событий расхода. Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL        string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange" env-default:"editor.usage"`
	RoutingKey string `yaml:"routing_key" env-default:"usage.recorded"`
}

// GRPC адрес сервера проверки здоровья. Пустой адрес отключает сервер.
type GRPC struct {
	Address string `yaml:"address" env:"GRPC_ADDRESS"`
}

// RateLimit ограничение частоты запросов к /api/auth с одного IP
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// Janitor период очистки просроченных сессий
type Janitor struct {
	Interval time.Duration `yaml:"interval" env-default:"1h"`
}

// Load читает конфиг из файла path с переопределением из переменных окружения.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию.
func (c *Config) Validate() error {
	switch {
	case len(c.JWTSecretKey) < 32:
		return errors.New("jwttoken.jwt_secret_key must be at least 32 bytes")
	case c.MaxFailedLogins < 1:
		return errors.New("security.max_failed_logins must be positive")
	case c.DefaultDailyLimit < -1 || c.DefaultMonthlyLimit < -1:
		return errors.New("security default limits must be -1 or greater")
	case c.FailureThreshold < 1:
		return errors.New("breaker.failure_threshold must be positive")
	}
	return nil
}

// String возвращает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"MigrationsPath: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Redis: %s (db %d)\n"+
			"JWTToken:\n"+
			"  AccessTTL: %s\n"+
			"  RefreshTTL: %s\n"+
			"Security:\n"+
			"  MaxFailedLogins: %d\n"+
			"  LockoutDuration: %s\n"+
			"Breaker: threshold %d, reset %s\n"+
			"Upstream: %s (model %s, timeout %s)\n",
		c.Env,
		c.MigrationsPath,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.AddressRedis,
		c.DB,
		c.AccessTokenTTL,
		c.RefreshTokenTTL,
		c.MaxFailedLogins,
		c.LockoutDuration,
		c.FailureThreshold,
		c.ResetTimeout,
		c.BaseURL,
		c.Model,
		c.Upstream.Timeout,
	)
}
