// Package config предоставялет структуры и функции для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RenewalBaseURL          string `yaml:"renewal_base_url" env:"RENEWAL_BASE_URL" env-default:"https://your-domain.com/renew"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	Sweeper                 `yaml:"sweeper"`
	RateLimit               `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес означает, что кеш отключен.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env-default:"1h"`
}

// RabbitMQ структура для настройки очереди запуска обхода подписок.
// Пустой URL означает, что обход запускается только по расписанию.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP структура для настройки отправки писем.
// Отсутствие учетных данных допустимо, тогда письма не отправляются.
type SMTP struct {
	SMTPHost    string        `yaml:"host" env:"SMTP_SERVER" env-default:"smtp.gmail.com"`
	SMTPPort    string        `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser    string        `yaml:"user" env:"SMTP_USER"`
	SMTPPass    string        `yaml:"password" env:"SMTP_PASS"`
	FromEmail   string        `yaml:"from" env:"FROM_EMAIL"`
	SMTPTimeout time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT" env-default:"10s"`
}

// Sweeper структура для настройки ежедневного обхода подписок
type Sweeper struct {
	Schedule       string        `yaml:"schedule" env:"SWEEP_SCHEDULE" env-default:"0 0 * * *"`
	Horizon        time.Duration `yaml:"horizon" env:"SWEEP_HORIZON" env-default:"72h"`
	RunTimeout     time.Duration `yaml:"run_timeout" env-default:"30m"`
	MetricsAddress string        `yaml:"metrics_address" env:"SWEEP_METRICS_ADDRESS"`
}

// RateLimit структура для настройки ограничения частоты запросов к API
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"10"`
	Burst int     `yaml:"burst" env-default:"20"`
}

// SMTPConfigured сообщает, заданы ли учетные данные для отправки писем.
func (s SMTP) SMTPConfigured() bool {
	return s.SMTPUser != "" && s.SMTPPass != "" && s.FromEmail != ""
}

// Load читает .env (если он есть) и конфиг по пути из CONFIG_PATH.
func Load() (*Config, error) {
	const op = "config.Load"

	// .env необязателен
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return nil, fmt.Errorf("%s: CONFIG_PATH is not set", op)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file: %s - does not exist", op, configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
	}
	// env-required пропускает пустую, но заданную переменную окружения
	if cfg.StorageConnectionString == "" {
		return nil, fmt.Errorf("%s: storage_connection_string is required", op)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига, завершает процесс при ошибке
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Redis:\n"+
			"  Addr: %s\n"+
			"  CacheTTL: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"SMTP:\n"+
			"  Host: %s:%s\n"+
			"  User: %s\n"+
			"  From: %s\n"+
			"Sweeper:\n"+
			"  Schedule: %s\n"+
			"  Horizon: %s\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.AddressRedis,
		c.CacheTTL,
		mask(c.RabbitMQURL),
		c.SMTPHost, c.SMTPPort,
		c.SMTPUser,
		c.FromEmail,
		c.Schedule,
		c.Horizon,
	)
}

// mask скрывает секреты в строках подключения при выводе конфига
func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
