package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	AppName string `env:"APP_NAME" env-default:"chatserver"`
	Env     string `env:"APP_ENV" env-default:"local"`
	Host    string `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port    int    `env:"HTTP_PORT" env-default:"8000"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-default:"http://localhost:3000,http://localhost:5173"`

	// JWTSecret verifies the bearer tokens minted for identity-provider
	// sessions; WebhookSecret authenticates the provider's webhook pushes.
	JWTSecret          string `env:"JWT_SECRET" env-required:"true"`
	WebhookSecret      string `env:"IDENTITY_WEBHOOK_SECRET" env-required:"true"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" env-default:"1440"`

	DB    DBConfig
	Redis RedisConfig
	S3    S3Config
}

type DBConfig struct {
	Driver string `env:"DB_DRIVER" env-default:"sqlite"`
	DSN    string `env:"DB_DSN" env-default:"chatserver.db"`
}

// RedisConfig is optional: with no address the presence registry runs
// in-process.
type RedisConfig struct {
	Addr               string `env:"REDIS_ADDR" env-default:""`
	Password           string `env:"REDIS_PASSWORD" env-default:""`
	DB                 int    `env:"REDIS_DB" env-default:"0"`
	PresenceTTLMinutes int    `env:"PRESENCE_TTL_MINUTES" env-default:"5"`
}

type S3Config struct {
	Endpoint         string `env:"S3_ENDPOINT" env-default:"localhost:9000"`
	User             string `env:"S3_USER" env-default:"minioadmin"`
	Password         string `env:"S3_PASSWORD" env-default:"minioadmin"`
	Bucket           string `env:"S3_BUCKET" env-default:"chat-media"`
	UseSSL           bool   `env:"S3_USE_SSL" env-default:"false"`
	URLExpireMinutes int    `env:"S3_URL_EXPIRE_MINUTES" env-default:"60"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch cfg.DB.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
