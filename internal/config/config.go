package config

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Port          string
	MQTTBrokerURL string
	MQTTClientID  string
	LogLevel      string
	RedisAddr     string
	RedisPassword string
	Postgres      DBConfig
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("ORTUS_HUB_PORT", "8090"),
		MQTTBrokerURL: strings.TrimSpace(os.Getenv("MQTT_BROKER_URL")),
		MQTTClientID:  getEnv("ORTUS_HUB_MQTT_CLIENT_ID", "ortus-hub"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Postgres: DBConfig{
			User:     strings.TrimSpace(os.Getenv("POSTGRES_USER")),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   strings.TrimSpace(os.Getenv("POSTGRES_DB")),
			Host:     strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
			Port:     strings.TrimSpace(os.Getenv("POSTGRES_PORT")),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}

	slog.Info("ortus-hub config loaded", "port", cfg.Port, "mqtt", cfg.MQTTBrokerURL, "redis", cfg.RedisAddr)
	return cfg
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
