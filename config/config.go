package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultSocketPort = 3001

// Config holds the process configuration, read from the environment.
type Config struct {
	ListenAddr     string
	LogLevel       string
	AllowedOrigins []string
	// WriteTimeout bounds each content-change write; zero means unbounded.
	WriteTimeout time.Duration
	SeedWelcome  bool
	Storage      StorageConfig
}

type StorageConfig struct {
	Type           string
	LocalPath      string
	DataSourceName string
	DatabaseURL    string
	S3Bucket       string
}

// LoadEnvFiles loads .env.local and .env when present. Variables already set win.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			logrus.WithField("file", file).Debug("No env file found")
		}
	}
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:     fmt.Sprintf(":%d", defaultSocketPort),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		Storage: StorageConfig{
			Type:           getEnv("STORAGE_TYPE", "memory"),
			LocalPath:      getEnv("LOCAL_STORAGE_PATH", "./data"),
			DataSourceName: getEnv("DATA_SOURCE_NAME", "hedgedoc.db"),
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			S3Bucket:       os.Getenv("S3_BUCKET_NAME"),
		},
	}

	if port := os.Getenv("SOCKET_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("invalid SOCKET_PORT %q", port)
		}
		cfg.ListenAddr = fmt.Sprintf(":%d", n)
	}

	if raw := os.Getenv("WRITE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid WRITE_TIMEOUT %q", raw)
		}
		cfg.WriteTimeout = d
	}

	if raw := os.Getenv("SEED_WELCOME"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SEED_WELCOME %q", raw)
		}
		cfg.SeedWelcome = b
	}

	if cfg.Storage.Type == "postgres" && cfg.Storage.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set for postgres storage")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
