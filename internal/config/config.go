package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr              string
	AppID                 string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	JWTSecret             string
	JWTIssuer             string
	SessionToken          string
	StoreDialTimeout      time.Duration
	ShutdownTimeout       time.Duration
	StreamHeartbeat       time.Duration
	StoreHealthJobEnabled bool
	StoreHealthInterval   time.Duration
	StoreHealthTimeout    time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		HTTPAddr:              getenv("HTTP_ADDR", ":8084"),
		AppID:                 os.Getenv("APP_ID"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTIssuer:             getenv("JWT_ISSUER", "lectern-identity"),
		SessionToken:          os.Getenv("SESSION_TOKEN"),
		StoreDialTimeout:      getenvDuration("STORE_DIAL_TIMEOUT", 5*time.Second),
		ShutdownTimeout:       getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		StreamHeartbeat:       getenvDuration("STREAM_HEARTBEAT", 30*time.Second),
		StoreHealthJobEnabled: getenvBool("STORE_HEALTH_JOB_ENABLED", true),
		StoreHealthInterval:   getenvDuration("STORE_HEALTH_INTERVAL", 30*time.Second),
		StoreHealthTimeout:    getenvDuration("STORE_HEALTH_TIMEOUT", 10*time.Second),
	}
}

// Validate reports the credentials the portal cannot start without. A missing
// value here is fatal at startup; everything else degrades at runtime instead.
func (c Config) Validate() error {
	var missing []string
	if c.AppID == "" {
		missing = append(missing, "APP_ID")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
