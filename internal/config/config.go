package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	HTTPPort           string
	DatabaseDSN        string
	JWTSecret          string
	CORSOrigins        string
	RedisAddr          string
	GroupSweepInterval time.Duration // empty-group purge cadence
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=prodbudget port=5432 sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
	}

	sweep := getEnv("GROUP_SWEEP_INTERVAL", "5m")
	d, err := time.ParseDuration(sweep)
	if err != nil {
		log.Fatalf("[FATAL] GROUP_SWEEP_INTERVAL %q is not a duration: %v", sweep, err)
	}
	cfg.GroupSweepInterval = d

	// production safety checks
	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set; it is required.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters.")
	}
	if cfg.DatabaseDSN == "host=localhost user=postgres password=postgres dbname=prodbudget port=5432 sslmode=disable" {
		log.Println("[WARN] DATABASE_DSN is using the default value; set your own Postgres connection for production.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value; set your own domain for production.")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
