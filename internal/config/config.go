package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Will-Jameson/portfolio-website/internal/db"
)

type Config struct {
	Port               string
	DatabaseURL        string
	SessionSecret      string
	SeedSource         string
	LoginURL           string
	CorsAllowedOrigins []string
	StorageQuota       int
	CookieSecure       bool
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "blog.db"),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SeedSource:         getEnv("SEED_URL", ""),
		LoginURL:           getEnv("LOGIN_URL", "/admin/login.html"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		StorageQuota:       getEnvInt("STORAGE_QUOTA_BYTES", db.DefaultQuota),
		CookieSecure:       getEnv("COOKIE_SECURE", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, value)
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
