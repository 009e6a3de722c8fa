package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv       string
	Port         string
	DatabaseURL  string
	AppPublicURL string

	// Object storage (S3-compatible). When StorageEndpoint is empty the
	// service falls back to the local filesystem store rooted at StoragePath.
	StorageRegion          string
	StorageEndpoint        string
	StorageAccessKeyID     string
	StorageSecretAccessKey string
	StorageBucket          string
	StoragePublicBaseURL   string
	StorageUseSSL          bool
	StoragePath            string

	// Generative gateway.
	GatewayAPIKey  string
	GatewayBaseURL string
	GatewayModel   string

	NativeAppBaseURL string

	CORSAllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AppPublicURL: os.Getenv("APP_PUBLIC_URL"),

		StorageRegion:          getEnv("R2_REGION", "auto"),
		StorageEndpoint:        os.Getenv("R2_ENDPOINT"),
		StorageAccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		StorageSecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		StorageBucket:          getEnv("R2_BUCKET_NAME", "genie-bucket"),
		StoragePublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		StorageUseSSL:          getEnvBool("R2_USE_SSL", true),
		StoragePath:            getEnv("STORAGE_PATH", "./data/storage"),

		GatewayAPIKey:  os.Getenv("AI_GATEWAY_API_KEY"),
		GatewayBaseURL: getEnv("AI_GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh/v1"),
		GatewayModel:   getEnv("AI_GATEWAY_MODEL", "google/gemini-3-pro-image"),

		NativeAppBaseURL: os.Getenv("NATIVE_APP_BASE_URL"),

		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
