package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	GatewayFake = "fake"
	GatewayHTTP = "http"
)

type Config struct {
	Env                      string
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RunMigrations            bool
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	InventoryCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	PaymentGateway           string
	GatewayBaseURL           string
	GatewayKeyID             string
	GatewayKeySecret         string
	Currency                 string
	SettingsPath             string
	LogLevel                 string
	LogFormat                string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars win over it.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:                      getEnv("APP_ENV", "development"),
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RunMigrations:            getEnvBool("RUN_MIGRATIONS", true),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0, 0),
		InventoryCacheTTLSeconds: getEnvInt("INVENTORY_CACHE_TTL_SECONDS", 30, 1),
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		PaymentGateway:           strings.ToLower(getEnv("PAYMENT_GATEWAY", GatewayFake)),
		GatewayBaseURL:           strings.TrimRight(os.Getenv("GATEWAY_BASE_URL"), "/"),
		GatewayKeyID:             strings.TrimSpace(os.Getenv("GATEWAY_KEY_ID")),
		GatewayKeySecret:         strings.TrimSpace(os.Getenv("GATEWAY_KEY_SECRET")),
		Currency:                 strings.ToUpper(getEnv("CURRENCY", "INR")),
		SettingsPath:             getEnv("SETTINGS_PATH", "data/settings.json"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                os.Getenv("LOG_FORMAT"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Validate rejects configurations that would start an insecure or
// half-configured server.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch c.PaymentGateway {
	case GatewayFake:
	case GatewayHTTP:
		if c.GatewayBaseURL == "" {
			return fmt.Errorf("GATEWAY_BASE_URL is required when PAYMENT_GATEWAY=http")
		}
		if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
			return fmt.Errorf("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required when PAYMENT_GATEWAY=http")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.PaymentGateway)
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}
