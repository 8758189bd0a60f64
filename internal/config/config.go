package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                    string
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	PricingCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	SageAPIURL             string
	SageAPIKey             string
	SageAPITimeoutSeconds  int
	LogLevel               string
}

// Load reads configuration from the environment. Outside production a local
// .env file, when present, overrides the process environment.
func Load() Config {
	if strings.ToLower(os.Getenv("ENV")) != "production" {
		_ = godotenv.Overload(".env")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Env:                    getEnv("ENV", "development"),
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		PricingCacheTTLSeconds: positiveInt("PRICING_CACHE_TTL_SECONDS", 60),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		SageAPIURL:             strings.TrimRight(strings.TrimSpace(os.Getenv("SAGE_API_URL")), "/"),
		SageAPIKey:             strings.TrimSpace(os.Getenv("SAGE_API_KEY")),
		SageAPITimeoutSeconds:  positiveInt("SAGE_API_TIMEOUT_SECONDS", 15),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
