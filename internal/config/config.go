// Package config reads the server configuration from the environment,
// after loading an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable of the duel server.
type Config struct {
	Port     string
	LogLevel string

	DatabaseDriver string // sqlite | postgres | memory
	DatabasePath   string
	DatabaseURL    string

	JWTSecret    string
	JWTTTL       time.Duration
	CookieName   string
	Production   bool
	ClientOrigin string
	AdminUsers   []string

	WordsFile         string
	SeedWords         bool
	LegacyInvolvement bool

	RateLimitRPS   int
	RateLimitBurst int
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:              getEnv("PORT", "5175"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:    strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/duel.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         getEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTTTL:            time.Duration(getEnvInt("JWT_EXPIRES_DAYS", 14)) * 24 * time.Hour,
		CookieName:        getEnv("COOKIE_NAME", "wordle_token"),
		Production:        os.Getenv("NODE_ENV") == "production",
		ClientOrigin:      getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		AdminUsers:        splitList(os.Getenv("ADMIN_USERS")),
		WordsFile:         os.Getenv("WORDS_FILE"),
		SeedWords:         getEnvBool("SEED_WORDS", true),
		LegacyInvolvement: getEnvBool("LEGACY_INVOLVEMENT", true),
		RateLimitRPS:      getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("invalid int, using default")
		return def
	}
	return n
}

func getEnvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Bool("default", def).Msg("invalid bool, using default")
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
