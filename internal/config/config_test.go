package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_DRIVER", "JWT_EXPIRES_DAYS", "ADMIN_USERS", "SEED_WORDS", "LEGACY_INVOLVEMENT", "NODE_ENV"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "5175", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 14*24*time.Hour, cfg.JWTTTL)
	assert.Empty(t, cfg.AdminUsers)
	assert.True(t, cfg.SeedWords)
	assert.True(t, cfg.LegacyInvolvement)
	assert.False(t, cfg.Production)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("JWT_EXPIRES_DAYS", "2")
	t.Setenv("ADMIN_USERS", " root, ,ops ")
	t.Setenv("SEED_WORDS", "false")
	t.Setenv("LEGACY_INVOLVEMENT", "0")
	t.Setenv("RATE_LIMIT_RPS", "abc")
	t.Setenv("NODE_ENV", "production")
	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 48*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"root", "ops"}, cfg.AdminUsers)
	assert.False(t, cfg.SeedWords)
	assert.False(t, cfg.LegacyInvolvement)
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.True(t, cfg.Production)
}
