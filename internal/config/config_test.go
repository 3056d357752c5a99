package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	keys := []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
		"ALLOWED_ORIGINS", "WRITE_TIMEOUT", "SEND_QUEUE_SIZE", "INACTIVITY_TIMEOUT",
		"RATE_LIMIT", "RATE_WINDOW", "BCRYPT_COST",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("WRITE_TIMEOUT", "250ms")
	t.Setenv("RATE_LIMIT", "3")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, 3, cfg.RateLimit)
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"bad port":        {"PORT", "eighty"},
		"bad duration":    {"WRITE_TIMEOUT", "soon"},
		"unknown driver":  {"STORE_DRIVER", "mongo"},
		"postgres no url": {"STORE_DRIVER", "postgres"},
		"zero queue":      {"SEND_QUEUE_SIZE", "0"},
		"bcrypt too high": {"BCRYPT_COST", "99"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
