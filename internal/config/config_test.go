package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "heuristic", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.OpenAIModel)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Parser.Timezone)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:test.db"
	cfg.Auth.JWTSecret = "s3cret"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Database.Driver)
	assert.Equal(t, "file:test.db", loaded.Database.DSN)
	assert.Equal(t, "s3cret", loaded.Auth.JWTSecret)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HTTP.Addr, cfg.HTTP.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("legacy db variables", func(t *testing.T) {
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_PORT", "6543")
		t.Setenv("DB_USER", "app")
		t.Setenv("DB_NAME", "schedule")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6543, cfg.Database.Port)
		assert.Contains(t, cfg.ConnString(), "host=db.internal port=6543 user=app")
		assert.Contains(t, cfg.ConnString(), "dbname=schedule")
	})

	t.Run("bad port keeps default", func(t *testing.T) {
		t.Setenv("DB_PORT", "abc")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 5432, cfg.Database.Port)
	})

	t.Run("provider is lower-cased", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "Gemini")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gemini", cfg.AI.Provider)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), "host or dsn")

	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.Auth.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.AI.Provider = "openai"
	assert.Error(t, cfg.Validate())
}

func TestResolveBaseURL(t *testing.T) {
	c := DefaultConfig().Client

	u, err := c.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", u)

	c.Environment = "production"
	u, err = c.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://api.schedule.local", u)

	c.BaseURL = "http://override:9000/"
	u, err = c.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", u)

	c.BaseURL = ""
	c.Environment = "qa"
	_, err = c.ResolveBaseURL()
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("", 5*time.Second))
	assert.Equal(t, 5*time.Second, Duration("bogus", 5*time.Second))
	assert.Equal(t, 700*time.Millisecond, Duration("700ms", time.Second))
}
