package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kishkumen?sslmode=disable")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.False(t, cfg.RegistrationApproval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.BootstrapAdminEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/kishkumen")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REGISTRATION_APPROVAL", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RECONCILE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.RegistrationApproval)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		JWTSecret:          "0123456789abcdef0123",
		ServerPort:         8080,
		TokenTTL:           time.Hour,
		RateLimitPerMinute: 10,
		ReconcileInterval:  time.Minute,
	}
	require.NoError(t, base.Validate())

	short := base
	short.JWTSecret = "short"
	assert.Error(t, short.Validate())

	noLimit := base
	noLimit.RateLimitPerMinute = 0
	assert.Error(t, noLimit.Validate())

	approval := base
	approval.RegistrationApproval = true
	assert.Error(t, approval.Validate())
}
