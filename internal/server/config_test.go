package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 8192, cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 5 * time.Second}, cfg.FixRateLimit)
	assert.Equal(t, 10*time.Second, cfg.AuthTimeout)
	assert.Equal(t, 10*time.Second, cfg.OutsideGrace)
	assert.Equal(t, 10*time.Minute, cfg.UnboundSessionTTL)
	assert.EqualValues(t, 90, cfg.DefaultRadius)
	assert.Equal(t, "places.json", cfg.VenuesFile)
	assert.Empty(t, cfg.AdminKey)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("FIX_RATE_LIMIT_REFILL_INTERVAL", "30s")
	t.Setenv("OUTSIDE_GRACE", "15s")
	t.Setenv("ADMIN_KEY", "k")
	t.Setenv("BASE_URL", "https://geo.example/ ")
	t.Setenv("VENUES_SQLITE", "/var/lib/geochat/venues.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 30*time.Second, cfg.FixRateLimit.RefillInterval)
	assert.Equal(t, 15*time.Second, cfg.OutsideGrace)
	assert.Equal(t, "k", cfg.AdminKey)
	assert.Equal(t, "https://geo.example", cfg.BaseURL)
	assert.Equal(t, "/var/lib/geochat/venues.db", cfg.VenuesSQLite)
}

func TestLoadConfigSanitizesNonPositiveValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("AUTH_TIMEOUT", "0s")
	t.Setenv("DEFAULT_RADIUS", "-5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.EqualValues(t, 8192, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, 10*time.Second, cfg.AuthTimeout)
	assert.EqualValues(t, 90, cfg.DefaultRadius)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("AUTH_TIMEOUT", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}
