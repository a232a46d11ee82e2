package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "")
	t.Setenv("APP_MAX_UPLOAD_BYTES", "")
	t.Setenv("APP_RECOMMENDATION_RETENTION_DAYS", "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 20<<20, cfg.MaxUploadBytes)
	assert.Equal(t, 90, cfg.RecommendationRetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.ReconcileSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", ":9090")
	t.Setenv("APP_DB_MAX_OPEN_CONNS", "4")
	t.Setenv("APP_RECOMMENDATION_RETENTION_DAYS", "-3")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	// non-positive values fall back to the default
	assert.Equal(t, 90, cfg.RecommendationRetentionDays)
}

func TestValidateJWTSecret(t *testing.T) {
	cases := map[string]struct {
		env    string
		secret string
		err    error
	}{
		"default secret in production": {env: "", secret: "", err: ErrDefaultJWTSecret},
		"default secret in staging":    {env: "staging", secret: "", err: ErrDefaultJWTSecret},
		"default secret in dev":        {env: "development", secret: ""},
		"explicit secret":              {env: "", secret: "s3cr3t"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", tc.env)
			t.Setenv("APP_JWT_SECRET", tc.secret)

			cfg := Load()
			assert.ErrorIs(t, cfg.Validate(), tc.err)
			assert.Equal(t, tc.secret == "", cfg.InsecureJWTSecret())
		})
	}
}
