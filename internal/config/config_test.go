package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
env: dev
jwt:
  secret: test-secret
  access_ttl: 10m
email:
  batch_size: 0
  max_attempts: 5
scheduler:
  dispatch_spec: "@every 30s"
storage:
  questionnaires: memory
rate_limit:
  trusted_proxies: ["10.0.0.0/8"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 360*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, 50, cfg.Email.BatchSize)
	assert.Equal(t, 5, cfg.Email.MaxAttempts)
	assert.Equal(t, "@every 30s", cfg.Scheduler.DispatchSpec)
	assert.Equal(t, "@every 15m", cfg.Scheduler.RemindersSpec)
	assert.Equal(t, "memory", cfg.Storage.Questionnaires)
	assert.Equal(t, int64(1), cfg.Storage.SeedOrganizationID)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.RateLimit.TrustedProxies)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			JWT:     JWTConfig{Secret: "s"},
			SMTP:    SMTPConfig{Sender: "log"},
			Storage: StorageConfig{Questionnaires: "postgres"},
			Email:   EmailConfig{BatchSize: 10, MaxAttempts: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "jwt.secret"},
		{name: "bad store", mutate: func(c *Config) { c.Storage.Questionnaires = "redis" }, wantErr: "storage.questionnaires"},
		{name: "bad sender", mutate: func(c *Config) { c.SMTP.Sender = "carrier-pigeon" }, wantErr: "smtp.sender"},
		{name: "smtp without host", mutate: func(c *Config) { c.SMTP.Sender = "smtp" }, wantErr: "smtp.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{EnvLocal, EnvDev, EnvProd} {
		assert.NotNil(t, NewLogger(env))
	}
}
