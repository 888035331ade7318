package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 24, cfg.Bid.CandidateBudget)
	assert.Equal(t, 2*time.Second, cfg.Bid.SearchBudget)
	assert.Equal(t, SessionBackendMemory, cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.InDelta(t, 0.6, cfg.Bid.ConfidenceThreshold, 1e-9)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.OpTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BID_CANDIDATE_BUDGET", "8")
	t.Setenv("BID_SEARCH_BUDGET", "250ms")
	t.Setenv("BID_SESSION_BACKEND", "REDIS")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Bid.CandidateBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.Bid.SearchBudget)
	assert.Equal(t, SessionBackendRedis, cfg.Session.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Minute))
}
