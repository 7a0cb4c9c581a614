package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ProposalTTL)
	assert.Equal(t, "@every 5m", cfg.Scheduler.SweepSchedule)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Zero(t, cfg.Scheduler.Seed)
}

func TestLoadSchedulerOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_PROPOSAL_TTL", "10m")
	t.Setenv("SCHEDULER_SEED", "42")
	t.Setenv("SCHEDULER_WORKERS", "4")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Scheduler.ProposalTTL)
	assert.Equal(t, int64(42), cfg.Scheduler.Seed)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
