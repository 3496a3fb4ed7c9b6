package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewWiresDefaults(t *testing.T) {
	cfg := baseConfig(t)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Broadcaster)
	assert.NotNil(t, a.Server)
	assert.Nil(t, a.Scheduler)

	running, results := a.Orchestrator.Status()
	assert.False(t, running)
	assert.Empty(t, results)
}

func TestNewEnablesScheduler(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Cron = "@every 1h"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.NotNil(t, a.Scheduler)
}

func TestNewRejectsBadCron(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Cron = "not a schedule"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewLocalArchive(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.BaseDir = t.TempDir()

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), baseConfig(t), nil)
	require.NoError(t, err)
	a.Close()
	a.Close()
}
