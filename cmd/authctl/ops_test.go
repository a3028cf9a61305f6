package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpsFlags_Load(t *testing.T) {
	f := opsFlags{dsn: "postgres://x/y", grace: time.Hour, batchSize: 7}

	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x/y", cfg.DatabaseDSN)
	assert.Equal(t, time.Hour, cfg.UnverifiedGracePeriod)
	assert.Equal(t, 7, cfg.SweepBatchSize)
}

func TestOpsFlags_LoadServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_dsn: postgres://from/file\nunverified_grace_period: 24h\n"), 0o600))

	f := opsFlags{serverConfig: path}
	cfg, err := f.load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://from/file", cfg.DatabaseDSN)
	assert.Equal(t, 24*time.Hour, cfg.UnverifiedGracePeriod)
}

func TestOpsFlags_MissingFile(t *testing.T) {
	f := opsFlags{serverConfig: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := f.load()
	assert.Error(t, err)
}
