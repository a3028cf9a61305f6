package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeTemp(t, `{"server_endpoint_addr":"10.0.0.1:7000","request_timeout":"3s"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7000", cfg.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	// untouched field keeps its default
	assert.NotEmpty(t, cfg.SessionPath)
}

func TestLoad_NanosecondDuration(t *testing.T) {
	path := writeTemp(t, `{"request_timeout":2000000000}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeTemp(t, `{not json`))
	assert.Error(t, err)
}
