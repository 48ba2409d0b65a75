package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingPathReturnsEmptyFile(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, f.BufferSize)
}

func TestLoadNonexistentPathReturnsEmptyFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Zero(t, f.BufferSize)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netdumpd.yaml")
	contents := "client_timeout: 5m\nbuffer_size: 262144\nmax_dumps: 64\nmax_payload: 1024\nmetrics_listen: 127.0.0.1:9090\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5m", f.ClientTimeout)
	assert.Equal(t, 262144, f.BufferSize)
	assert.Equal(t, 64, f.MaxDumps)
	assert.Equal(t, 1024, f.MaxPayload)
	assert.Equal(t, "127.0.0.1:9090", f.MetricsListen)
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_timeout: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationFallback(t *testing.T) {
	assert.Equal(t, 10*time.Second, Duration("", 10*time.Second))
	assert.Equal(t, 10*time.Second, Duration("not-a-duration", 10*time.Second))
	assert.Equal(t, 30*time.Second, Duration("30s", 10*time.Second))
}
