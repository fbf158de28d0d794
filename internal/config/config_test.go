package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "justremotephone", cfg.SMS.Provider)
	assert.Equal(t, 5*time.Second, cfg.Queue.Interval)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 10*time.Minute+30*time.Second, cfg.Status.Timeout)
	assert.Equal(t, 1024, cfg.Status.MaxOrphans)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.Window())
	assert.Equal(t, []string{"inbound", "status"}, cfg.Webhook.Events)
	assert.Equal(t, 3, cfg.ETxt.Breaker.FailThreshold)
}

func TestLoad_FileOverridesAndClamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
sms:
  provider: ETXT
  callback_base_url: "https://bridge.example/"
queue:
  interval: 100ms
  batch_size: 0
archive:
  driver: MySQL
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "etxt", cfg.SMS.Provider)
	assert.Equal(t, "https://bridge.example", cfg.SMS.CallbackBaseURL)
	assert.Equal(t, time.Second, cfg.Queue.Interval)
	assert.Equal(t, 1, cfg.Queue.BatchSize)
	assert.Equal(t, "mysql", cfg.Archive.Driver)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_UnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sms:\n  provider: carrier-pigeon\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported sms provider")
}

func TestInboxPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "box.json"), InboxConfig{Dir: "data", File: "box.json"}.Path())

	p := InboxConfig{Dir: "data"}.Path()
	assert.Equal(t, "data", filepath.Dir(p))
	assert.Contains(t, filepath.Base(p), "_received_sms.json")
}
