package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, CorruptAbort, cfg.OnCorruptState)
	assert.False(t, cfg.NotifyEvents)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Exists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".autobackup"), 0755))
	content := `poll_interval: 2
on_corrupt_state: discard
notify_events: true
logging:
  level: debug
  format: json
metrics:
  addr: 127.0.0.1:9464
webhooks:
  - url: http://example.invalid/hook
    secret: s3cret
    events: [file.versioned]
`
	require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Interval())
	assert.Equal(t, CorruptDiscard, cfg.CorruptPolicy())
	assert.True(t, cfg.NotifyEvents)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"file.versioned"}, cfg.Webhooks[0].Events)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "poll_interval: [",
		"bad policy":     "on_corrupt_state: ignore\n",
		"webhook no url": "webhooks:\n  - secret: x\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(dir, ".autobackup"), 0755))
			require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.PollInterval = 9
	cfg.Webhooks = []WebhookConfig{{URL: "http://localhost/x"}}
	require.NoError(t, Save(dir, cfg))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestInterval_NonPositiveFallsBack(t *testing.T) {
	for _, v := range []int{0, -3} {
		cfg := &Config{PollInterval: v}
		assert.Equal(t, 5*time.Second, cfg.Interval())
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()
	for key, value := range map[string]string{
		"poll_interval":    "12",
		"on_corrupt_state": "discard",
		"notify_events":    "true",
		"logging.level":    "warn",
		"logging.format":   "json",
		"metrics.addr":     ":9000",
	} {
		require.NoError(t, cfg.Set(key, value), key)
		got, err := cfg.Get(key)
		require.NoError(t, err)
		assert.Equal(t, value, got, key)
	}

	assert.Error(t, cfg.Set("poll_interval", "soon"))
	assert.Error(t, cfg.Set("notify_events", "maybe"))
	assert.Error(t, cfg.Set("on_corrupt_state", "ignore"))
	assert.Error(t, cfg.Set("engine", "x"))
	_, err := cfg.Get("engine")
	assert.Error(t, err)
}
