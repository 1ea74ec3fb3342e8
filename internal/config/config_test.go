package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"redis": {"url": "redis://localhost:6379/0"}}`))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.Development())
	assert.Equal(t, "rod", cfg.Browser.Engine)
	assert.Equal(t, 2, cfg.Queues.Publish.Concurrency)
	assert.Equal(t, 3, cfg.Queues.Publish.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Queues.Publish.BackoffBase.Std())
	assert.Equal(t, 5, cfg.Browser.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Publish.PolitenessDelay.Std())
	assert.Equal(t, "crosspost", cfg.Redis.Prefix)
}

func TestParseConfigDurations(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"env": "development",
		"queues": {"scrape": {"concurrency": 4, "backoff_base": "1m", "poll_interval": 0.5}},
		"publish": {"politeness_delay": 20}
	}`))
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, 4, cfg.Queues.Scrape.Concurrency)
	assert.Equal(t, time.Minute, cfg.Queues.Scrape.BackoffBase.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Queues.Scrape.PollInterval.Std())
	assert.Equal(t, 20*time.Second, cfg.Publish.PolitenessDelay.Std())
}

func TestParseConfigRejectsUnknownEngine(t *testing.T) {
	_, err := ParseConfig([]byte(`{"browser": {"engine": "selenium"}}`))
	require.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: development
browser:
  engine: chromedp
  headless: true
  manual_wait: 90s
queues:
  notify:
    concurrency: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chromedp", cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 90*time.Second, cfg.Browser.ManualWait.Std())
	assert.Equal(t, 8, cfg.Queues.Notify.Concurrency)
}

func TestOptionsApply(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)

	opts := Options{Env: "development", Headless: "true", Engine: "chromedp", RedisURL: "redis://r:6379/1"}
	require.NoError(t, opts.Apply(cfg))

	assert.True(t, cfg.Development())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "chromedp", cfg.Browser.Engine)
	assert.Equal(t, "redis://r:6379/1", cfg.Redis.URL)
}

func TestOptionsResolve(t *testing.T) {
	opts := Options{LogLevel: "debug"}
	cfg, err := opts.Resolve([]byte(`{"log": {"level": "warn"}, "scrape": {"sweep_batch_size": 5}}`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Scrape.SweepBatchSize)

	path := filepath.Join(t.TempDir(), "app.yml")
	require.NoError(t, os.WriteFile(path, []byte("env: development\n"), 0o644))
	opts = Options{ConfigPath: path}
	cfg, err = opts.Resolve([]byte(`{"env": "production"}`))
	require.NoError(t, err)
	assert.True(t, cfg.Development(), "配置文件优先于内置配置")

	cfg, err = (&Options{}).Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}
