package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseConfig 解析 JSON 配置并补齐默认值
func ParseConfig(byteConfig []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(byteConfig, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// ParseYAML 解析 YAML 配置并补齐默认值
func ParseYAML(byteConfig []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(byteConfig, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// Load 按扩展名选择解析器
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseConfig(data)
	}
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if cfg.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(cfg.Browser.UserDataDir)
		if err != nil {
			return nil, err
		}
		cfg.Browser.UserDataDir = absPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "production"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "crosspost"
	}

	queueDefaults(&cfg.Queues.Publish, 2, 3, 30*time.Second)
	queueDefaults(&cfg.Queues.Scrape, 3, 3, 10*time.Second)
	queueDefaults(&cfg.Queues.Notify, 5, 5, 2*time.Second)

	b := &cfg.Browser
	if b.Engine == "" {
		b.Engine = "rod"
	}
	if b.PoolSize <= 0 {
		b.PoolSize = cfg.Queues.Publish.Concurrency + cfg.Queues.Scrape.Concurrency
	}
	if b.Locale == "" {
		b.Locale = "zh-CN"
	}
	if b.DisableBlinkFeatures == "" {
		b.DisableBlinkFeatures = "AutomationControlled"
	}
	setDuration(&b.NavigationTimeout, 30*time.Second)
	setDuration(&b.ElementTimeout, 10*time.Second)
	setDuration(&b.ManualWait, 3*time.Minute)
	setDuration(&b.ManualPollInterval, 2*time.Second)
	setDuration(&b.ActionDelayMin, 300*time.Millisecond)
	setDuration(&b.ActionDelayMax, 1200*time.Millisecond)
	if b.ScreenshotDir == "" {
		b.ScreenshotDir = "screenshots"
	}

	setDuration(&cfg.Publish.PolitenessDelay, 10*time.Second)
	if cfg.Publish.SummaryMaxRunes <= 0 {
		cfg.Publish.SummaryMaxRunes = 100
	}

	setDuration(&cfg.Scrape.PolitenessDelay, 3*time.Second)
	if cfg.Scrape.MaxComments <= 0 {
		cfg.Scrape.MaxComments = 100
	}
	setDuration(&cfg.Scrape.SweepStagger, 30*time.Second)
	if cfg.Scrape.SweepBatchSize <= 0 {
		cfg.Scrape.SweepBatchSize = 20
	}

	if cfg.Colly.Timeout <= 0 {
		cfg.Colly.Timeout = 15
	}
	if cfg.Postgres.MaxOpenConns <= 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Elasticsearch.IndexPrefix == "" {
		cfg.Elasticsearch.IndexPrefix = "crosspost-"
	}
	setDuration(&cfg.LLM.Timeout, 60*time.Second)
}

func queueDefaults(q *QueueConfig, concurrency, attempts int, backoff time.Duration) {
	if q.Concurrency <= 0 {
		q.Concurrency = concurrency
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = attempts
	}
	setDuration(&q.BackoffBase, backoff)
	setDuration(&q.BackoffMax, 30*time.Minute)
	setDuration(&q.LockDuration, 5*time.Minute)
	setDuration(&q.StalledInterval, 30*time.Second)
	setDuration(&q.PollInterval, time.Second)
}

func setDuration(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}

// Validate 检查无法给出合理默认值的配置
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("不支持的浏览器引擎: %s", c.Browser.Engine)
	}
	if c.Browser.ActionDelayMax < c.Browser.ActionDelayMin {
		return fmt.Errorf("action_delay_max 不能小于 action_delay_min")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("不支持的日志格式: %s", c.Log.Format)
	}
	return nil
}
