package config

import "time"

// QueueConfig 单个队列的 worker 数量、重试和租约设置
type QueueConfig struct {
	Concurrency     int      `json:"concurrency" yaml:"concurrency"`
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`
	BackoffBase     Duration `json:"backoff_base" yaml:"backoff_base"`
	BackoffMax      Duration `json:"backoff_max" yaml:"backoff_max"`
	LockDuration    Duration `json:"lock_duration" yaml:"lock_duration"`
	StalledInterval Duration `json:"stalled_interval" yaml:"stalled_interval"`
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
}

type Config struct {
	// development 环境才会保存诊断截图
	Env string `json:"env" yaml:"env"`

	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`

	Redis struct {
		URL    string `json:"url" yaml:"url"`
		Prefix string `json:"prefix" yaml:"prefix"`
	} `json:"redis" yaml:"redis"`

	Queues struct {
		Publish QueueConfig `json:"publish" yaml:"publish"`
		Scrape  QueueConfig `json:"scrape" yaml:"scrape"`
		Notify  QueueConfig `json:"notify" yaml:"notify"`
	} `json:"queues" yaml:"queues"`

	Browser struct {
		// rod 或 chromedp
		Engine               string   `json:"engine" yaml:"engine"`
		Headless             bool     `json:"headless" yaml:"headless"`
		Bin                  string   `json:"bin" yaml:"bin"`
		UserDataDir          string   `json:"user_data_dir" yaml:"user_data_dir"`
		PoolSize             int      `json:"pool_size" yaml:"pool_size"`
		DisableBlinkFeatures string   `json:"disable_blink_features" yaml:"disable_blink_features"`
		DisableDevShmUsage   bool     `json:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
		NoSandbox            bool     `json:"no_sandbox" yaml:"no_sandbox"`
		Leakless             bool     `json:"leakless" yaml:"leakless"`
		Trace                bool     `json:"trace" yaml:"trace"`
		Locale               string   `json:"locale" yaml:"locale"`
		UserAgents           []string `json:"user_agents" yaml:"user_agents"`
		NavigationTimeout    Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
		ElementTimeout       Duration `json:"element_timeout" yaml:"element_timeout"`
		ManualWait           Duration `json:"manual_wait" yaml:"manual_wait"`
		ManualPollInterval   Duration `json:"manual_poll_interval" yaml:"manual_poll_interval"`
		ActionDelayMin       Duration `json:"action_delay_min" yaml:"action_delay_min"`
		ActionDelayMax       Duration `json:"action_delay_max" yaml:"action_delay_max"`
		ScreenshotDir        string   `json:"screenshot_dir" yaml:"screenshot_dir"`
	} `json:"browser" yaml:"browser"`

	Publish struct {
		PolitenessDelay Duration `json:"politeness_delay" yaml:"politeness_delay"`
		SummaryMaxRunes int      `json:"summary_max_runes" yaml:"summary_max_runes"`
	} `json:"publish" yaml:"publish"`

	Scrape struct {
		PolitenessDelay Duration `json:"politeness_delay" yaml:"politeness_delay"`
		MaxComments     int      `json:"max_comments" yaml:"max_comments"`
		SweepInterval   Duration `json:"sweep_interval" yaml:"sweep_interval"`
		SweepStagger    Duration `json:"sweep_stagger" yaml:"sweep_stagger"`
		SweepBatchSize  int      `json:"sweep_batch_size" yaml:"sweep_batch_size"`
		SweepPlatforms  []string `json:"sweep_platforms" yaml:"sweep_platforms"`
	} `json:"scrape" yaml:"scrape"`

	Colly struct {
		UserAgent       string `json:"user_agent" yaml:"user_agent"`
		IgnoreRobotsTxt bool   `json:"ignore_robots_txt" yaml:"ignore_robots_txt"`
		Delay           int    `json:"delay" yaml:"delay"`
		RandomDelay     int    `json:"random_delay" yaml:"random_delay"`
		Timeout         int    `json:"timeout" yaml:"timeout"`
	} `json:"colly" yaml:"colly"`

	Postgres struct {
		DSN          string `json:"dsn" yaml:"dsn"`
		MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	} `json:"postgres" yaml:"postgres"`

	Elasticsearch struct {
		Username    string `json:"username" yaml:"username"`
		Password    string `json:"password" yaml:"password"`
		Address     string `json:"address" yaml:"address"`
		IndexPrefix string `json:"index_prefix" yaml:"index_prefix"`
	} `json:"elasticsearch" yaml:"elasticsearch"`

	LLM struct {
		Host    string   `json:"host" yaml:"host"`
		Port    int      `json:"port" yaml:"port"`
		Model   string   `json:"model" yaml:"model"`
		Timeout Duration `json:"timeout" yaml:"timeout"`
	} `json:"llm" yaml:"llm"`

	Notify struct {
		TelegramToken  string `json:"telegram_token" yaml:"telegram_token"`
		OperatorChatID string `json:"operator_chat_id" yaml:"operator_chat_id"`
	} `json:"notify" yaml:"notify"`

	Metrics struct {
		Addr string `json:"addr" yaml:"addr"`
	} `json:"metrics" yaml:"metrics"`
}

func (c *Config) Development() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Duration 支持 "30s"、"5m" 这样的写法,也兼容纯数字(秒)
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

// QueueConfigs 按队列名返回队列配置
func (c *Config) QueueConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		"publish": c.Queues.Publish,
		"scrape":  c.Queues.Scrape,
		"notify":  c.Queues.Notify,
	}
}
