package config

import "fmt"

// Options 命令行和环境变量覆盖项,由 go-flags 解析
type Options struct {
	ConfigPath  string `long:"config" env:"CROSSPOST_CONFIG" description:"配置文件路径(json/yaml),为空时使用内置配置"`
	Env         string `long:"env" env:"CROSSPOST_ENV" description:"运行环境: development/production"`
	LogLevel    string `long:"log-level" env:"CROSSPOST_LOG_LEVEL" description:"日志级别"`
	LogFormat   string `long:"log-format" env:"CROSSPOST_LOG_FORMAT" choice:"text" choice:"json" description:"日志格式"`
	RedisURL    string `long:"redis-url" env:"CROSSPOST_REDIS_URL" description:"Redis 地址, 例如 redis://localhost:6379/0"`
	Broker      string `long:"broker" env:"CROSSPOST_BROKER" default:"redis" choice:"redis" choice:"memory" description:"队列存储"`
	Headless    string `long:"headless" env:"CROSSPOST_HEADLESS" choice:"true" choice:"false" description:"覆盖浏览器无头模式"`
	Engine      string `long:"engine" env:"CROSSPOST_ENGINE" choice:"rod" choice:"chromedp" description:"浏览器驱动"`
	PostgresDSN string `long:"postgres-dsn" env:"CROSSPOST_POSTGRES_DSN" description:"Postgres 连接串"`
	MetricsAddr string `long:"metrics-addr" env:"CROSSPOST_METRICS_ADDR" description:"Prometheus 指标监听地址"`
}

// Apply 用非空的命令行参数覆盖配置文件里的值
func (o *Options) Apply(cfg *Config) error {
	if o.Env != "" {
		cfg.Env = o.Env
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.RedisURL != "" {
		cfg.Redis.URL = o.RedisURL
	}
	switch o.Headless {
	case "true":
		cfg.Browser.Headless = true
	case "false":
		cfg.Browser.Headless = false
	}
	if o.Engine != "" {
		cfg.Browser.Engine = o.Engine
	}
	if o.PostgresDSN != "" {
		cfg.Postgres.DSN = o.PostgresDSN
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
	return cfg.Validate()
}

// Resolve 读取 --config 指定的文件,没有时使用内置配置,最后应用命令行覆盖
func (o *Options) Resolve(embedded []byte) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch {
	case o.ConfigPath != "":
		cfg, err = Load(o.ConfigPath)
	case len(embedded) > 0:
		cfg, err = ParseConfig(embedded)
	default:
		cfg, err = ParseConfig([]byte("{}"))
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := o.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
