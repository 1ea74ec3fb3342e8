// jobctl 运营命令行:提交任务、查看任务状态和失败任务、查询统计历史、写入平台凭证
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/LouYuanbo1/crosspost/internal/logging"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

type app struct {
	Options config.Options `group:"全局选项"`

	ctx    context.Context
	out    io.Writer
	cfg    *config.Config
	logger *logrus.Entry
	jobs   *jobqueue.Service
	closer []func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{ctx: ctx, out: os.Stdout}
	defer a.close()
	if err := a.run(os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		a.close()
		os.Exit(1)
	}
}

func (a *app) run(args []string) error {
	parser := flags.NewParser(a, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "jobctl"
	commands := []struct {
		name, short string
		data        any
	}{
		{"publish", "提交发布/更新/删除任务", &publishCommand{app: a}},
		{"scrape", "提交抓取任务", &scrapeCommand{app: a}},
		{"show", "查看任务状态", &showCommand{app: a}},
		{"failed", "列出重试用尽的任务", &failedCommand{app: a}},
		{"stats", "查询文章的统计历史", &statsCommand{app: a}},
		{"credential", "保存平台登录凭证", &credentialCommand{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			return err
		}
	}
	_, err := parser.ParseArgs(args)
	return err
}

// setup 在第一个命令执行时加载配置
func (a *app) setup() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := a.Options.Resolve(nil)
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logrus.NewEntry(logger)
	return nil
}

func (a *app) queue() (*jobqueue.Service, error) {
	if err := a.setup(); err != nil {
		return nil, err
	}
	if a.jobs != nil {
		return a.jobs, nil
	}
	broker, err := queue.Open(a.ctx, a.Options.Broker, a.cfg.Redis.URL, a.cfg.Redis.Prefix)
	if err != nil {
		return nil, err
	}
	a.closer = append(a.closer, broker.Close)
	a.jobs = jobqueue.New(broker, a.cfg.QueueConfigs(), a.logger)
	return a.jobs, nil
}

func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		_ = a.closer[i]()
	}
	a.closer = nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
