// worker 运行 publish、scrape、notify 三个队列
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/crosspost/internal/infra/llm"
	"github.com/LouYuanbo1/crosspost/internal/infra/metrics"
	"github.com/LouYuanbo1/crosspost/internal/infra/persistence/es"
	"github.com/LouYuanbo1/crosspost/internal/infra/persistence/postgres"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/LouYuanbo1/crosspost/internal/logging"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/platform/plugins"
	"github.com/LouYuanbo1/crosspost/internal/service/dispatch"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/LouYuanbo1/crosspost/internal/service/notify"
	"github.com/LouYuanbo1/crosspost/internal/service/publish"
	"github.com/LouYuanbo1/crosspost/internal/service/scheduler"
	"github.com/LouYuanbo1/crosspost/internal/service/scrape"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// 内置配置,--config 可以替换
//
//go:embed appconfig/appconfig.json
var appConfig []byte

const shutdownTimeout = 2 * time.Minute

func main() {
	var opts config.Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg, err := opts.Resolve(appConfig)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	entry := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts.Broker, entry); err != nil {
		entry.WithError(err).Fatal("worker 异常退出")
	}
}

func run(ctx context.Context, cfg *config.Config, brokerKind string, logger *logrus.Entry) error {
	store, err := postgres.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	results, err := es.InitResultsStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
	}
	if err := results.CreateIndices(ctx); err != nil {
		return err
	}

	broker, err := queue.Open(ctx, brokerKind, cfg.Redis.URL, cfg.Redis.Prefix)
	if err != nil {
		return err
	}
	defer broker.Close()
	jobs := jobqueue.New(broker, cfg.QueueConfigs(), logger)
	fanout := notify.NewFanout(jobs, logger)

	// 停机期间进行中的任务还要跑完、事件还要发出,不能跟随信号取消
	runCtx := context.WithoutCancel(ctx)

	engine, err := newEngine(runCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	defer engine.Close()

	sessions := session.NewFactory(cfg, engine, logger)
	sessions.Options.OnIntervention = fanout.InterventionAlert
	registry := plugins.NewRegistry()
	executor := platform.NewExecutor(sessions, logger)

	fetcher, err := collector.InitCollyFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化静态抓取失败: %w", err)
	}

	pubDeps := publish.Deps{
		Articles:    store.Articles,
		Credentials: store.Credentials,
		Registry:    registry,
		Executor:    executor,
		Fanout:      fanout,
		Logger:      logger,
	}
	if cfg.LLM.Host != "" {
		summarizer, err := llm.InitSummarizer(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Warn("摘要模型不可用,改为截断正文")
		} else {
			pubDeps.Summarizer = summarizer
		}
	}
	publisher := publish.New(pubDeps, publish.Options{
		PolitenessDelay: cfg.Publish.PolitenessDelay.Std(),
		SummaryMaxRunes: cfg.Publish.SummaryMaxRunes,
	})
	scraper := scrape.New(scrape.Deps{
		Articles: store.Articles,
		Results:  results,
		Registry: registry,
		Executor: executor,
		Fetcher:  fetcher,
		Fanout:   fanout,
		Logger:   logger,
	}, scrape.Options{
		PolitenessDelay: cfg.Scrape.PolitenessDelay.Std(),
		MaxComments:     cfg.Scrape.MaxComments,
	})

	var channels []notify.Channel
	if cfg.Notify.TelegramToken != "" {
		channels = append(channels, notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.OperatorChatID))
	}
	notifier := notify.NewProcessor(store.Notifications, store.Users, channels, logger)

	for name, p := range map[string]jobqueue.Processor{
		model.QueuePublish: publisher,
		model.QueueScrape:  scraper,
		model.QueueNotify:  notifier,
	} {
		if err := jobs.Register(name, p); err != nil {
			return err
		}
	}

	meter, err := metrics.NewCollector()
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := meter.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.WithError(err).Error("指标服务退出")
			}
		}()
	}

	dispatched := make(chan struct{})
	dispatcher := dispatch.New(meter, fanout, logger)
	go func() {
		dispatcher.Run(runCtx, jobs.Events())
		close(dispatched)
	}()

	if err := jobs.Start(runCtx); err != nil {
		return err
	}

	sweeper := scheduler.NewSweeper(store.Articles, jobs, registry, scheduler.Options{
		Interval:  cfg.Scrape.SweepInterval.Std(),
		Stagger:   cfg.Scrape.SweepStagger.Std(),
		BatchSize: cfg.Scrape.SweepBatchSize,
		Platforms: cfg.Scrape.SweepPlatforms,
	}, logger)
	go sweeper.Run(ctx)

	logger.WithFields(logrus.Fields{"engine": cfg.Browser.Engine, "broker": brokerKind}).Info("worker 已启动")
	<-ctx.Done()
	logger.Info("收到退出信号,等待进行中的任务")

	shutdownCtx, cancel := context.WithTimeout(runCtx, shutdownTimeout)
	defer cancel()
	err = jobs.ShutdownGracefully(shutdownCtx)
	<-dispatched
	return err
}

func newEngine(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (browser.Engine, error) {
	if cfg.Browser.Engine == "chromedp" {
		return browser.InitChromedpEngine(ctx, cfg, logger)
	}
	return browser.InitRodEngine(cfg, logger)
}
