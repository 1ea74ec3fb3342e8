// Package scheduler 定时为已发布文章提交批量统计抓取
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 20

type Options struct {
	Interval time.Duration
	// Stagger 相邻两个批次的启动间隔,避免同时打开多个浏览器
	Stagger   time.Duration
	BatchSize int
	// Platforms 为空时扫描所有支持抓取的平台
	Platforms []string
}

type Sweeper struct {
	articles ports.ArticleStore
	queue    ports.Enqueuer
	registry *platform.Registry
	opts     Options
	logger   *logrus.Entry
	now      func() time.Time
}

func NewSweeper(articles ports.ArticleStore, queue ports.Enqueuer, registry *platform.Registry, opts Options, logger *logrus.Entry) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Sweeper{
		articles: articles,
		queue:    queue,
		registry: registry,
		opts:     opts,
		logger:   logger.WithField("component", "sweeper"),
		now:      time.Now,
	}
}

// Run 启动时先扫一次,之后按 Interval 执行,直到 ctx 结束。Interval 为 0 时不运行。
func (s *Sweeper) Run(ctx context.Context) {
	if s.opts.Interval <= 0 {
		s.logger.Info("未配置定时抓取")
		return
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Warn("定时抓取提交失败")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep 按平台分批提交 batch-stats 任务,返回提交的任务数。
// 单个平台出错不影响其它平台,最后返回第一个错误。
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	round := s.now().Unix()
	var (
		submitted int
		firstErr  error
	)
	for _, id := range s.platforms() {
		articles, err := s.articles.ListPublished(ctx, id, 0)
		if err != nil {
			s.logger.WithError(err).WithField("platform", id).Warn("查询已发布文章失败")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", id, err)
			}
			continue
		}
		for start := 0; start < len(articles); start += s.opts.BatchSize {
			end := min(start+s.opts.BatchSize, len(articles))
			ids := make([]string, 0, end-start)
			for _, a := range articles[start:end] {
				ids = append(ids, a.ID)
			}
			data := model.ScrapeJobData{Type: model.ScrapeBatchStats, Platform: id, ArticleIDs: ids}
			opts := jobqueue.EnqueueOptions{
				Delay: time.Duration(submitted) * s.opts.Stagger,
				JobID: fmt.Sprintf("sweep-%s-%d-%d", id, round, start/s.opts.BatchSize),
			}
			if _, err := s.queue.Enqueue(ctx, model.QueueScrape, data, opts); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.logger.WithError(err).WithField("platform", id).Warn("提交批量抓取失败")
				break
			}
			submitted++
		}
		s.logger.WithFields(logrus.Fields{"platform": id, "articles": len(articles)}).Debug("平台扫描完成")
	}
	if submitted > 0 {
		s.logger.WithField("jobs", submitted).Info("已提交定时抓取")
	}
	return submitted, firstErr
}

func (s *Sweeper) platforms() []string {
	var ids []string
	if len(s.opts.Platforms) > 0 {
		for _, p := range s.opts.Platforms {
			if e, ok := s.registry.Resolve(p); ok && e.Scraper != nil {
				ids = append(ids, e.ID)
			} else {
				s.logger.WithField("platform", p).Warn("平台不支持抓取,已忽略")
			}
		}
		return ids
	}
	for _, id := range s.registry.IDs() {
		if _, ok := s.registry.Scraper(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
