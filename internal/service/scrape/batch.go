package scrape

import (
	"context"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/sirupsen/logrus"
)

type batchItem struct {
	articleID string
	target    platform.Target
}

// BatchStats 逐篇抓取统计。单篇失败只记录在汇总里,不会中断整个批次;
// 能静态抓取的先抓,剩下的在同一个浏览器会话中依次处理。
func (o *Orchestrator) BatchStats(ctx context.Context, data model.ScrapeJobData, progress jobqueue.ProgressFunc) (*model.BatchSummary, error) {
	sc, err := o.scraper(data.Platform)
	if err != nil {
		return nil, err
	}
	if len(data.ArticleIDs) == 0 {
		return nil, errs.New(errs.ValidationError, sc.ID(), "articleIds 不能为空")
	}
	id := sc.ID()
	logger := o.Logger.WithFields(logrus.Fields{"platform": id, "type": data.Type})
	b := &batch{o: o, platform: id, total: len(data.ArticleIDs), progress: progress, logger: logger}

	var pending []batchItem
	for _, articleID := range data.ArticleIDs {
		t, err := o.target(ctx, id, articleID, "")
		if err != nil {
			b.fail(ctx, articleID, err)
			continue
		}
		if raw, ok := o.staticStats(ctx, sc, t); ok {
			b.succeed(ctx, articleID, raw)
			continue
		}
		pending = append(pending, batchItem{articleID: articleID, target: t})
	}

	if len(pending) > 0 {
		done := 0
		err := o.Executor.Scrape(ctx, id, func(ctx context.Context, s *session.Session) error {
			for i, item := range pending {
				if i > 0 && o.opts.PolitenessDelay > 0 {
					if err := o.sleep(ctx, o.opts.PolitenessDelay); err != nil {
						return err
					}
				}
				var raw model.RawArticleStats
				err := platform.Guard(id, func() error {
					var err error
					raw, err = sc.ScrapeStats(ctx, s, item.target)
					return err
				})
				done++
				if err != nil {
					b.fail(ctx, item.articleID, err)
					continue
				}
				b.succeed(ctx, item.articleID, raw)
			}
			return nil
		})
		if err != nil {
			// 会话本身失败,剩余条目记同一个错误
			for _, item := range pending[done:] {
				b.fail(ctx, item.articleID, err)
			}
		}
	}

	summary := b.summary
	summary.Total = b.total
	logger.WithFields(logrus.Fields{"total": summary.Total, "success": summary.Success, "failed": summary.Failed}).Info("批量抓取结束")
	if summary.Failed > 0 && o.Fanout != nil {
		if err := o.Fanout.ScrapeFailed(ctx, data.UserID, id, summary); err != nil {
			logger.WithError(err).Debug("通知入队失败")
		}
	}
	return &summary, nil
}

type batch struct {
	o        *Orchestrator
	platform string
	total    int
	progress jobqueue.ProgressFunc
	logger   *logrus.Entry
	summary  model.BatchSummary
}

func (b *batch) succeed(ctx context.Context, articleID string, raw model.RawArticleStats) {
	stats := b.o.normalizeStats(b.platform, articleID, raw)
	if err := b.o.Results.SaveStats(ctx, []model.ArticleStats{stats}); err != nil {
		b.fail(ctx, articleID, errs.Wrap(errs.NetworkError, b.platform, "保存统计", err))
		return
	}
	b.summary.Success++
	b.summary.Stats = append(b.summary.Stats, stats)
	b.report(ctx)
}

func (b *batch) fail(ctx context.Context, articleID string, err error) {
	b.logger.WithError(err).WithField("article_id", articleID).Warn("抓取文章统计失败")
	b.summary.Failed++
	b.summary.Errors = append(b.summary.Errors, model.BatchItemError{
		ArticleID: articleID,
		Error:     err.Error(),
		ErrorKind: string(errs.KindOf(err)),
	})
	b.report(ctx)
}

func (b *batch) report(ctx context.Context) {
	if b.progress == nil {
		return
	}
	done := b.summary.Success + b.summary.Failed
	b.progress(ctx, done*100/b.total)
}
