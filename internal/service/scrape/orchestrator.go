// Package scrape 处理 scrape 队列:文章统计、评论、用户主页和批量统计
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/crosspost/internal/normalize"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/LouYuanbo1/crosspost/internal/service/notify"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/sirupsen/logrus"
)

const defaultMaxComments = 100

type Deps struct {
	Articles ports.ArticleStore
	Results  ports.ResultsStore
	Registry *platform.Registry
	Executor *platform.Executor
	// Fetcher 为空时统计数据只走浏览器
	Fetcher collector.Fetcher
	Fanout  *notify.Fanout
	Logger  *logrus.Entry
}

type Options struct {
	PolitenessDelay time.Duration
	MaxComments     int
}

type Orchestrator struct {
	Deps
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.MaxComments <= 0 {
		opts.MaxComments = defaultMaxComments
	}
	deps.Logger = deps.Logger.WithField("component", "scrape")
	return &Orchestrator{Deps: deps, opts: opts, now: time.Now, sleep: sleep}
}

func (o *Orchestrator) Process(ctx context.Context, job *jobqueue.Job) (any, error) {
	var data model.ScrapeJobData
	if err := job.Decode(&data); err != nil {
		return nil, err
	}
	switch data.Type {
	case model.ScrapeArticleStats:
		return nilIfEmpty(o.ArticleStats(ctx, data))
	case model.ScrapeComments:
		return o.Comments(ctx, data)
	case model.ScrapeUserProfile:
		return nilIfEmpty(o.UserProfile(ctx, data))
	case model.ScrapeBatchStats:
		return nilIfEmpty(o.BatchStats(ctx, data, job.ReportProgress))
	}
	return nil, errs.New(errs.ValidationError, data.Platform, "未知的抓取类型 %q", data.Type)
}

// nilIfEmpty 避免把 nil 指针包装成非 nil 的 any
func nilIfEmpty[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}

func (o *Orchestrator) scraper(id string) (platform.Scraper, error) {
	sc, ok := o.Registry.Scraper(id)
	if !ok {
		return nil, errs.New(errs.ValidationError, id, "平台不支持数据抓取")
	}
	return sc, nil
}

// target 优先使用任务中的地址,否则从文章在该平台的发布状态中取
func (o *Orchestrator) target(ctx context.Context, platformID, articleID, url string) (platform.Target, error) {
	if url != "" {
		return platform.Target{URL: url}, nil
	}
	if articleID == "" {
		return platform.Target{}, errs.New(errs.ValidationError, platformID, "需要 articleUrl 或 articleId")
	}
	st, err := o.Articles.PlatformState(ctx, articleID, platformID)
	if errors.Is(err, ports.ErrNotFound) {
		return platform.Target{}, errs.New(errs.ValidationError, platformID, "文章 %s 没有在该平台发布", articleID)
	}
	if err != nil {
		return platform.Target{}, errs.Wrap(errs.NetworkError, platformID, "加载发布状态", err)
	}
	if st.URL == "" && st.RemoteID == "" {
		return platform.Target{}, errs.New(errs.ValidationError, platformID, "文章 %s 没有远端地址", articleID)
	}
	return platform.Target{URL: st.URL, RemoteID: st.RemoteID}, nil
}

// ArticleStats 先尝试静态抓取,拿不到计数时再打开浏览器
func (o *Orchestrator) ArticleStats(ctx context.Context, data model.ScrapeJobData) (*model.ArticleStats, error) {
	sc, err := o.scraper(data.Platform)
	if err != nil {
		return nil, err
	}
	t, err := o.target(ctx, sc.ID(), data.ArticleID, data.ArticleURL)
	if err != nil {
		return nil, err
	}
	raw, ok := o.staticStats(ctx, sc, t)
	if !ok {
		err = o.Executor.Scrape(ctx, sc.ID(), func(ctx context.Context, s *session.Session) error {
			var err error
			raw, err = sc.ScrapeStats(ctx, s, t)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	stats := o.normalizeStats(sc.ID(), data.ArticleID, raw)
	if err := o.Results.SaveStats(ctx, []model.ArticleStats{stats}); err != nil {
		return nil, errs.Wrap(errs.NetworkError, sc.ID(), "保存统计", err)
	}
	return &stats, nil
}

func (o *Orchestrator) staticStats(ctx context.Context, sc platform.Scraper, t platform.Target) (model.RawArticleStats, bool) {
	parser, ok := sc.(platform.StaticStatsParser)
	if o.Fetcher == nil || !ok {
		return model.RawArticleStats{}, false
	}
	logger := o.Logger.WithField("platform", sc.ID())
	doc, err := o.Fetcher.Fetch(ctx, parser.StatsURL(t))
	if err != nil {
		logger.WithError(err).Debug("静态抓取失败,改用浏览器")
		return model.RawArticleStats{}, false
	}
	raw := parser.ParseStats(doc, t)
	if raw.Empty() {
		logger.Debug("静态页面没有计数,改用浏览器")
		return raw, false
	}
	return raw, true
}

func (o *Orchestrator) normalizeStats(platformID, articleID string, raw model.RawArticleStats) model.ArticleStats {
	stats := normalize.Stats(platformID, raw, o.now())
	stats.ArticleID = articleID
	return stats
}

func (o *Orchestrator) Comments(ctx context.Context, data model.ScrapeJobData) ([]model.Comment, error) {
	sc, err := o.scraper(data.Platform)
	if err != nil {
		return nil, err
	}
	t, err := o.target(ctx, sc.ID(), data.ArticleID, data.ArticleURL)
	if err != nil {
		return nil, err
	}
	opts := platform.CommentOptions{Limit: o.opts.MaxComments}
	includeReplies := false
	if c := data.Config; c != nil {
		if c.MaxComments > 0 {
			opts.Limit = c.MaxComments
		}
		opts.ScrollRounds = c.ScrollRounds
		includeReplies = c.IncludeReplies
	}

	var raw []model.RawComment
	err = o.Executor.Scrape(ctx, sc.ID(), func(ctx context.Context, s *session.Session) error {
		var err error
		raw, err = sc.ScrapeComments(ctx, s, t, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !includeReplies {
		for i := range raw {
			raw[i].Replies = nil
		}
	}
	comments := normalize.Comments(sc.ID(), data.ArticleID, raw, o.now())
	if len(comments) == 0 {
		return comments, nil
	}
	if err := o.Results.SaveComments(ctx, comments); err != nil {
		return nil, errs.Wrap(errs.NetworkError, sc.ID(), "保存评论", err)
	}
	return comments, nil
}

func (o *Orchestrator) UserProfile(ctx context.Context, data model.ScrapeJobData) (*model.UserProfile, error) {
	sc, err := o.scraper(data.Platform)
	if err != nil {
		return nil, err
	}
	if data.Config == nil || data.Config.ProfileURL == "" {
		return nil, errs.New(errs.ValidationError, sc.ID(), "缺少 profileUrl")
	}
	url := data.Config.ProfileURL

	var raw model.RawUserProfile
	err = o.Executor.Scrape(ctx, sc.ID(), func(ctx context.Context, s *session.Session) error {
		var err error
		raw, err = sc.ScrapeProfile(ctx, s, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	profile := normalize.Profile(sc.ID(), url, raw, o.now())
	if err := o.Results.SaveProfile(ctx, profile); err != nil {
		return nil, errs.Wrap(errs.NetworkError, sc.ID(), "保存主页数据", err)
	}
	return &profile, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
