package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser/browsertest"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/LouYuanbo1/crosspost/internal/logging"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/ports/memstore"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/LouYuanbo1/crosspost/internal/service/notify"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	id       string
	views    map[string]string
	failOn   map[string]error
	panicOn  string
	comments []model.RawComment
	profile  model.RawUserProfile

	mu         sync.Mutex
	calls      []string
	lastLimit  int
	lastRounds int
}

func (s *fakeScraper) ID() string { return s.id }

func (s *fakeScraper) call(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *fakeScraper) ScrapeStats(ctx context.Context, _ *session.Session, t platform.Target) (model.RawArticleStats, error) {
	s.call("stats:" + t.URL)
	if t.URL == s.panicOn {
		panic("selector returned nil")
	}
	if err := s.failOn[t.URL]; err != nil {
		return model.RawArticleStats{}, err
	}
	return model.RawArticleStats{URL: t.URL, RemoteID: t.RemoteID, Views: s.views[t.URL], Likes: "12"}, nil
}

func (s *fakeScraper) ScrapeComments(ctx context.Context, _ *session.Session, t platform.Target, opts platform.CommentOptions) ([]model.RawComment, error) {
	s.call("comments:" + t.URL)
	s.lastLimit = opts.Limit
	s.lastRounds = opts.ScrollRounds
	return s.comments, nil
}

func (s *fakeScraper) ScrapeProfile(ctx context.Context, _ *session.Session, url string) (model.RawUserProfile, error) {
	s.call("profile:" + url)
	return s.profile, nil
}

// staticScraper 文章页的计数在服务端渲染
type staticScraper struct {
	*fakeScraper
}

func (s staticScraper) StatsURL(t platform.Target) string { return t.URL }

func (s staticScraper) ParseStats(doc *goquery.Document, t platform.Target) model.RawArticleStats {
	return model.RawArticleStats{URL: t.URL, Views: strings.TrimSpace(doc.Find(".views").Text())}
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	html, ok := f[url]
	if !ok {
		return nil, errs.New(errs.NetworkError, "", "403")
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

type fixture struct {
	engine   *browsertest.Engine
	articles *memstore.Articles
	results  *memstore.Results
	queue    *memstore.Queue
	orch     *Orchestrator
	sleeps   int
	progress []int
}

func published(id, url string) model.Article {
	return model.Article{
		ID: id, UserID: "u1", Title: id,
		Platforms: map[string]model.PlatformPublishState{
			"juejin": {Status: model.PlatformPublished, URL: url, RemoteID: strings.TrimPrefix(url, "https://juejin.cn/post/")},
		},
	}
}

func newFixture(t *testing.T, sc platform.Scraper, fetcher fakeFetcher, articles ...model.Article) *fixture {
	t.Helper()
	f := &fixture{
		engine:   &browsertest.Engine{},
		articles: memstore.NewArticles(articles...),
		results:  &memstore.Results{},
		queue:    &memstore.Queue{},
	}
	sessions := &session.Factory{
		Engine:  f.engine,
		Options: session.Options{ElementTimeout: 10 * time.Millisecond, ManualWait: 20 * time.Millisecond, ManualPoll: time.Millisecond},
		Logger:  logging.Discard(),
	}
	deps := Deps{
		Articles: f.articles,
		Results:  f.results,
		Registry: platform.NewRegistry(platform.Entry{ID: sc.ID(), Name: "掘金", Scraper: sc}),
		Executor: platform.NewExecutor(sessions, logging.Discard()),
		Fanout:   notify.NewFanout(f.queue, logging.Discard()),
		Logger:   logging.Discard(),
	}
	if fetcher != nil {
		deps.Fetcher = fetcher
	}
	f.orch = New(deps, Options{PolitenessDelay: time.Second, MaxComments: 50})
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}
	return f
}

func (f *fixture) report(ctx context.Context, p int) { f.progress = append(f.progress, p) }

func errorIDs(s *model.BatchSummary) map[string]string {
	out := map[string]string{}
	for _, e := range s.Errors {
		out[e.ArticleID] = e.ErrorKind
	}
	return out
}

func TestBatchStatsPartialSummary(t *testing.T) {
	sc := &fakeScraper{
		id:      "juejin",
		views:   map[string]string{"https://juejin.cn/post/1": "1.2万"},
		failOn:  map[string]error{"https://juejin.cn/post/2": errs.New(errs.InteractionTimeout, "juejin", "stats panel missing")},
		panicOn: "https://juejin.cn/post/3",
	}
	f := newFixture(t, sc, nil,
		published("a1", "https://juejin.cn/post/1"),
		published("a2", "https://juejin.cn/post/2"),
		published("a3", "https://juejin.cn/post/3"),
		model.Article{ID: "a4", UserID: "u1"},
	)

	summary, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{
		Type: model.ScrapeBatchStats, Platform: "掘金", UserID: "u1", ArticleIDs: []string{"a1", "a2", "a3", "a4"},
	}, f.report)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, map[string]string{
		"a2": string(errs.InteractionTimeout),
		"a3": string(errs.Internal),
		"a4": string(errs.ValidationError),
	}, errorIDs(summary))

	require.Len(t, summary.Stats, 1)
	assert.Equal(t, "a1", summary.Stats[0].ArticleID)
	assert.Equal(t, int64(12000), summary.Stats[0].Views)
	assert.Len(t, f.results.Stats, 1)

	assert.Equal(t, 1, f.engine.Opened(), "browser items share one session")
	assert.Equal(t, 1, f.engine.Closed())
	assert.Equal(t, 2, f.sleeps)
	assert.Equal(t, []int{25, 50, 75, 100}, f.progress)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	n := jobs[0].Payload.(model.NotificationJobData)
	assert.Equal(t, model.NotifyScrapeFailed, n.Type)
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, notify.PriorityFailure, jobs[0].Opts.Priority)
}

func TestBatchStatsNotifyErrorIsLogged(t *testing.T) {
	sc := &fakeScraper{id: "juejin"}
	f := newFixture(t, sc, nil, model.Article{ID: "a4", UserID: "u1"})
	f.queue.Err = errs.New(errs.QueueUnavailable, "", "redis down")
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f.orch.Logger = logrus.NewEntry(logger)

	summary, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{
		Type: model.ScrapeBatchStats, Platform: "juejin", UserID: "u1", ArticleIDs: []string{"a4"},
	}, f.report)
	require.NoError(t, err, "notification failures do not fail the batch")
	assert.Equal(t, 1, summary.Failed)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "通知入队失败" {
			logged = true
			assert.Equal(t, "juejin", e.Data["platform"])
		}
	}
	assert.True(t, logged)
}

func TestBatchStatsStaticFirst(t *testing.T) {
	sc := staticScraper{&fakeScraper{id: "juejin", views: map[string]string{"https://juejin.cn/post/2": "30"}}}
	fetcher := fakeFetcher{
		"https://juejin.cn/post/1": `<div class="views">3.5k</div>`,
		// 登录墙页面没有计数,需要浏览器
		"https://juejin.cn/post/2": `<div class="login-wall"></div>`,
	}
	f := newFixture(t, sc, fetcher,
		published("a1", "https://juejin.cn/post/1"),
		published("a2", "https://juejin.cn/post/2"),
		published("a3", "https://juejin.cn/post/3"),
	)

	summary, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{
		Type: model.ScrapeBatchStats, Platform: "juejin", ArticleIDs: []string{"a1", "a2", "a3"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"stats:https://juejin.cn/post/2", "stats:https://juejin.cn/post/3"}, sc.calls)
	assert.Equal(t, 1, f.engine.Opened())
	assert.Empty(t, f.queue.Jobs(), "no notification without failures")
}

func TestBatchStatsAllStaticOpensNoBrowser(t *testing.T) {
	sc := staticScraper{&fakeScraper{id: "juejin"}}
	f := newFixture(t, sc, fakeFetcher{"https://juejin.cn/post/1": `<span class="views">7</span>`},
		published("a1", "https://juejin.cn/post/1"))

	summary, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{Platform: "juejin", ArticleIDs: []string{"a1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, int64(7), summary.Stats[0].Views)
	assert.Equal(t, 0, f.engine.Opened())
}

func TestBatchStatsSessionFailureFailsRemainingItems(t *testing.T) {
	sc := &fakeScraper{id: "juejin"}
	f := newFixture(t, sc, nil, published("a1", "https://juejin.cn/post/1"), published("a2", "https://juejin.cn/post/2"))
	f.engine.NewPageErr = errors.New("chrome not found")

	summary, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{
		Platform: "juejin", ArticleIDs: []string{"a1", "a2"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, map[string]string{"a1": string(errs.NetworkError), "a2": string(errs.NetworkError)}, errorIDs(summary))
	assert.Len(t, f.queue.Jobs(), 1)
	// 定时任务没有用户,通知由 notify 处理器转给运营人员
	assert.Empty(t, f.queue.Jobs()[0].Payload.(model.NotificationJobData).UserID)
}

func TestBatchStatsValidation(t *testing.T) {
	f := newFixture(t, &fakeScraper{id: "juejin"}, nil)

	_, err := f.orch.BatchStats(context.Background(), model.ScrapeJobData{Platform: "juejin"}, nil)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
	_, err = f.orch.BatchStats(context.Background(), model.ScrapeJobData{Platform: "myspace", ArticleIDs: []string{"a1"}}, nil)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestArticleStats(t *testing.T) {
	sc := &fakeScraper{id: "juejin", views: map[string]string{
		"https://juejin.cn/post/1": "1,234",
		"https://juejin.cn/post/9": "9",
	}}
	f := newFixture(t, sc, nil, published("a1", "https://juejin.cn/post/1"))
	ctx := context.Background()

	stats, err := f.orch.ArticleStats(ctx, model.ScrapeJobData{Platform: "jue-jin", ArticleID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "juejin", stats.Platform)
	assert.Equal(t, "a1", stats.ArticleID)
	assert.Equal(t, "1", stats.RemoteID)
	assert.Equal(t, int64(1234), stats.Views)
	assert.Equal(t, int64(12), stats.Likes)
	assert.Len(t, f.results.Stats, 1)

	stats, err = f.orch.ArticleStats(ctx, model.ScrapeJobData{Platform: "juejin", ArticleURL: "https://juejin.cn/post/9"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), stats.Views)
	assert.Equal(t, 2, f.engine.Opened())
}

func TestArticleStatsErrors(t *testing.T) {
	sc := &fakeScraper{id: "juejin", failOn: map[string]error{
		"https://juejin.cn/post/1": errs.New(errs.AntiBotDetected, "juejin", "slider captcha"),
	}}
	f := newFixture(t, sc, nil, published("a1", "https://juejin.cn/post/1"), model.Article{ID: "a2", UserID: "u1"})
	ctx := context.Background()

	tests := []struct {
		name string
		data model.ScrapeJobData
		want errs.Kind
	}{
		{"unknown platform", model.ScrapeJobData{Platform: "myspace", ArticleID: "a1"}, errs.ValidationError},
		{"no target", model.ScrapeJobData{Platform: "juejin"}, errs.ValidationError},
		{"not published", model.ScrapeJobData{Platform: "juejin", ArticleID: "a2"}, errs.ValidationError},
		{"scraper error", model.ScrapeJobData{Platform: "juejin", ArticleID: "a1"}, errs.AntiBotDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := f.orch.ArticleStats(ctx, tt.data)
			assert.Nil(t, stats)
			assert.Equal(t, tt.want, errs.KindOf(err))
		})
	}
	assert.Empty(t, f.results.Stats)
}

func TestComments(t *testing.T) {
	sc := &fakeScraper{id: "juejin", comments: []model.RawComment{
		{RemoteID: "c1", Author: " 张三 ", Content: "写得好", Likes: "3", CreatedAt: "2小时前",
			Replies: []model.RawComment{{RemoteID: "c2", Author: "作者", Content: "谢谢"}}},
	}}
	f := newFixture(t, sc, nil, published("a1", "https://juejin.cn/post/1"))
	ctx := context.Background()

	comments, err := f.orch.Comments(ctx, model.ScrapeJobData{Platform: "juejin", ArticleID: "a1"})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "张三", comments[0].Author)
	assert.Nil(t, comments[0].Replies)
	assert.Equal(t, 50, sc.lastLimit)
	assert.Zero(t, sc.lastRounds)

	comments, err = f.orch.Comments(ctx, model.ScrapeJobData{
		Platform: "juejin", ArticleID: "a1", Config: &model.ScrapeConfig{MaxComments: 5, IncludeReplies: true, ScrollRounds: 8},
	})
	require.NoError(t, err)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "a1", comments[0].Replies[0].ArticleID)
	assert.Equal(t, 5, sc.lastLimit)
	assert.Equal(t, 8, sc.lastRounds)
	assert.Len(t, f.results.Comments, 2)
}

func TestUserProfile(t *testing.T) {
	sc := &fakeScraper{id: "juejin", profile: model.RawUserProfile{Nickname: "gopher", Followers: "1.5千", Articles: "42"}}
	f := newFixture(t, sc, nil)
	ctx := context.Background()

	_, err := f.orch.UserProfile(ctx, model.ScrapeJobData{Platform: "juejin"})
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))

	p, err := f.orch.UserProfile(ctx, model.ScrapeJobData{
		Platform: "juejin", Config: &model.ScrapeConfig{ProfileURL: "https://juejin.cn/user/7"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), p.Followers)
	assert.Equal(t, int64(42), p.Articles)
	assert.Equal(t, "https://juejin.cn/user/7", p.URL)
	assert.Len(t, f.results.Profiles, 1)
}

func TestProcessDispatchesByType(t *testing.T) {
	sc := &fakeScraper{id: "juejin", views: map[string]string{"https://juejin.cn/post/1": "5"}}
	f := newFixture(t, sc, nil, published("a1", "https://juejin.cn/post/1"))

	job := func(data model.ScrapeJobData) *jobqueue.Job {
		payload, err := json.Marshal(data)
		require.NoError(t, err)
		return jobqueue.NewJob(&queue.Job{ID: "j", Queue: model.QueueScrape, Payload: payload}, logging.Discard())
	}

	out, err := f.orch.Process(context.Background(), job(model.ScrapeJobData{Type: model.ScrapeArticleStats, Platform: "juejin", ArticleID: "a1"}))
	require.NoError(t, err)
	assert.IsType(t, &model.ArticleStats{}, out)

	j := job(model.ScrapeJobData{Type: model.ScrapeBatchStats, Platform: "juejin", ArticleIDs: []string{"a1"}})
	out, err = f.orch.Process(context.Background(), j)
	require.NoError(t, err)
	assert.IsType(t, &model.BatchSummary{}, out)
	assert.Equal(t, 100, j.Progress)

	out, err = f.orch.Process(context.Background(), job(model.ScrapeJobData{Type: "trending", Platform: "juejin"}))
	assert.Nil(t, out)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))

	out, err = f.orch.Process(context.Background(), job(model.ScrapeJobData{Type: model.ScrapeUserProfile, Platform: "juejin"}))
	assert.Nil(t, out)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
}
