package publish

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	id  string
	err error

	mu    sync.Mutex
	calls []string
}

func (p *fakePublisher) ID() string { return p.id }

func (p *fakePublisher) call(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *fakePublisher) Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error {
	p.call("login:" + cred.Username)
	return nil
}

func (p *fakePublisher) Publish(ctx context.Context, s *session.Session, a *model.Article) (platform.Outcome, error) {
	p.call("publish")
	if p.err != nil {
		return platform.Outcome{}, p.err
	}
	return platform.Outcome{URL: "https://" + p.id + ".example/p/100", RemoteID: "100"}, nil
}

func (p *fakePublisher) Update(ctx context.Context, s *session.Session, id string, a *model.Article) (platform.Outcome, error) {
	p.call("update:" + id)
	return platform.Outcome{URL: "https://" + p.id + ".example/p/" + id}, p.err
}

func (p *fakePublisher) Delete(ctx context.Context, s *session.Session, id string) error {
	p.call("delete:" + id)
	return p.err
}

type fixture struct {
	engine   *browsertest.Engine
	articles *memstore.Articles
	creds    *memstore.Credentials
	queue    *memstore.Queue
	pubs     map[string]*fakePublisher
	orch     *Orchestrator
	sleeps   []time.Duration
}

func newFixture(t *testing.T, article model.Article, pubs ...*fakePublisher) *fixture {
	t.Helper()
	f := &fixture{
		engine:   &browsertest.Engine{},
		articles: memstore.NewArticles(article),
		creds:    memstore.NewCredentials(),
		queue:    &memstore.Queue{},
		pubs:     map[string]*fakePublisher{},
	}
	var entries []platform.Entry
	for _, p := range pubs {
		f.pubs[p.id] = p
		entries = append(entries, platform.Entry{ID: p.id, Publisher: p})
	}
	sessions := &session.Factory{
		Engine:  f.engine,
		Options: session.Options{ElementTimeout: 10 * time.Millisecond, ManualWait: 20 * time.Millisecond, ManualPoll: time.Millisecond},
		Logger:  logging.Discard(),
	}
	f.orch = New(Deps{
		Articles:    f.articles,
		Credentials: f.creds,
		Registry:    platform.NewRegistry(entries...),
		Executor:    platform.NewExecutor(sessions, logging.Discard()),
		Fanout:      notify.NewFanout(f.queue, logging.Discard()),
		Logger:      logging.Discard(),
	}, Options{PolitenessDelay: time.Second})
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func (f *fixture) article(t *testing.T) *model.Article {
	t.Helper()
	a, err := f.articles.Find(context.Background(), "a1", "")
	require.NoError(t, err)
	return a
}

func (f *fixture) notifications() []model.NotificationJobData {
	var out []model.NotificationJobData
	for _, j := range f.queue.Jobs() {
		out = append(out, j.Payload.(model.NotificationJobData))
	}
	return out
}

func draft() model.Article {
	return model.Article{
		ID: "a1", UserID: "u1", Title: "用 Go 写任务队列",
		Content: "# 标题\n\n正文第一段,介绍 **Redis** 队列。", Summary: "已有摘要",
		Status: model.ArticleDraft,
	}
}

func creds(ids ...string) map[string]model.LoginCredentials {
	out := map[string]model.LoginCredentials{}
	for _, id := range ids {
		out[id] = model.LoginCredentials{Username: id + "-user", Password: "secret"}
	}
	return out
}

func TestPartialSuccessPublishesArticle(t *testing.T) {
	f := newFixture(t, draft(),
		&fakePublisher{id: "juejin"},
		&fakePublisher{id: "zhihu", err: errs.New(errs.InteractionTimeout, "zhihu", "publish button missing")},
	)

	res, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin", "zhihu"}, Credentials: creds("juejin", "zhihu"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.PublishPartial, res.Status)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "juejin", res.Results[0].Platform)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "100", res.Results[0].RemoteID)
	assert.Equal(t, "zhihu", res.Results[1].Platform)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, string(errs.InteractionTimeout), res.Results[1].ErrorKind)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	a := f.article(t)
	assert.Equal(t, model.ArticlePublished, a.Status)
	assert.True(t, a.Platforms["juejin"].Done())
	assert.Equal(t, model.PlatformFailed, a.Platforms["zhihu"].Status)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 2)
	success, failure := jobs[0], jobs[1]
	assert.Equal(t, model.NotifyPublishSuccess, success.Payload.(model.NotificationJobData).Type)
	assert.Equal(t, model.NotifyPublishFailed, failure.Payload.(model.NotificationJobData).Type)
	assert.Greater(t, failure.Opts.Priority, success.Opts.Priority)

	assert.Equal(t, 2, f.engine.Opened())
	assert.Equal(t, 2, f.engine.Closed())
	assert.Equal(t, []time.Duration{time.Second}, f.sleeps)
}

func TestResultCountMatchesRequest(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"}, &fakePublisher{id: "csdn"})

	res, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1",
		Platforms:   []string{"juejin", "myspace", "csdn"},
		Credentials: creds("juejin"),
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "myspace", res.Results[1].Platform)
	assert.Equal(t, string(errs.PlatformNotFound), res.Results[1].ErrorKind)
	assert.Equal(t, "csdn", res.Results[2].Platform)
	assert.Equal(t, string(errs.CredentialMissing), res.Results[2].ErrorKind)
	assert.Equal(t, 1, f.engine.Opened(), "only juejin starts a browser session")
	assert.Len(t, f.notifications(), 3)
}

func TestCredentialMissingNeverStartsSession(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"})

	res, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CredentialMissing, errs.KindOf(err))
	assert.False(t, errs.Retryable(err))

	require.NotNil(t, res)
	assert.Equal(t, model.PublishFailed, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, string(errs.CredentialMissing), res.Results[0].ErrorKind)
	assert.Equal(t, 0, f.engine.Opened())
	assert.Empty(t, f.pubs["juejin"].calls)
	assert.Equal(t, 1, f.creds.Calls)
	assert.Equal(t, model.ArticleFailed, f.article(t).Status)
}

func TestAllFailedIsRetryableOnlyWhenTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"network", errs.New(errs.NetworkError, "juejin", "connection reset"), true},
		{"auth", errs.New(errs.AuthenticationFailed, "juejin", "bad password"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, draft(), &fakePublisher{id: "juejin", err: tt.err})

			res, err := f.orch.Run(context.Background(), model.PublishJobData{
				ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"}, Credentials: creds("juejin"),
			}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, errs.Retryable(err))
			assert.Equal(t, errs.KindOf(tt.err), errs.KindOf(err))
			require.Len(t, res.Results, 1)
			assert.Equal(t, model.PublishFailed, res.Status)
		})
	}
}

func TestRetrySkipsPublishedPlatforms(t *testing.T) {
	a := draft()
	a.Platforms = map[string]model.PlatformPublishState{
		"juejin": {Status: model.PlatformPublished, RemoteID: "55", URL: "https://juejin.cn/post/55"},
	}
	f := newFixture(t, a, &fakePublisher{id: "juejin"}, &fakePublisher{id: "zhihu"})

	res, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin", "zhihu"}, Credentials: creds("juejin", "zhihu"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.PublishCompleted, res.Status)
	assert.True(t, res.Results[0].Skipped)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "55", res.Results[0].RemoteID)
	assert.Empty(t, f.pubs["juejin"].calls)
	assert.Equal(t, 1, f.engine.Opened())
	assert.Empty(t, f.sleeps, "no delay before the first real session")
	assert.Len(t, f.notifications(), 1)
}

func TestCredentialsLookedUpOnlyForMissingPlatforms(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"}, &fakePublisher{id: "zhihu"})
	f.creds.Put("u1", "zhihu", model.LoginCredentials{Username: "stored", Password: "x"})

	res, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"JueJin", "zhihu"}, Credentials: creds("juejin"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PublishCompleted, res.Status)
	assert.Equal(t, 1, f.creds.Calls)
	assert.Equal(t, []string{"login:juejin-user", "publish"}, f.pubs["juejin"].calls)
	assert.Equal(t, []string{"login:stored", "publish"}, f.pubs["zhihu"].calls)
}

func TestProgressReportedPerPlatform(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"}, &fakePublisher{id: "zhihu"}, &fakePublisher{id: "csdn"})

	var progress []int
	_, err := f.orch.Run(context.Background(), model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin", "zhihu", "csdn"}, Credentials: creds("juejin", "zhihu", "csdn"),
	}, func(ctx context.Context, p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{33, 66, 100}, progress)
	assert.Len(t, f.sleeps, 2)
}

func TestCancelledRunKeepsResultCount(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"}, &fakePublisher{id: "zhihu"})
	ctx, cancel := context.WithCancel(context.Background())
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := f.orch.Run(ctx, model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin", "zhihu"}, Credentials: creds("juejin", "zhihu"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, model.PublishPartial, res.Status)
}

func TestValidation(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"})
	ctx := context.Background()

	tests := []struct {
		name string
		data model.PublishJobData
	}{
		{"no platforms", model.PublishJobData{ArticleID: "a1", UserID: "u1"}},
		{"no article id", model.PublishJobData{UserID: "u1", Platforms: []string{"juejin"}}},
		{"unknown action", model.PublishJobData{Action: "archive", ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"}}},
		{"missing article", model.PublishJobData{ArticleID: "nope", UserID: "u1", Platforms: []string{"juejin"}}},
		{"other user's article", model.PublishJobData{ArticleID: "a1", UserID: "u2", Platforms: []string{"juejin"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.orch.Run(ctx, tt.data, nil)
			assert.Nil(t, res)
			assert.Equal(t, errs.ValidationError, errs.KindOf(err))
		})
	}
	assert.Equal(t, 0, f.engine.Opened())
}

type fakeSummarizer struct {
	text string
	err  error
}

func (s fakeSummarizer) Summarize(ctx context.Context, title, content string, maxRunes int) (string, error) {
	return s.text, s.err
}

func TestSummaryGeneratedBeforePublishing(t *testing.T) {
	tests := []struct {
		name       string
		summarizer Summarizer
		want       string
	}{
		{"llm", fakeSummarizer{text: "一篇介绍 Redis 任务队列的文章"}, "一篇介绍 Redis 任务队列的文章"},
		{"llm fails", fakeSummarizer{err: errors.New("ollama unreachable")}, "标题 正文第一段,介绍 Redis 队列。"},
		{"no llm", nil, "标题 正文第一段,介绍 Redis 队列。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := draft()
			a.Summary = ""
			f := newFixture(t, a, &fakePublisher{id: "juejin"})
			f.orch.Summarizer = tt.summarizer

			_, err := f.orch.Run(context.Background(), model.PublishJobData{
				ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"}, Credentials: creds("juejin"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.article(t).Summary)
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	a := draft()
	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.Status = model.ArticlePublished
	a.Platforms = map[string]model.PlatformPublishState{
		"juejin": {Status: model.PlatformPublished, RemoteID: "77", URL: "https://juejin.cn/post/77", PublishedAt: &published},
	}
	f := newFixture(t, a, &fakePublisher{id: "juejin"}, &fakePublisher{id: "zhihu"})
	ctx := context.Background()

	res, err := f.orch.Run(ctx, model.PublishJobData{
		Action: model.ActionUpdate, ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"}, Credentials: creds("juejin"),
	}, nil)
	require.NoError(t, err)
	assert.True(t, res.Results[0].Success)
	assert.Contains(t, f.pubs["juejin"].calls, "update:77")
	st := f.article(t).Platforms["juejin"]
	assert.Equal(t, "77", st.RemoteID)
	assert.Equal(t, published, *st.PublishedAt)

	// zhihu 上没有这篇文章,更新失败
	res, err = f.orch.Run(ctx, model.PublishJobData{
		Action: model.ActionUpdate, ArticleID: "a1", UserID: "u1", Platforms: []string{"zhihu"}, Credentials: creds("zhihu"),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, string(errs.ValidationError), res.Results[0].ErrorKind)

	res, err = f.orch.Run(ctx, model.PublishJobData{
		Action: model.ActionDelete, ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin", "zhihu"}, Credentials: creds("juejin", "zhihu"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PublishCompleted, res.Status)
	assert.False(t, res.Results[0].Skipped)
	assert.True(t, res.Results[1].Skipped)
	assert.Contains(t, f.pubs["juejin"].calls, "delete:77")

	after := f.article(t)
	assert.Equal(t, model.PlatformPending, after.Platforms["juejin"].Status)
	assert.Empty(t, after.Platforms["juejin"].RemoteID)
	assert.Equal(t, model.ArticleDraft, after.Status)
}

func TestProcessDecodesPayload(t *testing.T) {
	f := newFixture(t, draft(), &fakePublisher{id: "juejin"})
	payload, err := json.Marshal(model.PublishJobData{
		ArticleID: "a1", UserID: "u1", Platforms: []string{"juejin"}, Credentials: creds("juejin"),
	})
	require.NoError(t, err)

	out, err := f.orch.Process(context.Background(), jobqueue.NewJob(&queue.Job{ID: "j1", Payload: payload}, logging.Discard()))
	require.NoError(t, err)
	res, ok := out.(*model.PublishJobResult)
	require.True(t, ok)
	assert.Equal(t, "a1", res.ArticleID)

	out, err = f.orch.Process(context.Background(), jobqueue.NewJob(&queue.Job{ID: "j2", Payload: []byte(`{"platforms": 1}`)}, logging.Discard()))
	assert.Nil(t, out)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestTruncate(t *testing.T) {
	content := "## 前言\n\n```go\nfmt.Println()\n```\n\n这是[链接](https://x.y)和 ![图](a.png) 之后的正文。"
	assert.Equal(t, "前言 这是链接和 之后的正文。", PlainText(content))

	long := strings.Repeat("字", 200)
	got := Truncate(long, 50)
	assert.Equal(t, 50, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, "短文", Truncate("短文", 50))
}
