package juejin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser/browsertest"
	"github.com/LouYuanbo1/crosspost/internal/logging"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><body>
<h1 class="article-title"> 用 Go 写一个任务队列 </h1>
<div class="article-meta"><time datetime="2024-03-05T10:00:00.000Z">2024-03-05</time><span class="views-count">1.2万</span></div>
<div class="article-suspended-panel">
  <div class="panel-btn like-btn" badge="356"></div>
  <div class="panel-btn comment-btn" badge="42"></div>
  <div class="panel-btn collect-btn" badge="1,024"></div>
</div>
<div class="article-content">正文</div>
<div class="comment-list">
  <div class="comment-item" data-comment-id="c1">
    <div class="user-popover-box"><span class="name">小明</span></div>
    <div class="content">写得很好</div>
    <div class="like-action"><span class="count">12</span></div>
    <time datetime="2024-03-06 08:00">1天前</time>
    <div class="reply-list">
      <div class="reply-item" data-comment-id="r1">
        <div class="user-popover-box"><span class="name">作者</span></div>
        <div class="content">谢谢</div>
        <time>3小时前</time>
      </div>
    </div>
  </div>
  <div class="comment-item" data-comment-id="c2">
    <div class="user-popover-box"><span class="name">路人</span></div>
    <div class="content"></div>
  </div>
  <div class="comment-item" data-comment-id="c3">
    <div class="user-popover-box"><span class="name">小红</span></div>
    <div class="content">收藏了</div>
  </div>
</div>
</body></html>`

const profileHTML = `<div class="user-info-block"><h1 class="username">LouYuanbo</h1></div>
<div class="follow-block"><div class="follower"><span class="count">3.4k</span></div><div class="followee"><span class="count">88</span></div></div>
<div class="list-header"><a class="nav-item posts"><span class="count">57</span></a></div>
<div class="stat-block"><div class="stat-view-count"><span class="count">120,345</span></div><div class="stat-like-count"><span class="count">4,321</span></div></div>`

func newExecutor(engine *browsertest.Engine) *platform.Executor {
	f := &session.Factory{
		Engine:  engine,
		Options: session.Options{ElementTimeout: 10 * time.Millisecond, ManualWait: 10 * time.Millisecond, ManualPoll: time.Millisecond},
		Logger:  logging.Discard(),
	}
	return platform.NewExecutor(f, logging.Discard())
}

func TestParseStats(t *testing.T) {
	doc, err := platform.ParseHTML(articleHTML)
	require.NoError(t, err)

	raw := NewScraper().ParseStats(doc, platform.Target{URL: "https://juejin.cn/post/7342"})
	assert.Equal(t, "7342", raw.RemoteID)
	assert.Equal(t, "https://juejin.cn/post/7342", raw.URL)
	assert.Equal(t, "用 Go 写一个任务队列", raw.Title)
	assert.Equal(t, "1.2万", raw.Views)
	assert.Equal(t, "356", raw.Likes)
	assert.Equal(t, "42", raw.Comments)
	assert.Equal(t, "1,024", raw.Collects)
	assert.Equal(t, "2024-03-05T10:00:00.000Z", raw.PublishedAt)
}

func TestParseComments(t *testing.T) {
	doc, err := platform.ParseHTML(articleHTML)
	require.NoError(t, err)

	got := platform.ParseComments(doc.Selection, comments)
	require.Len(t, got, 2, "empty comments are skipped")
	assert.Equal(t, "c1", got[0].RemoteID)
	assert.Equal(t, "小明", got[0].Author)
	assert.Equal(t, "写得很好", got[0].Content)
	assert.Equal(t, "12", got[0].Likes)
	assert.Equal(t, "2024-03-06 08:00", got[0].CreatedAt)
	require.Len(t, got[0].Replies, 1)
	assert.Equal(t, "谢谢", got[0].Replies[0].Content)
	assert.Equal(t, "3小时前", got[0].Replies[0].CreatedAt)
	assert.Equal(t, "收藏了", got[1].Content)
}

func TestParseProfile(t *testing.T) {
	doc, err := platform.ParseHTML(profileHTML)
	require.NoError(t, err)

	p := parseProfile(doc, "https://juejin.cn/user/2093")
	assert.Equal(t, model.RawUserProfile{
		RemoteID: "2093", Nickname: "LouYuanbo", Followers: "3.4k", Following: "88",
		Articles: "57", TotalViews: "120,345", TotalLikes: "4,321",
	}, p)
}

func TestScrapeCommentsRespectsLimit(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		p.Routes["/post/7342"] = articleHTML
		p.Set(".article-content", "正文")
	}}
	var got []model.RawComment
	err := newExecutor(engine).Scrape(context.Background(), ID, func(ctx context.Context, s *session.Session) error {
		var err error
		got, err = NewScraper().ScrapeComments(ctx, s, platform.Target{RemoteID: "7342"}, platform.CommentOptions{Limit: 1, ScrollRounds: 5})
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].RemoteID)
	assert.Equal(t, []string{"https://juejin.cn/post/7342"}, engine.Pages[0].Visited)
	assert.Equal(t, 5, engine.Pages[0].Scrolls)
}

func editorPage(p *browsertest.Page) {
	for _, sel := range []string{titleInput, contentEditor, openPanel, categoryItem, tagInput, summaryInput, confirmButton} {
		p.Set(sel, "")
	}
	p.OnClick[confirmButton] = func(p *browsertest.Page) {
		p.Set(publishedBox, "发布成功")
		p.Body = `<div class="thanks-page"><a href="/post/7350001">查看文章</a></div>`
	}
}

func testArticle() *model.Article {
	return &model.Article{
		Title:   "标题",
		Content: "# 正文\n内容",
		Summary: strings.Repeat("摘", 60),
		Tags:    []string{"Go", "Redis", "队列", "多余"},
	}
}

func TestPublish(t *testing.T) {
	engine := &browsertest.Engine{Setup: editorPage}
	res := newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Cookies: []model.Cookie{{Name: "sessionid", Value: "x"}}}, testArticle())
	// cookie 登录失败后没有账号密码
	assert.Equal(t, string(errs.CredentialMissing), res.ErrorKind)

	engine = &browsertest.Engine{Setup: func(p *browsertest.Page) {
		editorPage(p)
		p.OnNavigate = func(p *browsertest.Page, url string) {
			if len(p.Cookies) > 0 {
				p.Set(loginForm.LoggedIn, "")
			}
		}
	}}
	res = newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Cookies: []model.Cookie{{Name: "sessionid", Value: "x"}}}, testArticle())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "7350001", res.RemoteID)
	assert.Equal(t, "https://juejin.cn/post/7350001", res.URL)

	page := engine.Pages[0]
	assert.Equal(t, "标题", page.TypedInto(titleInput))
	assert.Equal(t, strings.Repeat("摘", 60), page.TypedInto(summaryInput))
	assert.Equal(t, "队列", page.TypedInto(tagInput)[len("GoRedis"):], "only three tags are added")
	assert.Equal(t, 1, page.CloseCount())
}

func TestPublishRequiresSummary(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		editorPage(p)
		p.Set(loginForm.LoggedIn, "")
	}}
	article := testArticle()
	article.Summary = "太短"
	res := newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Cookies: []model.Cookie{{Name: "sessionid", Value: "x"}}}, article)
	assert.False(t, res.Success)
	assert.Equal(t, string(errs.ValidationError), res.ErrorKind)
}

func TestPublishMissingButton(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		editorPage(p)
		p.Remove(confirmButton)
		p.Set(loginForm.LoggedIn, "")
	}}
	res := newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Cookies: []model.Cookie{{Name: "sessionid", Value: "x"}}}, testArticle())
	assert.Equal(t, string(errs.InteractionTimeout), res.ErrorKind)
}

func TestDelete(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		p.Set(loginForm.LoggedIn, "")
		for _, sel := range []string{moreButton, deleteItem, deleteConfirm} {
			p.Set(sel, "")
		}
		p.OnClick[deleteConfirm] = func(p *browsertest.Page) { p.Set(deletedToast, "删除成功") }
	}}
	res := newExecutor(engine).Delete(context.Background(), &Publisher{},
		model.LoginCredentials{Cookies: []model.Cookie{{Name: "sessionid", Value: "x"}}}, "7350001")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "7350001", res.RemoteID)
	assert.Contains(t, engine.Pages[0].Visited, "https://juejin.cn/post/7350001")
}
