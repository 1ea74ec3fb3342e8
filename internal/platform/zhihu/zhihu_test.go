package zhihu

import (
	"context"
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

const postHTML = `<article>
<h1 class="Post-Title">如何设计一个可靠的任务队列</h1>
<div class="ContentItem-time">发布于 2024-03-05 10:00・北京</div>
<div class="Post-RichTextContainer">正文</div>
<div class="ContentItem-actions">
  <button class="VoteButton VoteButton--up">赞同 1.2 万</button>
  <button class="BottomActions-CommentBtn">326 条评论</button>
  <button class="BottomActions-CollectBtn"><span class="Count">890</span></button>
</div>
<div class="Comments-container">
  <div class="NestComment">
    <div class="CommentItemV2" data-id="901">
      <div class="CommentItemV2-meta"><a class="UserLink-link">知友A</a><span class="CommentItemV2-time">03-06</span></div>
      <div class="CommentContent">讲得清楚</div>
      <button class="CommentItemV2-likeBtn"><span class="Count">15</span></button>
    </div>
    <div class="NestComment--child">
      <div class="CommentItemV2" data-id="902">
        <div class="CommentItemV2-meta"><a class="UserLink-link">作者</a><span class="CommentItemV2-time">昨天 21:10</span></div>
        <div class="CommentContent">感谢</div>
      </div>
    </div>
  </div>
</div>
</article>`

const profileHTML = `<h1 class="ProfileHeader-name">LouYuanbo</h1>
<div class="ProfileMain-header"><a class="Tabs-link" href="/people/lyb/posts">文章<span class="Tabs-meta">23</span></a></div>
<div class="FollowshipCard-counts">
  <a class="NumberBoard-item"><div class="NumberBoard-itemName">关注了</div><strong class="NumberBoard-itemValue">120</strong></a>
  <a class="NumberBoard-item"><div class="NumberBoard-itemName">关注者</div><strong class="NumberBoard-itemValue">5,678</strong></a>
</div>
<div class="Profile-sideColumnItemValue">获得 3,456 次赞同</div>
<div class="Profile-sideColumnItemValue">获得 12 次喜欢</div>`

func newExecutor(engine *browsertest.Engine) *platform.Executor {
	f := &session.Factory{
		Engine:  engine,
		Options: session.Options{ElementTimeout: 10 * time.Millisecond, ManualWait: 10 * time.Millisecond, ManualPoll: time.Millisecond},
		Logger:  logging.Discard(),
	}
	return platform.NewExecutor(f, logging.Discard())
}

func TestParseStats(t *testing.T) {
	doc, err := platform.ParseHTML(postHTML)
	require.NoError(t, err)

	raw := NewScraper().ParseStats(doc, platform.Target{URL: "https://zhuanlan.zhihu.com/p/68612"})
	assert.Equal(t, "68612", raw.RemoteID)
	assert.Equal(t, "如何设计一个可靠的任务队列", raw.Title)
	assert.Empty(t, raw.Views)
	assert.Equal(t, "赞同 1.2 万", raw.Likes)
	assert.Equal(t, "326 条评论", raw.Comments)
	assert.Equal(t, "890", raw.Collects)
	assert.Equal(t, "发布于 2024-03-05 10:00", raw.PublishedAt)
}

func TestParseComments(t *testing.T) {
	doc, err := platform.ParseHTML(postHTML)
	require.NoError(t, err)

	got := platform.ParseComments(doc.Selection, comments)
	require.Len(t, got, 1)
	assert.Equal(t, "901", got[0].RemoteID)
	assert.Equal(t, "知友A", got[0].Author)
	assert.Equal(t, "15", got[0].Likes)
	require.Len(t, got[0].Replies, 1)
	assert.Equal(t, "902", got[0].Replies[0].RemoteID)
	assert.Equal(t, "昨天 21:10", got[0].Replies[0].CreatedAt)
}

func TestParseProfile(t *testing.T) {
	doc, err := platform.ParseHTML(profileHTML)
	require.NoError(t, err)

	p := parseProfile(doc, "https://www.zhihu.com/people/lyb")
	assert.Equal(t, model.RawUserProfile{
		RemoteID: "lyb", Nickname: "LouYuanbo", Followers: "5,678", Following: "120",
		Articles: "23", TotalLikes: "获得 3,456 次赞同",
	}, p)
}

func writerPage(p *browsertest.Page) {
	p.Set(loginForm.LoggedIn, "")
	for _, sel := range []string{titleInput, contentEditor, publishButton, topicInput, topicFirst, confirmButton} {
		p.Set(sel, "")
	}
	p.OnClick[confirmButton] = func(p *browsertest.Page) {
		p.Set(postTitle, "标题")
		p.CurrentURL = "https://zhuanlan.zhihu.com/p/70001"
	}
}

var cookies = model.LoginCredentials{Cookies: []model.Cookie{{Name: "z_c0", Value: "t"}}}

func TestPublishReadsIDFromRedirect(t *testing.T) {
	engine := &browsertest.Engine{Setup: writerPage}
	res := newExecutor(engine).Publish(context.Background(), &Publisher{}, cookies, &model.Article{
		Title: "标题", Content: "正文", Tags: []string{"Go", "消息队列", "Redis", "后端"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "70001", res.RemoteID)
	assert.Equal(t, "https://zhuanlan.zhihu.com/p/70001", res.URL)

	clicks := 0
	for _, c := range engine.Pages[0].Clicks {
		if c == topicFirst {
			clicks++
		}
	}
	assert.Equal(t, maxTopics, clicks)
}

func TestScrapeStatsLoginWall(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		p.Set(".SignFlowHomepage", "")
	}}
	err := newExecutor(engine).Scrape(context.Background(), ID, func(ctx context.Context, s *session.Session) error {
		_, err := NewScraper().ScrapeStats(ctx, s, platform.Target{RemoteID: "1"})
		return err
	})
	assert.Equal(t, errs.AntiBotDetected, errs.KindOf(err))
	assert.Equal(t, 1, engine.Closed())
}

func TestScrapeProfile(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		p.Routes["/people/lyb"] = profileHTML
		p.Set(".ProfileHeader-name", "LouYuanbo")
	}}
	var got model.RawUserProfile
	err := newExecutor(engine).Scrape(context.Background(), ID, func(ctx context.Context, s *session.Session) error {
		var err error
		got, err = NewScraper().ScrapeProfile(ctx, s, "https://www.zhihu.com/people/lyb")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "5,678", got.Followers)
}
