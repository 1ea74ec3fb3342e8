package jianshu

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

func newExecutor(engine *browsertest.Engine) *platform.Executor {
	f := &session.Factory{
		Engine:  engine,
		Options: session.Options{ElementTimeout: 10 * time.Millisecond, ManualWait: 10 * time.Millisecond, ManualPoll: time.Millisecond},
		Logger:  logging.Discard(),
	}
	return platform.NewExecutor(f, logging.Discard())
}

func loginPage(p *browsertest.Page) {
	for _, sel := range []string{loginForm.Username, loginForm.Password, loginForm.Submit} {
		p.Set(sel, "")
	}
	p.OnClick[loginForm.Submit] = func(p *browsertest.Page) { p.Set(loginForm.LoggedIn, "") }
}

func TestPublishWithPasswordLogin(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		loginPage(p)
		for _, sel := range []string{notebook, newArticle, titleInput, contentEditor, publishButton} {
			p.Set(sel, "")
		}
		p.OnClick[publishButton] = func(p *browsertest.Page) {
			p.Set(publishedBox, "")
			p.Body = `<div class="publish-success"><a href="/p/3f2a9c1b7e">发布成功,点击查看文章</a></div>`
		}
	}}
	res := newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Username: "13800000000", Password: "secret"}, &model.Article{Title: "标题", Content: "正文"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "3f2a9c1b7e", res.RemoteID)
	assert.Equal(t, "https://www.jianshu.com/p/3f2a9c1b7e", res.URL)

	page := engine.Pages[0]
	assert.Equal(t, []string{loginForm.LoginURL, writerURL}, page.Visited)
	assert.Equal(t, "正文", page.TypedInto(contentEditor))
}

func TestSMSVerificationFailsLogin(t *testing.T) {
	engine := &browsertest.Engine{Setup: func(p *browsertest.Page) {
		loginPage(p)
		p.OnClick[loginForm.Submit] = func(p *browsertest.Page) { p.Set("#sms-verify-form", "") }
	}}
	res := newExecutor(engine).Publish(context.Background(), &Publisher{},
		model.LoginCredentials{Username: "u", Password: "p"}, &model.Article{Title: "t"})
	assert.Equal(t, string(errs.AuthenticationFailed), res.ErrorKind)
	assert.Equal(t, 1, engine.Closed())
}

func TestEntryHasNoScraper(t *testing.T) {
	r := platform.NewRegistry(Entry())
	_, ok := r.Publisher("简书")
	assert.True(t, ok)
	_, ok = r.Scraper(ID)
	assert.False(t, ok)
}
