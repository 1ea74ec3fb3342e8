package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"
)

// chromedpEngine 共用一个浏览器进程,每个会话一个新的 browser context
type chromedpEngine struct {
	allocCtx      context.Context
	allocCtxFuc   context.CancelFunc
	browserCtx    context.Context
	browserCtxFuc context.CancelFunc
	logger        *logrus.Entry
}

func InitChromedpEngine(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (Engine, error) {
	b := cfg.Browser
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("disable-blink-features", b.DisableBlinkFeatures),
		chromedp.Flag("disable-dev-shm-usage", b.DisableDevShmUsage),
		chromedp.Flag("no-sandbox", b.NoSandbox),
		chromedp.Flag("lang", b.Locale),
	)
	if b.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.UserDataDir))
	}
	if b.Bin != "" {
		opts = append(opts, chromedp.ExecPath(b.Bin))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	// 空的 Run 会启动浏览器进程
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	return &chromedpEngine{
		allocCtx:      allocCtx,
		allocCtxFuc:   cancelAlloc,
		browserCtx:    browserCtx,
		browserCtxFuc: cancelBrowser,
		logger:        logger.WithField("engine", "chromedp"),
	}, nil
}

func (e *chromedpEngine) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	p := &chromedpPage{tabCtx: tabCtx, tabCtxFuc: cancel}

	actions := []chromedp.Action{network.Enable()}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent).
			WithAcceptLanguage(AcceptLanguage(opts.Locale)))
	}
	if opts.Locale != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": AcceptLanguage(opts.Locale),
		}))
	}
	if opts.Viewport.Width > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)))
	}
	if len(opts.BlockResources) > 0 {
		patterns := make([]*fetch.RequestPattern, 0, len(opts.BlockResources))
		for _, rt := range opts.BlockResources {
			patterns = append(patterns, &fetch.RequestPattern{
				URLPattern:   "*",
				ResourceType: network.ResourceType(rt),
				RequestStage: fetch.RequestStageRequest,
			})
		}
		// 只有命中拦截规则的请求会暂停,全部直接拒绝
		chromedp.ListenTarget(tabCtx, func(ev any) {
			if paused, ok := ev.(*fetch.EventRequestPaused); ok {
				go func() {
					_ = chromedp.Run(tabCtx, fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient))
				}()
			}
		})
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}
	if err := p.run(ctx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("初始化页面失败: %w", err)
	}
	return p, nil
}

func (e *chromedpEngine) Close() error {
	e.browserCtxFuc()
	e.allocCtxFuc()
	return nil
}

type chromedpPage struct {
	tabCtx    context.Context
	tabCtxFuc context.CancelFunc
	closeOnce sync.Once
}

// run 在标签页上下文中执行动作,同时遵守调用方 ctx 的截止时间和取消
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("导航失败: %w", err)
	}
	return nil
}

func (p *chromedpPage) Has(ctx context.Context, selector string) bool {
	quoted, _ := json.Marshal(selector)
	var ok bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%s) !== null", quoted), &ok))
	return err == nil && ok
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromedpPage) Focus(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
}

func (p *chromedpPage) SelectAll(ctx context.Context, selector string) error {
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Evaluate(`document.execCommand('selectAll', false, null)`, nil),
	)
}

func (p *chromedpPage) InsertText(ctx context.Context, text string) error {
	return p.run(ctx, input.InsertText(text))
}

func (p *chromedpPage) Press(ctx context.Context, key Key) error {
	k := kb.Escape
	if key == KeyEnter {
		k = kb.Enter
	}
	return p.run(ctx, chromedp.KeyEvent(k))
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) Scroll(ctx context.Context, ratio float64) error {
	js := fmt.Sprintf(`window.scrollTo({
		top: document.body.scrollHeight * %f,
		behavior: 'smooth'
	});`, ratio)
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

func (p *chromedpPage) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			if err := network.SetCookie(c.Name, c.Value).WithDomain(c.Domain).WithPath(path).Do(ctx); err != nil {
				return fmt.Errorf("设置 cookie %s 失败: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close 取消标签页上下文,chromedp 会关闭对应的 browser context
func (p *chromedpPage) Close() error {
	p.closeOnce.Do(p.tabCtxFuc)
	return nil
}
