package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/options"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
)

// rodEngine 维护一个浏览器池,每个会话在池中的浏览器上开一个隐身上下文
type rodEngine struct {
	browserPool rod.Pool[rod.Browser]
	launchers   []*launcher.Launcher
	mu          sync.Mutex
	instances   atomic.Int32
	cfg         *config.Config
	logger      *logrus.Entry
}

func InitRodEngine(cfg *config.Config, logger *logrus.Entry) (Engine, error) {
	if cfg.Browser.UserDataDir != "" {
		if err := os.MkdirAll(cfg.Browser.UserDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("创建浏览器数据目录失败: %w", err)
		}
	}
	return &rodEngine{
		browserPool: rod.NewBrowserPool(cfg.Browser.PoolSize),
		cfg:         cfg,
		logger:      logger.WithField("engine", "rod"),
	}, nil
}

// createBrowser 按需启动浏览器进程,每个实例使用独立的数据目录
func (e *rodEngine) createBrowser() (*rod.Browser, error) {
	instanceID := e.instances.Add(1)
	b := e.cfg.Browser

	var dataDir string
	if b.UserDataDir != "" {
		dataDir = filepath.Join(b.UserDataDir, fmt.Sprintf("instance_%d", instanceID))
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("创建实例数据目录失败: %w", err)
		}
	}
	l := options.CreateLauncher(
		options.WithBin(b.Bin),
		options.WithUserDataDir(dataDir),
		options.WithHeadless(b.Headless),
		options.WithDisableBlinkFeatures(b.DisableBlinkFeatures),
		options.WithDisableDevShmUsage(b.DisableDevShmUsage),
		options.WithNoSandbox(b.NoSandbox),
		options.WithLeakless(b.Leakless),
		options.WithLang(b.Locale),
	)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	e.mu.Lock()
	e.launchers = append(e.launchers, l)
	e.mu.Unlock()

	browser := rod.New().ControlURL(controlURL).Trace(b.Trace)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	e.logger.WithField("instance", instanceID).Info("浏览器实例已启动")
	return browser, nil
}

func (e *rodEngine) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	browser, err := e.browserPool.Get(e.createBrowser)
	if err != nil {
		// 启动失败时把空位还给池,下次重新创建
		e.browserPool.Put(nil)
		return nil, fmt.Errorf("获取浏览器失败: %w", err)
	}
	rp := &rodPage{engine: e, browser: browser}

	rp.incognito, err = browser.Incognito()
	if err != nil {
		rp.release()
		return nil, fmt.Errorf("创建隐身上下文失败: %w", err)
	}
	rp.page, err = stealth.Page(rp.incognito)
	if err != nil {
		rp.release()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	if err := rp.apply(opts); err != nil {
		rp.release()
		return nil, err
	}
	return rp, nil
}

func (e *rodEngine) Close() error {
	e.browserPool.Cleanup(func(b *rod.Browser) { _ = b.Close() })
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.launchers {
		l.Kill()
	}
	e.launchers = nil
	return nil
}

type rodPage struct {
	engine    *rodEngine
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	closeOnce sync.Once
}

func (p *rodPage) apply(opts PageOptions) error {
	if opts.UserAgent != "" {
		err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: AcceptLanguage(opts.Locale),
		})
		if err != nil {
			return fmt.Errorf("设置 UA 失败: %w", err)
		}
	}
	if opts.Viewport.Width > 0 {
		err := p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("设置视口失败: %w", err)
		}
	}
	if len(opts.BlockResources) > 0 {
		blocked := make(map[proto.NetworkResourceType]bool, len(opts.BlockResources))
		for _, rt := range opts.BlockResources {
			blocked[proto.NetworkResourceType(rt)] = true
		}
		p.router = p.page.HijackRequests()
		err := p.router.Add("*", "", func(h *rod.Hijack) {
			if blocked[h.Request.Type()] {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			h.ContinueRequest(&proto.FetchContinueRequest{})
		})
		if err != nil {
			return fmt.Errorf("设置资源拦截失败: %w", err)
		}
		go p.router.Run()
	}
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

func (p *rodPage) Has(ctx context.Context, selector string) bool {
	has, _, err := p.page.Context(ctx).Has(selector)
	return err == nil && has
}

func (p *rodPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	return el, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	_, err := p.element(ctx, selector)
	return err
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Focus(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Focus()
}

func (p *rodPage) SelectAll(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}
	return el.SelectAllText()
}

func (p *rodPage) InsertText(ctx context.Context, text string) error {
	return p.page.Context(ctx).InsertText(text)
}

func (p *rodPage) Press(ctx context.Context, key Key) error {
	k := input.Escape
	if key == KeyEnter {
		k = input.Enter
	}
	return p.page.Context(ctx).KeyActions().Press(k).Do()
}

func (p *rodPage) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Scroll(ctx context.Context, ratio float64) error {
	_, err := p.page.Context(ctx).Eval(fmt.Sprintf(`() => window.scrollTo({
		top: document.body.scrollHeight * %f,
		behavior: 'smooth'
	})`, ratio))
	if err != nil {
		// JS 滚动失败时退回鼠标滚轮
		return p.page.Context(ctx).Mouse.Scroll(0, 800*ratio, 4)
	}
	return nil
}

func (p *rodPage) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
		})
	}
	return p.page.Context(ctx).SetCookies(params)
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, nil)
}

// Close 关闭页面和隐身上下文,把浏览器放回池中
func (p *rodPage) Close() error {
	p.closeOnce.Do(p.release)
	return nil
}

func (p *rodPage) release() {
	if p.router != nil {
		_ = p.router.Stop()
	}
	if p.page != nil {
		_ = p.page.Close()
	}
	if p.incognito != nil {
		_ = p.incognito.Close()
	}
	p.engine.browserPool.Put(p.browser)
}
