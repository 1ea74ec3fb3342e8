package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser"
	"github.com/sirupsen/logrus"
)

type Purpose string

const (
	PurposePublish Purpose = "publish"
	PurposeScrape  Purpose = "scrape"
)

// InterventionFunc 在等待人工处理验证码/二次验证前调用,用于通知运营人员
type InterventionFunc func(ctx context.Context, platform, reason string)

type Options struct {
	UserAgents        []string
	Locale            string
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	ManualWait        time.Duration
	ManualPoll        time.Duration
	// 操作前的随机停顿区间,都为 0 时不停顿
	DelayMin       time.Duration
	DelayMax       time.Duration
	Recorder       Recorder
	OnIntervention InterventionFunc
}

// Factory 为每个任务-平台组合创建新的会话,会话之间不共享任何状态
type Factory struct {
	Engine  browser.Engine
	Options Options
	Logger  *logrus.Entry
}

func NewFactory(cfg *config.Config, engine browser.Engine, logger *logrus.Entry) *Factory {
	b := cfg.Browser
	opts := Options{
		UserAgents:        b.UserAgents,
		Locale:            b.Locale,
		NavigationTimeout: b.NavigationTimeout.Std(),
		ElementTimeout:    b.ElementTimeout.Std(),
		ManualWait:        b.ManualWait.Std(),
		ManualPoll:        b.ManualPollInterval.Std(),
		DelayMin:          b.ActionDelayMin.Std(),
		DelayMax:          b.ActionDelayMax.Std(),
	}
	if cfg.Development() {
		opts.Recorder = NewDirRecorder(b.ScreenshotDir)
	}
	return &Factory{Engine: engine, Options: opts, Logger: logger}
}

func (f *Factory) New(platform string, purpose Purpose) *Session {
	return &Session{
		platform: platform,
		purpose:  purpose,
		engine:   f.Engine,
		opts:     f.Options,
		logger:   f.Logger.WithFields(logrus.Fields{"platform": platform, "session": purpose}),
	}
}

// Session 一次任务-平台尝试对应的浏览器会话
type Session struct {
	platform string
	purpose  Purpose
	engine   browser.Engine
	opts     Options
	logger   *logrus.Entry

	mu        sync.Mutex
	state     State
	page      browser.Page
	closeOnce sync.Once
}

func (s *Session) Platform() string { return s.platform }

func (s *Session) Logger() *logrus.Entry { return s.logger }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return errs.New(errs.Internal, s.platform, "非法的会话状态转换: %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// Initialize 获取独立的浏览器页面,设置随机 UA、视口和语言。抓取会话额外拦截图片/字体/媒体。
func (s *Session) Initialize(ctx context.Context) error {
	if err := s.transition(Initializing); err != nil {
		return err
	}
	ua, viewport := browser.RandomIdentity(s.opts.UserAgents)
	opts := browser.PageOptions{
		UserAgent: ua,
		Viewport:  viewport,
		Locale:    s.opts.Locale,
	}
	if s.purpose == PurposeScrape {
		opts.BlockResources = []browser.ResourceType{browser.ResourceImage, browser.ResourceFont, browser.ResourceMedia}
	}
	page, err := s.engine.NewPage(ctx, opts)
	if err != nil {
		_ = s.transition(Failed)
		return errs.Wrap(errs.NetworkError, s.platform, "initialize", err)
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	s.logger.WithField("viewport", fmt.Sprintf("%dx%d", viewport.Width, viewport.Height)).Debug("会话初始化完成")
	return nil
}

// Authenticate 执行平台登录步骤,失败统一归为 AuthenticationFailed(已有更具体分类的除外)
func (s *Session) Authenticate(ctx context.Context, login func(ctx context.Context) error) error {
	if err := s.transition(Authenticating); err != nil {
		return err
	}
	if err := login(ctx); err != nil {
		_ = s.transition(AuthFailed)
		s.Capture(ctx, "auth-failed")
		return errs.Wrap(errs.AuthenticationFailed, s.platform, "authenticate", err)
	}
	return s.transition(Authenticated)
}

// Execute 执行平台的主要操作(发布、抓取)
func (s *Session) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.transition(Executing); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = s.transition(Failed)
		return err
	}
	return s.transition(Completed)
}

// Close 释放浏览器资源,多次调用只生效一次
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		page := s.page
		s.page = nil
		s.state = Closed
		s.mu.Unlock()
		if page != nil {
			err = page.Close()
		}
		s.logger.Debug("会话已关闭")
	})
	return err
}

func (s *Session) live() (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, errs.New(errs.Internal, s.platform, "会话未初始化或已关闭")
	}
	return s.page, nil
}

// Navigate 打开页面,失败归为 NetworkError
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	nctx, cancel := withTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(nctx, url); err != nil {
		return errs.Wrap(errs.NetworkError, s.platform, "navigate "+url, err)
	}
	return s.Delay(ctx)
}

// WaitFor 等待必需的元素出现,超时归为 InteractionTimeout
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.opts.ElementTimeout
	}
	wctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := page.WaitVisible(wctx, selector); err != nil {
		return errs.Wrap(errs.InteractionTimeout, s.platform, "wait "+selector, err)
	}
	return nil
}

// SafeClick 等待元素出现,随机停顿后点击。失败只返回 false,不会中断会话。
func (s *Session) SafeClick(ctx context.Context, selector string, timeout time.Duration) bool {
	page, err := s.live()
	if err != nil {
		return false
	}
	if err := s.WaitFor(ctx, selector, timeout); err != nil {
		s.logger.WithField("selector", selector).Debug("点击目标未出现")
		return false
	}
	if s.Delay(ctx) != nil {
		return false
	}
	cctx, cancel := withTimeout(ctx, s.timeout(timeout))
	defer cancel()
	if err := page.Click(cctx, selector); err != nil {
		s.logger.WithError(err).WithField("selector", selector).Warn("点击失败")
		return false
	}
	return true
}

// 超过这个长度的文本按块输入,否则长文章逐字输入要几分钟
const typeChunkThreshold = 200

// SafeType 聚焦输入框后逐字输入,每个字符之间有随机间隔
func (s *Session) SafeType(ctx context.Context, selector, text string, timeout time.Duration) bool {
	return s.typeInto(ctx, selector, text, timeout, false)
}

// SafeReplace 与 SafeType 相同,但会先选中已有内容再输入,用于编辑已发布的文章
func (s *Session) SafeReplace(ctx context.Context, selector, text string, timeout time.Duration) bool {
	return s.typeInto(ctx, selector, text, timeout, true)
}

func (s *Session) typeInto(ctx context.Context, selector, text string, timeout time.Duration, replace bool) bool {
	if !s.SafeClick(ctx, selector, timeout) {
		return false
	}
	page, err := s.live()
	if err != nil {
		return false
	}
	tctx, cancel := withTimeout(ctx, s.timeout(timeout))
	defer cancel()
	if replace {
		err = page.SelectAll(tctx, selector)
	} else {
		err = page.Focus(tctx, selector)
	}
	if err != nil {
		s.logger.WithError(err).WithField("selector", selector).Warn("聚焦失败")
		return false
	}
	chunk := 1
	runes := []rune(text)
	if len(runes) > typeChunkThreshold {
		chunk = 64
	}
	for i := 0; i < len(runes); i += chunk {
		end := min(i+chunk, len(runes))
		if err := page.InsertText(ctx, string(runes[i:end])); err != nil {
			s.logger.WithError(err).WithField("selector", selector).Warn("输入失败")
			return false
		}
		if sleep(ctx, s.keystrokeDelay()) != nil {
			return false
		}
	}
	return true
}

// SetCookies 写入登录 cookie
func (s *Session) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	return page.SetCookies(ctx, cookies)
}

// Press 发送按键
func (s *Session) Press(ctx context.Context, key browser.Key) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	return page.Press(ctx, key)
}

// Text 读取元素文本,元素不存在时返回空字符串
func (s *Session) Text(ctx context.Context, selector string) string {
	page, err := s.live()
	if err != nil || !page.Has(ctx, selector) {
		return ""
	}
	text, err := page.Text(ctx, selector)
	if err != nil {
		return ""
	}
	return text
}

func (s *Session) Has(ctx context.Context, selector string) bool {
	page, err := s.live()
	return err == nil && page.Has(ctx, selector)
}

// HasAny 返回第一个存在的选择器
func (s *Session) HasAny(ctx context.Context, selectors ...string) (string, bool) {
	for _, sel := range selectors {
		if s.Has(ctx, sel) {
			return sel, true
		}
	}
	return "", false
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	page, err := s.live()
	if err != nil {
		return "", err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return "", errs.Wrap(errs.NetworkError, s.platform, "html", err)
	}
	return html, nil
}

func (s *Session) CurrentURL(ctx context.Context) string {
	page, err := s.live()
	if err != nil {
		return ""
	}
	url, _ := page.URL(ctx)
	return url
}

// Scroll 模拟人工滚动:随机滚到 70%-100% 的位置,每次之间随机停顿,用于触发懒加载
func (s *Session) Scroll(ctx context.Context, rounds int) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	for i := range rounds {
		ratio := 0.7 + rand.Float64()*0.3
		if i == rounds-1 {
			ratio = 1
		}
		if err := page.Scroll(ctx, ratio); err != nil {
			s.logger.WithError(err).Debug("滚动失败")
		}
		if err := s.Delay(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Capture 保存诊断截图,未配置 Recorder 时不做任何事
func (s *Session) Capture(ctx context.Context, label string) {
	if s.opts.Recorder == nil {
		return
	}
	page, err := s.live()
	if err != nil {
		return
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("截图失败")
		return
	}
	if err := s.opts.Recorder.Save(s.platform, label, png); err != nil {
		s.logger.WithError(err).Warn("保存截图失败")
	}
}

// Delay 操作前的随机停顿
func (s *Session) Delay(ctx context.Context) error {
	return sleep(ctx, randomDuration(s.opts.DelayMin, s.opts.DelayMax))
}

func (s *Session) keystrokeDelay() time.Duration {
	if s.opts.DelayMax <= 0 {
		return 0
	}
	return randomDuration(30*time.Millisecond, 140*time.Millisecond)
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.opts.ElementTimeout
}

func randomDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
