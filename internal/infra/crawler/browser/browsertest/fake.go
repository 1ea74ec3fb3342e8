// Package browsertest 提供内存中的 browser.Engine,供会话、插件和编排器测试使用
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser"
)

// Engine 记录创建和关闭的页面数量。Setup 在每个新页面返回前调用。
type Engine struct {
	mu         sync.Mutex
	Pages      []*Page
	NewPageErr error
	Setup      func(p *Page)
}

func (e *Engine) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewPageErr != nil {
		return nil, e.NewPageErr
	}
	p := NewPage()
	p.Options = opts
	if e.Setup != nil {
		e.Setup(p)
	}
	e.Pages = append(e.Pages, p)
	return p, nil
}

func (e *Engine) Close() error { return nil }

// Opened 已创建的页面数
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Pages)
}

// Closed 每个页面被关闭的次数之和
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.Pages {
		n += p.CloseCount()
	}
	return n
}

// Page 用选择器集合模拟 DOM。Elements 中存在的选择器视为可见,值为元素文本。
type Page struct {
	mu sync.Mutex

	Options  browser.PageOptions
	Elements map[string]string
	Body     string
	// Routes 导航到某个 URL 时替换 Body,key 为 URL 子串
	Routes      map[string]string
	CurrentURL  string
	NavigateErr error

	// OnClick 点击某个选择器后的副作用,例如跳转或弹窗消失
	OnClick    map[string]func(p *Page)
	OnNavigate func(p *Page, url string)

	Visited []string
	Clicks  []string
	Typed   map[string]string
	Keys    []browser.Key
	Cookies []model.Cookie
	Shots   int
	Scrolls int
	closed  int
	focused string
}

func NewPage() *Page {
	return &Page{
		Elements: map[string]string{},
		Routes:   map[string]string{},
		OnClick:  map[string]func(p *Page){},
		Typed:    map[string]string{},
	}
}

func (p *Page) Set(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Elements[selector] = text
}

func (p *Page) Remove(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.Elements, s)
	}
}

func (p *Page) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) TypedInto(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Typed[selector]
}

func (p *Page) Clicked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Clicks {
		if c == selector {
			return true
		}
	}
	return false
}

func (p *Page) live() error {
	if p.closed > 0 {
		return browser.ErrClosed
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if err := p.live(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.NavigateErr != nil {
		p.mu.Unlock()
		return p.NavigateErr
	}
	p.Visited = append(p.Visited, url)
	p.CurrentURL = url
	for key, body := range p.Routes {
		if strings.Contains(url, key) {
			p.Body = body
		}
	}
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return ctx.Err()
}

func (p *Page) Has(ctx context.Context, selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.Elements[selector]
	return ok && p.closed == 0
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if p.Has(ctx, selector) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("元素不存在: %s: %w", selector, context.DeadlineExceeded)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.Clicks = append(p.Clicks, selector)
	hook := p.OnClick[selector]
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.focused = selector
	p.mu.Unlock()
	return nil
}

func (p *Page) SelectAll(ctx context.Context, selector string) error {
	if err := p.Focus(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Typed[selector] = ""
	return nil
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.focused == "" {
		return errors.New("没有获得焦点的元素")
	}
	p.Typed[p.focused] += text
	return nil
}

func (p *Page) Press(ctx context.Context, key browser.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.Elements[selector]
	if !ok {
		return "", fmt.Errorf("元素不存在: %s", selector)
	}
	return text, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.live(); err != nil {
		return "", err
	}
	return p.Body, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *Page) Scroll(ctx context.Context, ratio float64) error {
	p.mu.Lock()
	p.Scrolls++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cookies = append(p.Cookies, cookies...)
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shots++
	return []byte("\x89PNG"), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}
