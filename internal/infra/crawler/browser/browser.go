package browser

import (
	"context"
	"errors"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
)

// ResourceType 可以在抓取会话中拦截的资源类型
type ResourceType string

const (
	ResourceImage      ResourceType = "Image"
	ResourceFont       ResourceType = "Font"
	ResourceMedia      ResourceType = "Media"
	ResourceStylesheet ResourceType = "Stylesheet"
)

// Key 会话里用到的按键
type Key string

const (
	KeyEscape Key = "Escape"
	KeyEnter  Key = "Enter"
)

var ErrClosed = errors.New("页面已关闭")

type Viewport struct {
	Width  int
	Height int
}

// PageOptions 创建页面时应用的身份和网络设置
type PageOptions struct {
	UserAgent      string
	Viewport       Viewport
	Locale         string
	BlockResources []ResourceType
}

// Engine 浏览器驱动,每个会话从这里拿一个独立的页面(独立的浏览器上下文)
type Engine interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

// Page 会话对浏览器页面的全部依赖。所有等待都受 ctx 约束。
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Has 立即检查元素是否存在,不等待
	Has(ctx context.Context, selector string) bool
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Focus(ctx context.Context, selector string) error
	// SelectAll 选中元素内全部文本,随后的 InsertText 会替换它
	SelectAll(ctx context.Context, selector string) error
	InsertText(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
	Text(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Scroll(ctx context.Context, ratio float64) error
	SetCookies(ctx context.Context, cookies []model.Cookie) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
