// Package platform 定义发布/抓取插件接口、平台注册表,以及在会话中执行插件的边界层。
package platform

import (
	"context"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/PuerkitoBio/goquery"
)

// Outcome 发布或更新成功后平台返回的文章地址和 ID
type Outcome struct {
	URL      string
	RemoteID string
}

// Target 抓取目标,URL 和 RemoteID 至少有一个
type Target struct {
	URL      string
	RemoteID string
}

// Publisher 发布插件。所有方法都在调用方提供的会话中执行,会话的生命周期不归插件管理。
type Publisher interface {
	ID() string
	Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error
	Publish(ctx context.Context, s *session.Session, article *model.Article) (Outcome, error)
	Update(ctx context.Context, s *session.Session, remoteID string, article *model.Article) (Outcome, error)
	Delete(ctx context.Context, s *session.Session, remoteID string) error
}

// CommentOptions 评论抓取参数,零值表示使用插件默认值
type CommentOptions struct {
	Limit        int
	ScrollRounds int
}

// Scraper 抓取插件,返回页面上的原始文本,由 normalize 包转换
type Scraper interface {
	ID() string
	ScrapeStats(ctx context.Context, s *session.Session, target Target) (model.RawArticleStats, error)
	ScrapeComments(ctx context.Context, s *session.Session, target Target, opts CommentOptions) ([]model.RawComment, error)
	ScrapeProfile(ctx context.Context, s *session.Session, profileURL string) (model.RawUserProfile, error)
}

// StaticStatsParser 文章页的计数是服务端渲染时,可以不开浏览器直接解析
type StaticStatsParser interface {
	StatsURL(target Target) string
	ParseStats(doc *goquery.Document, target Target) model.RawArticleStats
}
