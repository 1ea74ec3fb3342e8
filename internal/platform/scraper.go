package platform

import (
	"context"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/PuerkitoBio/goquery"
)

// 评论"加载更多"最多点击的次数
const maxLoadMore = 20

// PageScraper 打开页面、处理弹窗、滚动加载后解析 HTML 的通用抓取流程。
// 平台只需要提供地址规则、就绪标记和解析函数。
type PageScraper struct {
	Platform string
	Markers  session.Markers

	ArticleURL   func(target Target) string
	ArticleReady string
	// LoadMoreComments 评论区"加载更多"按钮,可为空
	LoadMoreComments string
	ProfileReady     string
	ScrollRounds     int

	Stats    func(doc *goquery.Document, target Target) model.RawArticleStats
	Comments func(doc *goquery.Document) []model.RawComment
	Profile  func(doc *goquery.Document, url string) model.RawUserProfile
}

func (p *PageScraper) ID() string { return p.Platform }

// StatsURL 静态抓取使用的文章地址
func (p *PageScraper) StatsURL(target Target) string { return p.ArticleURL(target) }

// ParseStats 浏览器抓取和静态抓取共用同一个解析函数
func (p *PageScraper) ParseStats(doc *goquery.Document, target Target) model.RawArticleStats {
	raw := p.Stats(doc, target)
	if raw.RemoteID == "" {
		raw.RemoteID = target.RemoteID
	}
	if raw.URL == "" {
		raw.URL = p.ArticleURL(target)
	}
	return raw
}

func (p *PageScraper) ScrapeStats(ctx context.Context, s *session.Session, target Target) (model.RawArticleStats, error) {
	doc, err := p.open(ctx, s, p.ArticleURL(target), p.ArticleReady, 1)
	if err != nil {
		return model.RawArticleStats{}, err
	}
	return p.ParseStats(doc, target), nil
}

func (p *PageScraper) ScrapeComments(ctx context.Context, s *session.Session, target Target, opts CommentOptions) ([]model.RawComment, error) {
	limit := opts.Limit
	if err := p.load(ctx, s, p.ArticleURL(target), p.ArticleReady, p.rounds(opts.ScrollRounds)); err != nil {
		return nil, err
	}
	if p.LoadMoreComments != "" {
		for i := 0; i < maxLoadMore && s.Has(ctx, p.LoadMoreComments); i++ {
			if doc, err := p.snapshot(ctx, s); err == nil && limit > 0 && len(p.Comments(doc)) >= limit {
				break
			}
			if !s.SafeClick(ctx, p.LoadMoreComments, 0) {
				break
			}
		}
	}
	doc, err := p.snapshot(ctx, s)
	if err != nil {
		return nil, err
	}
	comments := p.Comments(doc)
	if limit > 0 && len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (p *PageScraper) ScrapeProfile(ctx context.Context, s *session.Session, profileURL string) (model.RawUserProfile, error) {
	doc, err := p.open(ctx, s, profileURL, p.ProfileReady, 1)
	if err != nil {
		return model.RawUserProfile{}, err
	}
	return p.Profile(doc, profileURL), nil
}

// rounds 任务指定的滚动次数优先,其次是插件设置
func (p *PageScraper) rounds(requested int) int {
	if requested > 0 {
		return requested
	}
	if p.ScrollRounds > 0 {
		return p.ScrollRounds
	}
	return 3
}

func (p *PageScraper) load(ctx context.Context, s *session.Session, url, ready string, rounds int) error {
	if url == "" {
		return errs.New(errs.ValidationError, p.Platform, "缺少抓取地址")
	}
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	if err := s.DetectAntiAutomation(ctx, p.Markers); err != nil {
		return err
	}
	if ready != "" {
		if err := s.WaitFor(ctx, ready, 0); err != nil {
			return err
		}
	}
	return s.Scroll(ctx, rounds)
}

func (p *PageScraper) open(ctx context.Context, s *session.Session, url, ready string, rounds int) (*goquery.Document, error) {
	if err := p.load(ctx, s, url, ready, rounds); err != nil {
		return nil, err
	}
	return p.snapshot(ctx, s)
}

func (p *PageScraper) snapshot(ctx context.Context, s *session.Session) (*goquery.Document, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := ParseHTML(html)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, p.Platform, "parse html", err)
	}
	return doc, nil
}
