package platform

import (
	"context"
	"regexp"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

// 编辑器流程中必需的步骤,失败时返回 InteractionTimeout

func Click(ctx context.Context, s *session.Session, selector string) error {
	if !s.SafeClick(ctx, selector, 0) {
		return errs.New(errs.InteractionTimeout, s.Platform(), "找不到可点击的元素 %s", selector)
	}
	return nil
}

func Type(ctx context.Context, s *session.Session, selector, text string) error {
	if !s.SafeType(ctx, selector, text, 0) {
		return errs.New(errs.InteractionTimeout, s.Platform(), "无法输入 %s", selector)
	}
	return nil
}

func Replace(ctx context.Context, s *session.Session, selector, text string) error {
	if !s.SafeReplace(ctx, selector, text, 0) {
		return errs.New(errs.InteractionTimeout, s.Platform(), "无法替换 %s 的内容", selector)
	}
	return nil
}

// AddTags 逐个输入标签并回车确认,标签输入框缺失或单个标签失败都不影响发布
func AddTags(ctx context.Context, s *session.Session, selector string, tags []string, limit int) {
	for i, tag := range tags {
		if limit > 0 && i >= limit {
			return
		}
		if !s.SafeType(ctx, selector, tag, time.Second) {
			s.Logger().WithField("tag", tag).Debug("添加标签失败")
			return
		}
		_ = s.Press(ctx, browser.KeyEnter)
	}
}

// ReadOutcome 发布成功后从结果页的链接或当前地址中取出文章地址和 ID
func ReadOutcome(ctx context.Context, s *session.Session, base string, pattern *regexp.Regexp, linkSelectors ...string) (Outcome, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return Outcome{}, err
	}
	doc, err := ParseHTML(html)
	if err != nil {
		return Outcome{}, errs.Wrap(errs.Internal, s.Platform(), "parse result page", err)
	}
	candidates := []string{AbsURL(base, FirstAttr(doc.Selection, "href", linkSelectors...)), s.CurrentURL(ctx)}
	for _, url := range candidates {
		if id := MatchID(pattern, url); id != "" {
			return Outcome{URL: url, RemoteID: id}, nil
		}
	}
	return Outcome{}, errs.New(errs.InteractionTimeout, s.Platform(), "发布后未找到文章链接")
}
