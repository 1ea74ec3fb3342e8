package platform

import (
	"regexp"
	"strings"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/PuerkitoBio/goquery"
)

// ParseHTML 解析页面 HTML
func ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// FirstText 依次尝试选择器,返回第一个非空文本
func FirstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr 依次尝试选择器,返回第一个非空属性
func FirstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, s := range selectors {
		if v, ok := sel.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// MatchID 用正则第一个分组从 URL 中提取文章 ID
func MatchID(pattern *regexp.Regexp, url string) string {
	if m := pattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}

// AbsURL 补全站内相对链接
func AbsURL(base, href string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(base, "/") + href
	}
	return strings.TrimRight(base, "/") + "/" + href
}

// CommentSelectors 评论列表的结构。Reply 在每条评论内部查找,回复只展开一层。
type CommentSelectors struct {
	Item     string
	IDAttr   string
	Author   string
	Content  string
	Likes    string
	Time     string
	TimeAttr string
	Reply    string
}

// ParseComments 按 CommentSelectors 解析评论,跳过没有正文的条目
func ParseComments(root *goquery.Selection, cs CommentSelectors) []model.RawComment {
	var out []model.RawComment
	root.Find(cs.Item).Each(func(_ int, item *goquery.Selection) {
		c := parseComment(item, cs)
		if c.Content == "" {
			return
		}
		if cs.Reply != "" {
			item.Find(cs.Reply).Each(func(_ int, reply *goquery.Selection) {
				if r := parseComment(reply, cs); r.Content != "" {
					c.Replies = append(c.Replies, r)
				}
			})
		}
		out = append(out, c)
	})
	return out
}

func parseComment(item *goquery.Selection, cs CommentSelectors) model.RawComment {
	c := model.RawComment{
		Author:  FirstText(item, cs.Author),
		Content: FirstText(item, cs.Content),
		Likes:   FirstText(item, cs.Likes),
	}
	if cs.IDAttr != "" {
		c.RemoteID, _ = item.Attr(cs.IDAttr)
	}
	if cs.TimeAttr != "" {
		c.CreatedAt = FirstAttr(item, cs.TimeAttr, cs.Time)
	}
	if c.CreatedAt == "" {
		c.CreatedAt = FirstText(item, cs.Time)
	}
	return c
}
