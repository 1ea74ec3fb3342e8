package csdn

import (
	"strings"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/PuerkitoBio/goquery"
)

var comments = platform.CommentSelectors{
	Item:    ".comment-list-box .comment-list > li.comment-line-box",
	IDAttr:  "data-commentid",
	Author:  ".comment-top .name",
	Content: ".new-comment",
	Likes:   ".comment-like .num",
	Time:    ".comment-top .date",
	Reply:   ".replay-box li.comment-line-box",
}

func NewScraper() *platform.PageScraper {
	return &platform.PageScraper{
		Platform:         ID,
		Markers:          markers,
		ArticleURL:       articleURL,
		ArticleReady:     "#content_views",
		LoadMoreComments: ".comment-list-box .btn-more-comment",
		ProfileReady:     ".user-profile-head",
		Stats:            parseStats,
		Comments:         func(doc *goquery.Document) []model.RawComment { return platform.ParseComments(doc.Selection, comments) },
		Profile:          parseProfile,
	}
}

func parseStats(doc *goquery.Document, target platform.Target) model.RawArticleStats {
	root := doc.Selection
	return model.RawArticleStats{
		RemoteID:    platform.MatchID(articlePattern, target.URL),
		Title:       platform.FirstText(root, "#articleContentId", "h1.title-article"),
		Views:       platform.FirstText(root, ".bar-content .read-count"),
		Likes:       platform.FirstText(root, ".tool-item-thumbs #spanCount", "#blog-digg-num"),
		Comments:    platform.FirstText(root, ".tool-item-comment .count"),
		Collects:    platform.FirstText(root, ".tool-item-collect .get-collection", ".bar-content .get-collection"),
		PublishedAt: publishedAt(platform.FirstText(root, ".bar-content .time")),
	}
}

// publishedAt 去掉 "于 2024-03-05 10:00:00 发布" 两端的文字
func publishedAt(text string) string {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "于"))
	for _, suffix := range []string{"发布", "修改"} {
		text = strings.TrimSpace(strings.TrimSuffix(text, suffix))
	}
	return text
}

// 主页上的统计是 "数字 + 标签" 的列表,按标签取值
func parseProfile(doc *goquery.Document, url string) model.RawUserProfile {
	root := doc.Selection
	stats := map[string]string{}
	root.Find(".user-profile-head-info-b li").Each(func(_ int, li *goquery.Selection) {
		label := strings.TrimSpace(li.Find(".count-label, .name").Text())
		stats[label] = strings.TrimSpace(li.Find(".count-num, .count").First().Text())
	})
	return model.RawUserProfile{
		RemoteID:   platform.MatchID(userPattern, url),
		Nickname:   platform.FirstText(root, ".user-profile-head-name > div:first-child", ".user-profile-head-name"),
		Followers:  stats["粉丝"],
		Following:  stats["关注"],
		Articles:   stats["原创"],
		TotalViews: stats["总访问量"],
		TotalLikes: stats["获赞"],
	}
}
