package juejin

import (
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/PuerkitoBio/goquery"
)

var comments = platform.CommentSelectors{
	Item:     ".comment-list > .comment-item",
	IDAttr:   "data-comment-id",
	Author:   ".user-popover-box .name",
	Content:  ".content",
	Likes:    ".like-action .count",
	Time:     "time",
	TimeAttr: "datetime",
	Reply:    ".reply-list .reply-item",
}

func NewScraper() *platform.PageScraper {
	return &platform.PageScraper{
		Platform:         ID,
		Markers:          markers,
		ArticleURL:       articleURL,
		ArticleReady:     ".article-content",
		LoadMoreComments: ".comment-list-box .fetch-more-comment",
		ProfileReady:     ".user-info-block",
		Stats:            parseStats,
		Comments:         func(doc *goquery.Document) []model.RawComment { return platform.ParseComments(doc.Selection, comments) },
		Profile:          parseProfile,
	}
}

func parseStats(doc *goquery.Document, target platform.Target) model.RawArticleStats {
	root := doc.Selection
	panel := root.Find(".article-suspended-panel")
	return model.RawArticleStats{
		RemoteID:    platform.MatchID(postPattern, target.URL),
		Title:       platform.FirstText(root, "h1.article-title"),
		Views:       platform.FirstText(root, ".article-meta .views-count"),
		Likes:       platform.FirstAttr(panel, "badge", ".like-btn"),
		Comments:    platform.FirstAttr(panel, "badge", ".comment-btn"),
		Collects:    platform.FirstAttr(panel, "badge", ".collect-btn"),
		PublishedAt: platform.FirstAttr(root, "datetime", ".article-meta time"),
	}
}

func parseProfile(doc *goquery.Document, url string) model.RawUserProfile {
	root := doc.Selection
	return model.RawUserProfile{
		RemoteID:   platform.MatchID(userPattern, url),
		Nickname:   platform.FirstText(root, ".user-info-block h1.username", ".user-name"),
		Followers:  platform.FirstText(root, ".follow-block .follower .count"),
		Following:  platform.FirstText(root, ".follow-block .followee .count"),
		Articles:   platform.FirstText(root, ".list-header .nav-item.posts .count"),
		TotalViews: platform.FirstText(root, ".stat-block .stat-view-count .count"),
		TotalLikes: platform.FirstText(root, ".stat-block .stat-like-count .count"),
	}
}
