package zhihu

import (
	"strings"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/PuerkitoBio/goquery"
)

var comments = platform.CommentSelectors{
	Item:    ".Comments-container .NestComment > .CommentItemV2",
	IDAttr:  "data-id",
	Author:  ".CommentItemV2-meta .UserLink-link",
	Content: ".CommentContent",
	Likes:   ".CommentItemV2-likeBtn .Count",
	Time:    ".CommentItemV2-time",
	Reply:   ".NestComment--child .CommentItemV2",
}

func NewScraper() *platform.PageScraper {
	return &platform.PageScraper{
		Platform:         ID,
		Markers:          markers,
		ArticleURL:       articleURL,
		ArticleReady:     ".Post-RichTextContainer",
		LoadMoreComments: ".Comments-container .Button--loadMore",
		ProfileReady:     ".ProfileHeader-name",
		Stats:            parseStats,
		Comments:         func(doc *goquery.Document) []model.RawComment { return platform.ParseComments(doc.Selection, comments) },
		Profile:          parseProfile,
	}
}

// 知乎专栏文章不公开阅读数,Views 留空
func parseStats(doc *goquery.Document, target platform.Target) model.RawArticleStats {
	root := doc.Selection
	published, _, _ := strings.Cut(platform.FirstText(root, ".ContentItem-time"), "・")
	return model.RawArticleStats{
		RemoteID:    platform.MatchID(postPattern, target.URL),
		Title:       platform.FirstText(root, "h1.Post-Title"),
		Likes:       platform.FirstText(root, ".VoteButton--up"),
		Comments:    platform.FirstText(root, ".BottomActions-CommentBtn"),
		Collects:    platform.FirstText(root, ".BottomActions-CollectBtn .Count"),
		PublishedAt: strings.TrimSpace(published),
	}
}

func parseProfile(doc *goquery.Document, url string) model.RawUserProfile {
	root := doc.Selection
	board := map[string]string{}
	root.Find(".FollowshipCard-counts .NumberBoard-item").Each(func(_ int, item *goquery.Selection) {
		board[strings.TrimSpace(item.Find(".NumberBoard-itemName").Text())] = strings.TrimSpace(item.Find(".NumberBoard-itemValue").Text())
	})
	p := model.RawUserProfile{
		RemoteID:  platform.MatchID(peoplePattern, url),
		Nickname:  platform.FirstText(root, ".ProfileHeader-name"),
		Followers: board["关注者"],
		Following: board["关注了"],
		Articles:  platform.FirstText(root, ".ProfileMain-header .Tabs-link[href$='/posts'] .Tabs-meta"),
	}
	root.Find(".Profile-sideColumnItemValue").Each(func(_ int, item *goquery.Selection) {
		if text := strings.TrimSpace(item.Text()); strings.Contains(text, "赞同") {
			p.TotalLikes = text
		}
	})
	return p
}
