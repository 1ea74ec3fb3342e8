package normalize

import (
	"strings"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
)

func Stats(platform string, raw model.RawArticleStats, now time.Time) model.ArticleStats {
	stats := model.ArticleStats{
		Platform:  platform,
		RemoteID:  raw.RemoteID,
		URL:       raw.URL,
		Title:     strings.TrimSpace(raw.Title),
		Views:     ParseCount(raw.Views),
		Likes:     ParseCount(raw.Likes),
		Comments:  ParseCount(raw.Comments),
		Collects:  ParseCount(raw.Collects),
		Shares:    ParseCount(raw.Shares),
		ScrapedAt: now,
	}
	if raw.PublishedAt != "" {
		t := ParseRelativeOrAbsoluteDate(raw.PublishedAt, now)
		stats.PublishedAt = &t
	}
	return stats
}

func Comments(platform, articleID string, raw []model.RawComment, now time.Time) []model.Comment {
	out := make([]model.Comment, 0, len(raw))
	for _, rc := range raw {
		c := model.Comment{
			Platform:  platform,
			ArticleID: articleID,
			RemoteID:  rc.RemoteID,
			Author:    strings.TrimSpace(rc.Author),
			Content:   strings.TrimSpace(rc.Content),
			Likes:     ParseCount(rc.Likes),
			CreatedAt: ParseRelativeOrAbsoluteDate(rc.CreatedAt, now),
			ScrapedAt: now,
		}
		if len(rc.Replies) > 0 {
			c.Replies = Comments(platform, articleID, rc.Replies, now)
		}
		out = append(out, c)
	}
	return out
}

func Profile(platform, url string, raw model.RawUserProfile, now time.Time) model.UserProfile {
	return model.UserProfile{
		Platform:   platform,
		RemoteID:   raw.RemoteID,
		URL:        url,
		Nickname:   strings.TrimSpace(raw.Nickname),
		Followers:  ParseCount(raw.Followers),
		Following:  ParseCount(raw.Following),
		Articles:   ParseCount(raw.Articles),
		TotalViews: ParseCount(raw.TotalViews),
		TotalLikes: ParseCount(raw.TotalLikes),
		ScrapedAt:  now,
	}
}
