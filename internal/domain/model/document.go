package model

import (
	"fmt"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

// Document 写入 Elasticsearch 的结果文档需要实现的接口
type Document interface {
	GetID() string
	GetIndex() string
	GetTypeMapping() *types.TypeMapping
}

// StatsDoc 每次抓取生成一条新快照,ID 含抓取时间,不覆盖旧数据
type StatsDoc struct {
	ArticleStats
}

func (d *StatsDoc) GetID() string {
	return fmt.Sprintf("%s:%s:%d", d.Platform, firstNonEmpty(d.RemoteID, d.ArticleID, d.URL), d.ScrapedAt.UnixMilli())
}

func (d *StatsDoc) GetIndex() string { return "article-stats" }

func (d *StatsDoc) GetTypeMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"platform":    types.NewKeywordProperty(),
			"articleId":   types.NewKeywordProperty(),
			"remoteId":    types.NewKeywordProperty(),
			"url":         types.NewKeywordProperty(),
			"title":       types.NewTextProperty(),
			"views":       types.NewLongNumberProperty(),
			"likes":       types.NewLongNumberProperty(),
			"comments":    types.NewLongNumberProperty(),
			"collects":    types.NewLongNumberProperty(),
			"shares":      types.NewLongNumberProperty(),
			"publishedAt": types.NewDateProperty(),
			"scrapedAt":   types.NewDateProperty(),
		},
	}
}

type CommentDoc struct {
	Comment
}

func (d *CommentDoc) GetID() string {
	return fmt.Sprintf("%s:%s:%s:%d", d.Platform, d.ArticleID, firstNonEmpty(d.RemoteID, d.Author), d.ScrapedAt.UnixMilli())
}

func (d *CommentDoc) GetIndex() string { return "article-comments" }

func (d *CommentDoc) GetTypeMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"platform":  types.NewKeywordProperty(),
			"articleId": types.NewKeywordProperty(),
			"remoteId":  types.NewKeywordProperty(),
			"author":    types.NewKeywordProperty(),
			"content":   types.NewTextProperty(),
			"likes":     types.NewLongNumberProperty(),
			"createdAt": types.NewDateProperty(),
			"scrapedAt": types.NewDateProperty(),
			"replies":   types.NewObjectProperty(),
		},
	}
}

type ProfileDoc struct {
	UserProfile
}

func (d *ProfileDoc) GetID() string {
	return fmt.Sprintf("%s:%s:%d", d.Platform, firstNonEmpty(d.RemoteID, d.URL), d.ScrapedAt.UnixMilli())
}

func (d *ProfileDoc) GetIndex() string { return "user-profiles" }

func (d *ProfileDoc) GetTypeMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"platform":   types.NewKeywordProperty(),
			"remoteId":   types.NewKeywordProperty(),
			"url":        types.NewKeywordProperty(),
			"nickname":   types.NewKeywordProperty(),
			"followers":  types.NewLongNumberProperty(),
			"following":  types.NewLongNumberProperty(),
			"articles":   types.NewLongNumberProperty(),
			"totalViews": types.NewLongNumberProperty(),
			"totalLikes": types.NewLongNumberProperty(),
			"scrapedAt":  types.NewDateProperty(),
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
