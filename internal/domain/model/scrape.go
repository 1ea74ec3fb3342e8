package model

import "time"

// RawArticleStats 页面上抓到的原始文本,交给 normalize 包转换
type RawArticleStats struct {
	RemoteID    string
	URL         string
	Title       string
	Views       string
	Likes       string
	Comments    string
	Collects    string
	Shares      string
	PublishedAt string
}

// Empty 静态抓取没有拿到任何计数时为 true
func (r RawArticleStats) Empty() bool {
	return r.Views == "" && r.Likes == "" && r.Comments == "" && r.Collects == ""
}

type RawComment struct {
	RemoteID  string
	Author    string
	Content   string
	Likes     string
	CreatedAt string
	Replies   []RawComment
}

type RawUserProfile struct {
	RemoteID   string
	Nickname   string
	Followers  string
	Following  string
	Articles   string
	TotalViews string
	TotalLikes string
}

type ArticleStats struct {
	Platform    string     `json:"platform"`
	ArticleID   string     `json:"articleId,omitempty"`
	RemoteID    string     `json:"remoteId,omitempty"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Views       int64      `json:"views"`
	Likes       int64      `json:"likes"`
	Comments    int64      `json:"comments"`
	Collects    int64      `json:"collects"`
	Shares      int64      `json:"shares"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ScrapedAt   time.Time  `json:"scrapedAt"`
}

type Comment struct {
	Platform  string    `json:"platform"`
	ArticleID string    `json:"articleId,omitempty"`
	RemoteID  string    `json:"remoteId,omitempty"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Likes     int64     `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	Replies   []Comment `json:"replies,omitempty"`
	ScrapedAt time.Time `json:"scrapedAt"`
}

type UserProfile struct {
	Platform   string    `json:"platform"`
	RemoteID   string    `json:"remoteId,omitempty"`
	URL        string    `json:"url"`
	Nickname   string    `json:"nickname"`
	Followers  int64     `json:"followers"`
	Following  int64     `json:"following"`
	Articles   int64     `json:"articles"`
	TotalViews int64     `json:"totalViews"`
	TotalLikes int64     `json:"totalLikes"`
	ScrapedAt  time.Time `json:"scrapedAt"`
}
