package model

import "time"

type ArticleStatus string

const (
	ArticleDraft      ArticleStatus = "draft"
	ArticlePublishing ArticleStatus = "publishing"
	ArticlePublished  ArticleStatus = "published"
	ArticleFailed     ArticleStatus = "failed"
)

type PlatformStatus string

const (
	PlatformPending    PlatformStatus = "pending"
	PlatformPublishing PlatformStatus = "publishing"
	PlatformPublished  PlatformStatus = "published"
	PlatformFailed     PlatformStatus = "failed"
)

// PlatformPublishState 文章在单个平台上的发布子状态
type PlatformPublishState struct {
	Status      PlatformStatus `json:"status"`
	URL         string         `json:"url,omitempty"`
	RemoteID    string         `json:"remoteId,omitempty"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Done 平台已经发布成功,重试时可以跳过
func (s PlatformPublishState) Done() bool {
	return s.Status == PlatformPublished && s.RemoteID != ""
}

type Article struct {
	ID         string                          `json:"id"`
	UserID     string                          `json:"userId"`
	Title      string                          `json:"title"`
	Content    string                          `json:"content"`
	Summary    string                          `json:"summary"`
	Tags       []string                        `json:"tags"`
	Category   string                          `json:"category"`
	CoverImage string                          `json:"coverImage"`
	Status     ArticleStatus                   `json:"status"`
	Platforms  map[string]PlatformPublishState `json:"platforms"`
}

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TelegramChatID string `json:"telegramChatId"`
}
