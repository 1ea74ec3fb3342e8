package model

import "time"

type Severity string

const (
	SeverityRoutine Severity = "routine"
	SeverityFailure Severity = "failure"
	SeverityAlert   Severity = "alert"
)

// 通知类型
const (
	NotifyPublishSuccess = "publish_success"
	NotifyPublishFailed  = "publish_failed"
	NotifyScrapeFailed   = "scrape_failed"
	NotifyOperatorAlert  = "operator_alert"
)

type NotificationJobData struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	UserID    string         `json:"userId,omitempty"`
	ArticleID string         `json:"articleId,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Severity  Severity       `json:"severity,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Notification 站内信记录,用户是否看到以它为准
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	ArticleID string         `json:"articleId,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Severity  Severity       `json:"severity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}
