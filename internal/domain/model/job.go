package model

import (
	"encoding/json"
	"time"
)

// 队列名称
const (
	QueuePublish = "publish"
	QueueScrape  = "scrape"
	QueueNotify  = "notify"
)

// LoginCredentials 平台登录凭证,只作为会话的只读输入
type LoginCredentials struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Cookies  []Cookie `json:"cookies,omitempty"`
}

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path,omitempty"`
}

// String 屏蔽敏感字段,防止凭证出现在日志里
func (c LoginCredentials) String() string {
	return "LoginCredentials{username: " + maskUsername(c.Username) + ", password: ***}"
}

func (c LoginCredentials) Empty() bool {
	return c.Username == "" && c.Password == "" && len(c.Cookies) == 0
}

func maskUsername(name string) string {
	r := []rune(name)
	if len(r) <= 2 {
		return "**"
	}
	return string(r[0]) + "***" + string(r[len(r)-1])
}

// PublishAction 发布任务的动作,默认为发布
type PublishAction string

const (
	ActionPublish PublishAction = "publish"
	ActionUpdate  PublishAction = "update"
	ActionDelete  PublishAction = "delete"
)

type PublishJobData struct {
	Action      PublishAction               `json:"action,omitempty"`
	ArticleID   string                      `json:"articleId"`
	UserID      string                      `json:"userId"`
	Platforms   []string                    `json:"platforms"`
	Credentials map[string]LoginCredentials `json:"credentials,omitempty"`
}

// StripCredentials 去掉任务负载里的 credentials 字段,其余字段原样保留。
// 负载不是 JSON 对象时原样返回。
func StripCredentials(payload json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return payload
	}
	if _, ok := fields["credentials"]; !ok {
		return payload
	}
	delete(fields, "credentials")
	out, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return out
}

// PlatformResult 单个平台在一次发布任务中的结果,写入后不再修改
type PlatformResult struct {
	Platform    string    `json:"platform"`
	Success     bool      `json:"success"`
	URL         string    `json:"url,omitempty"`
	RemoteID    string    `json:"articleId,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	Skipped     bool      `json:"skipped,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

type PublishStatus string

const (
	PublishCompleted PublishStatus = "completed"
	PublishPartial   PublishStatus = "partial"
	PublishFailed    PublishStatus = "failed"
)

type PublishJobResult struct {
	ArticleID string           `json:"articleId"`
	Status    PublishStatus    `json:"status"`
	Results   []PlatformResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

type ScrapeType string

const (
	ScrapeArticleStats ScrapeType = "article-stats"
	ScrapeComments     ScrapeType = "comments"
	ScrapeUserProfile  ScrapeType = "user-profile"
	ScrapeBatchStats   ScrapeType = "batch-stats"
)

type ScrapeConfig struct {
	MaxComments    int    `json:"maxComments,omitempty"`
	IncludeReplies bool   `json:"includeReplies,omitempty"`
	ProfileURL     string `json:"profileUrl,omitempty"`
	ScrollRounds   int    `json:"scrollRounds,omitempty"`
}

type ScrapeJobData struct {
	Type     ScrapeType `json:"type"`
	Platform string     `json:"platform"`
	// UserID 接收失败通知的用户,定时任务为空
	UserID     string        `json:"userId,omitempty"`
	ArticleID  string        `json:"articleId,omitempty"`
	ArticleURL string        `json:"articleUrl,omitempty"`
	ArticleIDs []string      `json:"articleIds,omitempty"`
	Config     *ScrapeConfig `json:"config,omitempty"`
}

type BatchItemError struct {
	ArticleID string `json:"articleId"`
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// BatchSummary batch-stats 的部分成功汇总
type BatchSummary struct {
	Total   int              `json:"total"`
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Errors  []BatchItemError `json:"errors,omitempty"`
	Stats   []ArticleStats   `json:"stats,omitempty"`
}
