// Package ports 编排器依赖的外部存储和队列接口
package ports

import (
	"context"
	"errors"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
)

// ErrNotFound 存储中没有对应记录
var ErrNotFound = errors.New("记录不存在")

type ArticleStore interface {
	Find(ctx context.Context, articleID, userID string) (*model.Article, error)
	PlatformState(ctx context.Context, articleID, platform string) (model.PlatformPublishState, error)
	UpdatePlatformState(ctx context.Context, articleID, userID, platform string, state model.PlatformPublishState) error
	UpdateStatus(ctx context.Context, articleID, userID string, status model.ArticleStatus) error
	UpdateSummary(ctx context.Context, articleID, userID, summary string) error
	// ListPublished 在某个平台上已发布的文章,用于定时抓取统计
	ListPublished(ctx context.Context, platform string, limit int) ([]model.Article, error)
}

type CredentialStore interface {
	// GetUserCredentials 没有凭证的平台不出现在返回值中
	GetUserCredentials(ctx context.Context, userID string, platforms []string) (map[string]model.LoginCredentials, error)
}

type UserStore interface {
	Find(ctx context.Context, userID string) (*model.User, error)
}

// ResultsStore 抓取结果按快照追加保存
type ResultsStore interface {
	SaveStats(ctx context.Context, stats []model.ArticleStats) error
	SaveComments(ctx context.Context, comments []model.Comment) error
	SaveProfile(ctx context.Context, profile model.UserProfile) error
}

type NotificationStore interface {
	// Create 对同一 ID 幂等,记录已存在时返回 nil
	Create(ctx context.Context, n *model.Notification) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any, opts jobqueue.EnqueueOptions) (string, error)
}
