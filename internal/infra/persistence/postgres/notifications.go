package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var _ ports.NotificationStore = (*NotificationRepository)(nil)

type NotificationRepository struct {
	db *sql.DB
}

func insertNotificationQuery(n *model.Notification, metadata []byte) sq.InsertBuilder {
	return psql.Insert("notifications").
		Columns("id", "user_id", "type", "title", "message", "article_id", "platform", "severity", "metadata", "read", "created_at").
		Values(n.ID, n.UserID, n.Type, n.Title, n.Message, n.ArticleID, n.Platform, string(n.Severity), metadata, n.Read, n.CreatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING")
}

// Create 未设置 ID 和时间时在这里补齐。ID 已存在时不做任何修改,重复投递的通知任务按成功处理。
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	metadata := []byte("{}")
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("序列化通知元数据失败: %w", err)
		}
		metadata = b
	}
	if _, err := insertNotificationQuery(n, metadata).RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("保存通知失败: %w", err)
	}
	return nil
}
