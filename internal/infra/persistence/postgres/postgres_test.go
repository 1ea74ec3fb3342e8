package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindArticleQuery(t *testing.T) {
	query, args, err := findArticleQuery("a1", "u1").ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "FROM articles a WHERE a.id = $1 AND a.user_id = $2")
	assert.Equal(t, []any{"a1", "u1"}, args)

	query, args, err = findArticleQuery("a1", "").ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "user_id = ")
	assert.Equal(t, []any{"a1"}, args)
}

func TestListPublishedQuery(t *testing.T) {
	query, args, err := listPublishedQuery("juejin", 20).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "JOIN article_platforms p ON p.article_id = a.id")
	assert.Contains(t, query, "p.platform = $1 AND p.status = $2")
	assert.Contains(t, query, "LIMIT 20")
	assert.Equal(t, []any{"juejin", "published"}, args)

	query, _, err = listPublishedQuery("juejin", 0).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
}

func TestPlatformStatesQueryUsesIn(t *testing.T) {
	query, args, err := platformStatesQuery([]string{"a1", "a2"}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "article_id IN ($1,$2)")
	assert.Equal(t, []any{"a1", "a2"}, args)
}

func TestUpsertPlatformQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	st := model.PlatformPublishState{Status: model.PlatformPublished, URL: "https://juejin.cn/post/1", RemoteID: "1", PublishedAt: &now, UpdatedAt: now}
	query, args, err := upsertPlatformQuery("a1", "juejin", st).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO article_platforms")
	assert.Contains(t, query, "ON CONFLICT (article_id, platform) DO UPDATE")
	require.Len(t, args, 8)
	assert.Equal(t, "published", args[2])
	assert.Equal(t, "1", args[4])
}

func TestUpdateArticleQueryTouchesUpdatedAt(t *testing.T) {
	query, args, err := updateArticleQuery("a1", "u1", map[string]any{"status": "published"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE articles SET status = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3", query)
	assert.Equal(t, []any{"published", "a1", "u1"}, args)

	// 只确认归属时也是合法语句
	query, _, err = updateArticleQuery("a1", "u1", map[string]any{}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE articles SET updated_at = NOW() WHERE id = $1 AND user_id = $2", query)
}

func TestCredentialsQuery(t *testing.T) {
	query, args, err := credentialsQuery("u1", []string{"devto", "juejin"}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "FROM platform_credentials")
	assert.Contains(t, query, "platform IN ($1,$2) AND user_id = $3")
	assert.Equal(t, []any{"devto", "juejin", "u1"}, args)
}

func TestSaveCredentialsQuery(t *testing.T) {
	query, args, err := saveCredentialsQuery("u1", "juejin", model.LoginCredentials{Username: "alice", Password: "pw"}, []byte("[]")).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "ON CONFLICT (user_id, platform)")
	assert.Equal(t, []any{"u1", "juejin", "alice", "pw", []byte("[]")}, args)
}

func TestInsertNotificationQuery(t *testing.T) {
	n := &model.Notification{ID: "n1", UserID: "u1", Type: model.NotifyPublishFailed, Title: "发布失败", Severity: model.SeverityFailure}
	query, args, err := insertNotificationQuery(n, []byte(`{"action":"publish"}`)).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO notifications")
	assert.True(t, strings.HasSuffix(query, "ON CONFLICT (id) DO NOTHING"), query)
	require.Len(t, args, 11)
	assert.Equal(t, "failure", args[7])
	assert.Equal(t, []byte(`{"action":"publish"}`), args[8])
}

func TestFindUserQuery(t *testing.T) {
	query, args, err := findUserQuery("u1").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name, email, telegram_chat_id FROM users WHERE id = $1", query)
	assert.Equal(t, []any{"u1"}, args)
}
