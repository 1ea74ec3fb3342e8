package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var _ ports.ArticleStore = (*ArticleRepository)(nil)

type ArticleRepository struct {
	db *sql.DB
}

var articleColumns = []string{
	"a.id", "a.user_id", "a.title", "a.content", "a.summary", "a.tags", "a.category", "a.cover_image", "a.status",
}

var platformColumns = []string{
	"article_id", "platform", "status", "url", "remote_id", "published_at", "error", "updated_at",
}

func findArticleQuery(articleID, userID string) sq.SelectBuilder {
	q := psql.Select(articleColumns...).From("articles a").Where(sq.Eq{"a.id": articleID})
	if userID != "" {
		q = q.Where(sq.Eq{"a.user_id": userID})
	}
	return q
}

func listPublishedQuery(platform string, limit int) sq.SelectBuilder {
	q := psql.Select(articleColumns...).
		From("articles a").
		Join("article_platforms p ON p.article_id = a.id").
		Where(sq.Eq{"p.platform": platform, "p.status": string(model.PlatformPublished)}).
		OrderBy("p.published_at DESC NULLS LAST", "a.id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func platformStatesQuery(articleIDs []string) sq.SelectBuilder {
	return psql.Select(platformColumns...).From("article_platforms").Where(sq.Eq{"article_id": articleIDs})
}

func upsertPlatformQuery(articleID, platform string, st model.PlatformPublishState) sq.InsertBuilder {
	return psql.Insert("article_platforms").
		Columns(platformColumns...).
		Values(articleID, platform, string(st.Status), st.URL, st.RemoteID, st.PublishedAt, st.Error, st.UpdatedAt).
		Suffix(`ON CONFLICT (article_id, platform) DO UPDATE SET
			status = EXCLUDED.status, url = EXCLUDED.url, remote_id = EXCLUDED.remote_id,
			published_at = EXCLUDED.published_at, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`)
}

func updateArticleQuery(articleID, userID string, set map[string]any) sq.UpdateBuilder {
	q := psql.Update("articles").SetMap(set).Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": articleID})
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	return q
}

func scanArticle(row sq.RowScanner) (model.Article, error) {
	var a model.Article
	var status string
	err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.Content, &a.Summary, pq.Array(&a.Tags), &a.Category, &a.CoverImage, &status)
	a.Status = model.ArticleStatus(status)
	a.Platforms = map[string]model.PlatformPublishState{}
	return a, err
}

func (r *ArticleRepository) Find(ctx context.Context, articleID, userID string) (*model.Article, error) {
	a, err := scanArticle(findArticleQuery(articleID, userID).RunWith(r.db).QueryRowContext(ctx))
	if notFound(err) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文章失败: %w", err)
	}
	articles := []model.Article{a}
	if err := r.loadPlatforms(ctx, articles); err != nil {
		return nil, err
	}
	return &articles[0], nil
}

// loadPlatforms 一次查询补齐多篇文章的平台子状态
func (r *ArticleRepository) loadPlatforms(ctx context.Context, articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}
	index := make(map[string]*model.Article, len(articles))
	ids := make([]string, 0, len(articles))
	for i := range articles {
		index[articles[i].ID] = &articles[i]
		ids = append(ids, articles[i].ID)
	}
	rows, err := platformStatesQuery(ids).RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("查询发布状态失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		articleID, platform, st, err := scanPlatform(rows)
		if err != nil {
			return fmt.Errorf("读取发布状态失败: %w", err)
		}
		if a, ok := index[articleID]; ok {
			a.Platforms[platform] = st
		}
	}
	return rows.Err()
}

func scanPlatform(row sq.RowScanner) (string, string, model.PlatformPublishState, error) {
	var (
		articleID, platform, status string
		publishedAt                 sql.NullTime
		st                          model.PlatformPublishState
	)
	err := row.Scan(&articleID, &platform, &status, &st.URL, &st.RemoteID, &publishedAt, &st.Error, &st.UpdatedAt)
	st.Status = model.PlatformStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		st.PublishedAt = &t
	}
	return articleID, platform, st, err
}

func (r *ArticleRepository) PlatformState(ctx context.Context, articleID, platform string) (model.PlatformPublishState, error) {
	row := platformStatesQuery([]string{articleID}).Where(sq.Eq{"platform": platform}).RunWith(r.db).QueryRowContext(ctx)
	_, _, st, err := scanPlatform(row)
	if notFound(err) {
		return model.PlatformPublishState{}, ports.ErrNotFound
	}
	if err != nil {
		return model.PlatformPublishState{}, fmt.Errorf("查询发布状态失败: %w", err)
	}
	return st, nil
}

// UpdatePlatformState 在同一个事务里确认文章归属并写入子状态
func (r *ArticleRepository) UpdatePlatformState(ctx context.Context, articleID, userID, platform string, state model.PlatformPublishState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := execOne(ctx, updateArticleQuery(articleID, userID, map[string]any{}).RunWith(tx)); err != nil {
		return err
	}
	if _, err := upsertPlatformQuery(articleID, platform, state).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("保存发布状态失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (r *ArticleRepository) UpdateStatus(ctx context.Context, articleID, userID string, status model.ArticleStatus) error {
	return execOne(ctx, updateArticleQuery(articleID, userID, map[string]any{"status": string(status)}).RunWith(r.db))
}

func (r *ArticleRepository) UpdateSummary(ctx context.Context, articleID, userID, summary string) error {
	return execOne(ctx, updateArticleQuery(articleID, userID, map[string]any{"summary": summary}).RunWith(r.db))
}

func (r *ArticleRepository) ListPublished(ctx context.Context, platform string, limit int) ([]model.Article, error) {
	rows, err := listPublishedQuery(platform, limit).RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询已发布文章失败: %w", err)
	}
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("读取文章失败: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if err := r.loadPlatforms(ctx, articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// execOne 没有命中任何行时返回 ports.ErrNotFound
func execOne(ctx context.Context, q sq.UpdateBuilder) error {
	res, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("更新文章失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新文章失败: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}
