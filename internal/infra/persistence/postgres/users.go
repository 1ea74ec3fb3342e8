package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	sq "github.com/Masterminds/squirrel"
)

var _ ports.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	db *sql.DB
}

func findUserQuery(userID string) sq.SelectBuilder {
	return psql.Select("id", "name", "email", "telegram_chat_id").From("users").Where(sq.Eq{"id": userID})
}

func (r *UserRepository) Find(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := findUserQuery(userID).RunWith(r.db).QueryRowContext(ctx).Scan(&u.ID, &u.Name, &u.Email, &u.TelegramChatID)
	if notFound(err) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}
