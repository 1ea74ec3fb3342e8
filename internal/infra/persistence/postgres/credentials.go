package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	sq "github.com/Masterminds/squirrel"
)

var _ ports.CredentialStore = (*CredentialRepository)(nil)

type CredentialRepository struct {
	db *sql.DB
}

func credentialsQuery(userID string, platforms []string) sq.SelectBuilder {
	return psql.Select("platform", "username", "password", "cookies").
		From("platform_credentials").
		Where(sq.Eq{"user_id": userID, "platform": platforms})
}

func saveCredentialsQuery(userID, platform string, c model.LoginCredentials, cookies []byte) sq.InsertBuilder {
	return psql.Insert("platform_credentials").
		Columns("user_id", "platform", "username", "password", "cookies").
		Values(userID, platform, c.Username, c.Password, cookies).
		Suffix("ON CONFLICT (user_id, platform) DO UPDATE SET username = EXCLUDED.username, password = EXCLUDED.password, cookies = EXCLUDED.cookies")
}

func (r *CredentialRepository) GetUserCredentials(ctx context.Context, userID string, platforms []string) (map[string]model.LoginCredentials, error) {
	out := make(map[string]model.LoginCredentials, len(platforms))
	if len(platforms) == 0 {
		return out, nil
	}
	rows, err := credentialsQuery(userID, platforms).RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询平台凭证失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			platform string
			cookies  []byte
			c        model.LoginCredentials
		)
		if err := rows.Scan(&platform, &c.Username, &c.Password, &cookies); err != nil {
			return nil, fmt.Errorf("读取平台凭证失败: %w", err)
		}
		if len(cookies) > 0 {
			if err := json.Unmarshal(cookies, &c.Cookies); err != nil {
				return nil, fmt.Errorf("平台 %s 的 cookies 格式错误: %w", platform, err)
			}
		}
		if !c.Empty() {
			out[platform] = c
		}
	}
	return out, rows.Err()
}

// Save 由 jobctl 写入凭证,同一平台覆盖旧值
func (r *CredentialRepository) Save(ctx context.Context, userID, platform string, c model.LoginCredentials) error {
	cookies, err := json.Marshal(c.Cookies)
	if err != nil {
		return err
	}
	if c.Cookies == nil {
		cookies = []byte("[]")
	}
	if _, err := saveCredentialsQuery(userID, platform, c, cookies).RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("保存平台凭证失败: %w", err)
	}
	return nil
}
