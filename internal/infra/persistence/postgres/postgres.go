// Package postgres 文章、凭证、用户和站内信的 Postgres 实现
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	db     *sql.DB
	logger *logrus.Entry

	Articles      *ArticleRepository
	Credentials   *CredentialRepository
	Users         *UserRepository
	Notifications *NotificationRepository
}

func Open(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*Store, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	maxOpen := cfg.Postgres.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return New(db, logger), nil
}

func New(db *sql.DB, logger *logrus.Entry) *Store {
	return &Store{
		db:            db,
		logger:        logger.WithField("component", "postgres"),
		Articles:      &ArticleRepository{db: db},
		Credentials:   &CredentialRepository{db: db},
		Users:         &UserRepository{db: db},
		Notifications: &NotificationRepository{db: db},
	}
}

// Migrate 建表语句都是幂等的,每次启动执行
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	s.logger.Debug("表结构已就绪")
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func notFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }
