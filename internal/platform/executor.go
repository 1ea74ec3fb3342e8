package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/session"
	"github.com/sirupsen/logrus"
)

// Executor 插件边界:每次调用创建一个会话,保证会话只关闭一次,
// 并把插件内部的任何失败(包括 panic)转换成带分类的结果
type Executor struct {
	Sessions *session.Factory
	Logger   *logrus.Entry
	now      func() time.Time
}

func NewExecutor(sessions *session.Factory, logger *logrus.Entry) *Executor {
	return &Executor{Sessions: sessions, Logger: logger, now: time.Now}
}

// Publish 在一个会话中依次执行登录和发布
func (e *Executor) Publish(ctx context.Context, pub Publisher, cred model.LoginCredentials, article *model.Article) model.PlatformResult {
	var out Outcome
	err := e.Run(ctx, pub.ID(), session.PurposePublish,
		func(ctx context.Context, s *session.Session) error { return pub.Login(ctx, s, cred) },
		func(ctx context.Context, s *session.Session) error {
			var err error
			out, err = pub.Publish(ctx, s, article)
			return err
		})
	return e.result(pub.ID(), out, err)
}

// Update 更新平台上已发布的文章
func (e *Executor) Update(ctx context.Context, pub Publisher, cred model.LoginCredentials, remoteID string, article *model.Article) model.PlatformResult {
	var out Outcome
	err := e.Run(ctx, pub.ID(), session.PurposePublish,
		func(ctx context.Context, s *session.Session) error { return pub.Login(ctx, s, cred) },
		func(ctx context.Context, s *session.Session) error {
			var err error
			out, err = pub.Update(ctx, s, remoteID, article)
			return err
		})
	if out.RemoteID == "" {
		out.RemoteID = remoteID
	}
	return e.result(pub.ID(), out, err)
}

// Delete 删除平台上的文章
func (e *Executor) Delete(ctx context.Context, pub Publisher, cred model.LoginCredentials, remoteID string) model.PlatformResult {
	err := e.Run(ctx, pub.ID(), session.PurposePublish,
		func(ctx context.Context, s *session.Session) error { return pub.Login(ctx, s, cred) },
		func(ctx context.Context, s *session.Session) error { return pub.Delete(ctx, s, remoteID) })
	return e.result(pub.ID(), Outcome{RemoteID: remoteID}, err)
}

// Scrape 在一个不登录的抓取会话中执行 fn
func (e *Executor) Scrape(ctx context.Context, platform string, fn func(ctx context.Context, s *session.Session) error) error {
	return e.Run(ctx, platform, session.PurposeScrape, nil, fn)
}

// Run 会话生命周期:Initialize → Authenticate(login 非空时)→ Execute → Close。
// Close 在所有路径上恰好执行一次。
func (e *Executor) Run(ctx context.Context, platform string, purpose session.Purpose,
	login func(ctx context.Context, s *session.Session) error,
	exec func(ctx context.Context, s *session.Session) error,
) (err error) {
	s := e.Sessions.New(platform, purpose)
	logger := s.Logger()
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, platform, "插件 panic: %v", r)
		}
		if err != nil {
			s.Capture(ctx, "failed")
			logger.WithError(err).WithField("kind", errs.KindOf(err)).Warn("平台操作失败")
		}
		if cerr := s.Close(); cerr != nil {
			logger.WithError(cerr).Debug("关闭会话失败")
		}
	}()

	if err := s.Initialize(ctx); err != nil {
		return err
	}
	if login != nil {
		if err := s.Authenticate(ctx, func(ctx context.Context) error { return login(ctx, s) }); err != nil {
			return err
		}
	}
	return s.Execute(ctx, func(ctx context.Context) error {
		return errs.Wrap(errs.Internal, platform, string(purpose), exec(ctx, s))
	})
}

func (e *Executor) result(platform string, out Outcome, err error) model.PlatformResult {
	res := model.PlatformResult{
		Platform:    platform,
		AttemptedAt: e.now(),
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = string(errs.KindOf(err))
		return res
	}
	res.Success = true
	res.URL = out.URL
	res.RemoteID = out.RemoteID
	return res
}

// Guard 执行单个步骤并把 panic 转成错误,用于批量抓取中隔离单个条目
func Guard(platform string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, platform, "panic: %s", fmt.Sprint(r))
		}
	}()
	return fn()
}
