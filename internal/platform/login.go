package platform

import (
	"context"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

// LoginForm 账号密码登录页的选择器
type LoginForm struct {
	LoginURL string
	// HomeURL 用 cookie 登录时打开的页面
	HomeURL string
	// SwitchToPassword 默认是扫码或短信登录的平台,先切到密码登录
	SwitchToPassword string
	Username         string
	Password         string
	Agreement        string
	Submit           string
	LoggedIn         string
	SecondFactor     []string
	Markers          session.Markers
	LoginTimeout     time.Duration
}

// FormLogin 先尝试 cookie 登录,不行再填表单。验证码和二次验证交给人工在限定时间内处理。
func FormLogin(ctx context.Context, s *session.Session, form LoginForm, cred model.LoginCredentials) error {
	platform := s.Platform()
	if cred.Empty() {
		return errs.New(errs.CredentialMissing, platform, "没有可用的登录凭证")
	}
	if len(cred.Cookies) > 0 && form.HomeURL != "" {
		if err := s.SetCookies(ctx, cred.Cookies); err != nil {
			s.Logger().WithError(err).Warn("写入 cookie 失败")
		} else if err := s.Navigate(ctx, form.HomeURL); err == nil && s.WaitFor(ctx, form.LoggedIn, 5*time.Second) == nil {
			s.Logger().Info("cookie 登录成功")
			return nil
		}
		s.Logger().Info("cookie 已失效,改用账号密码登录")
	}
	if cred.Username == "" || cred.Password == "" {
		return errs.New(errs.CredentialMissing, platform, "缺少账号或密码")
	}

	if err := s.Navigate(ctx, form.LoginURL); err != nil {
		return err
	}
	if err := s.DetectAntiAutomation(ctx, form.Markers); err != nil {
		return err
	}
	if form.SwitchToPassword != "" {
		s.SafeClick(ctx, form.SwitchToPassword, 0)
	}
	if !s.SafeType(ctx, form.Username, cred.Username, 0) {
		return errs.New(errs.InteractionTimeout, platform, "找不到账号输入框 %s", form.Username)
	}
	if !s.SafeType(ctx, form.Password, cred.Password, 0) {
		return errs.New(errs.InteractionTimeout, platform, "找不到密码输入框 %s", form.Password)
	}
	if form.Agreement != "" {
		s.SafeClick(ctx, form.Agreement, time.Second)
	}
	if !s.SafeClick(ctx, form.Submit, 0) {
		return errs.New(errs.InteractionTimeout, platform, "找不到登录按钮 %s", form.Submit)
	}

	if err := s.DetectAntiAutomation(ctx, form.Markers); err != nil {
		return err
	}
	if prompt, found := s.HasAny(ctx, form.SecondFactor...); found {
		s.Logger().WithField("prompt", prompt).Warn("需要二次验证,等待人工处理")
		err := s.WaitForManual(ctx, "2fa", func(ctx context.Context) bool { return s.Has(ctx, form.LoggedIn) })
		if err != nil {
			return errs.Wrap(errs.AuthenticationFailed, platform, "2fa", err)
		}
	}
	if err := s.WaitFor(ctx, form.LoggedIn, form.LoginTimeout); err != nil {
		return errs.New(errs.AuthenticationFailed, platform, "登录后未检测到已登录标记")
	}
	return nil
}
