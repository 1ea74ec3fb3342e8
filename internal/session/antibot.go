package session

import (
	"context"
	"errors"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/crawler/browser"
)

// ErrManualTimeout 人工处理等待超时
var ErrManualTimeout = errors.New("等待人工处理超时")

// Modal 可以自动关闭的弹窗。Close 为空时按 Esc。
type Modal struct {
	Selector string
	Close    string
}

// Markers 页面上的反自动化标记
type Markers struct {
	Modals    []Modal
	Captchas  []string
	LoginWall []string
}

// 各平台通用的标记,插件的标记会追加在后面
var commonMarkers = Markers{
	Modals: []Modal{
		{Selector: ".cookie-banner", Close: ".cookie-banner button"},
		{Selector: "#cookie-consent", Close: "#cookie-consent .accept"},
		{Selector: ".modal-mask .close-btn", Close: ".modal-mask .close-btn"},
	},
	Captchas: []string{
		"iframe[src*='captcha']",
		"#captcha",
		".geetest_panel",
		".geetest_holder",
		".yidun_popup",
		"#nc_1_wrapper",
		".verify-wrap",
	},
}

func (m Markers) merge(other Markers) Markers {
	return Markers{
		Modals:    append(append([]Modal{}, m.Modals...), other.Modals...),
		Captchas:  append(append([]string{}, m.Captchas...), other.Captchas...),
		LoginWall: append(append([]string{}, m.LoginWall...), other.LoginWall...),
	}
}

// DetectAntiAutomation 关闭普通弹窗;遇到验证码时暂停等待人工处理;
// 处理后页面仍被拦截则返回 AntiBotDetected
func (s *Session) DetectAntiAutomation(ctx context.Context, platformMarkers Markers) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	markers := commonMarkers.merge(platformMarkers)

	for _, modal := range markers.Modals {
		if !page.Has(ctx, modal.Selector) {
			continue
		}
		s.logger.WithField("modal", modal.Selector).Debug("关闭弹窗")
		if modal.Close == "" || !s.SafeClick(ctx, modal.Close, time.Second) {
			_ = page.Press(ctx, browser.KeyEscape)
		}
	}

	if captcha, found := s.HasAny(ctx, markers.Captchas...); found {
		s.logger.WithField("captcha", captcha).Warn("检测到验证码,等待人工处理")
		err := s.WaitForManual(ctx, "captcha", func(ctx context.Context) bool {
			_, still := s.HasAny(ctx, markers.Captchas...)
			return !still
		})
		if err != nil {
			return errs.Wrap(errs.AntiBotDetected, s.platform, "captcha", err)
		}
	}

	if wall, found := s.HasAny(ctx, markers.LoginWall...); found {
		s.Capture(ctx, "login-wall")
		return errs.New(errs.AntiBotDetected, s.platform, "页面被登录墙拦截: %s", wall)
	}
	if _, found := s.HasAny(ctx, markers.Captchas...); found {
		return errs.New(errs.AntiBotDetected, s.platform, "验证码未通过")
	}
	return nil
}

// WaitForManual 截图并通知运营人员,然后在限定时间内轮询 done,可被 ctx 取消
func (s *Session) WaitForManual(ctx context.Context, reason string, done func(ctx context.Context) bool) error {
	s.Capture(ctx, "manual-"+reason)
	if s.opts.OnIntervention != nil {
		s.opts.OnIntervention(ctx, s.platform, reason)
	}
	wait := s.opts.ManualWait
	if wait <= 0 {
		wait = time.Minute
	}
	poll := s.opts.ManualPoll
	if poll <= 0 {
		poll = time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if done(wctx) {
			s.logger.WithField("reason", reason).Info("人工处理完成,继续执行")
			return nil
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrManualTimeout
		case <-ticker.C:
		}
	}
}
