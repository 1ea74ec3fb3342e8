// Package juejin 掘金的发布和抓取插件
package juejin

import (
	"fmt"
	"regexp"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	ID      = "juejin"
	baseURL = "https://juejin.cn"
)

var (
	postPattern = regexp.MustCompile(`juejin\.cn/post/(\d+)`)
	userPattern = regexp.MustCompile(`juejin\.cn/user/(\d+)`)
)

var loginForm = platform.LoginForm{
	LoginURL:         baseURL + "/login",
	HomeURL:          baseURL + "/",
	SwitchToPassword: ".other-login-box .clickable",
	Username:         "input[name='loginPhoneOrEmail']",
	Password:         "input[name='loginPassword']",
	Agreement:        ".agreement-box input[type='checkbox']",
	Submit:           ".auth-form .btn",
	LoggedIn:         ".avatar-wrapper .avatar",
	SecondFactor:     []string{".verify-code-input", ".sms-verify"},
	Markers:          markers,
	LoginTimeout:     15 * time.Second,
}

var markers = session.Markers{
	Modals: []session.Modal{
		{Selector: ".login-guide-popup", Close: ".login-guide-popup .close-btn"},
		{Selector: ".global-component-box .bottom-login-guide", Close: ".bottom-login-guide .close-btn"},
	},
	Captchas: []string{".captcha_verify_container", "#captcha_container"},
}

func postURL(id string) string { return fmt.Sprintf("%s/post/%s", baseURL, id) }

func articleURL(t platform.Target) string {
	if t.URL != "" {
		return t.URL
	}
	if t.RemoteID != "" {
		return postURL(t.RemoteID)
	}
	return ""
}

// Entry 注册表条目
func Entry() platform.Entry {
	return platform.Entry{
		ID:        ID,
		Name:      "掘金",
		Aliases:   []string{"juejin.cn", "jj"},
		Publisher: &Publisher{},
		Scraper:   NewScraper(),
	}
}
