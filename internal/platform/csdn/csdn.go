// Package csdn CSDN 的发布和抓取插件。文章页是服务端渲染的,统计数据优先用静态抓取。
package csdn

import (
	"regexp"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	ID       = "csdn"
	blogURL  = "https://blog.csdn.net"
	editURL  = "https://editor.csdn.net/md/"
	loginURL = "https://passport.csdn.net/login"
)

var (
	articlePattern = regexp.MustCompile(`blog\.csdn\.net/(?:[^/]+/)?article/details/(\d+)`)
	userPattern    = regexp.MustCompile(`blog\.csdn\.net/([^/?#]+)`)
)

var markers = session.Markers{
	Modals: []session.Modal{
		{Selector: ".passport-login-tip-container", Close: ".passport-login-tip-container .close"},
		{Selector: ".csdn-side-toolbar .toolbar-advert", Close: ".toolbar-advert .close"},
	},
	Captchas:  []string{"#nc_1_wrapper", ".captcha-box"},
	LoginWall: []string{".passport-login-container .login-box"},
}

var loginForm = platform.LoginForm{
	LoginURL:         loginURL,
	HomeURL:          "https://mp.csdn.net/",
	SwitchToPassword: ".login-box-tabs-items span:nth-child(4)",
	Username:         ".login-form-item input[autocomplete='username']",
	Password:         ".login-form-item input[type='password']",
	Agreement:        ".login-form .icon-nocheck",
	Submit:           ".login-form .base-button",
	LoggedIn:         ".toolbar-btn-loginfun .hasAvatar",
	SecondFactor:     []string{".login-box-verify", ".sms-code-input"},
	Markers:          session.Markers{Captchas: markers.Captchas},
	LoginTimeout:     15 * time.Second,
}

func articleURL(t platform.Target) string {
	if t.URL != "" {
		return t.URL
	}
	if t.RemoteID != "" {
		return blogURL + "/article/details/" + t.RemoteID
	}
	return ""
}

func Entry() platform.Entry {
	return platform.Entry{
		ID:        ID,
		Name:      "CSDN",
		Aliases:   []string{"csdn.net", "csdn博客"},
		Publisher: &Publisher{},
		Scraper:   NewScraper(),
	}
}
