// Package zhihu 知乎专栏的发布和抓取插件
package zhihu

import (
	"regexp"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	ID         = "zhihu"
	columnURL  = "https://zhuanlan.zhihu.com"
	siteURL    = "https://www.zhihu.com"
	writeURL   = columnURL + "/write"
	signInURL  = siteURL + "/signin"
	maxTopics  = 3
	publishTTL = 20 * time.Second
)

var (
	postPattern   = regexp.MustCompile(`zhuanlan\.zhihu\.com/p/(\d+)`)
	peoplePattern = regexp.MustCompile(`zhihu\.com/people/([^/?#]+)`)
)

var markers = session.Markers{
	Modals: []session.Modal{
		{Selector: ".Modal-wrapper .signFlowModal", Close: ".Modal-closeButton"},
		{Selector: ".OpenInAppButton"},
	},
	Captchas:  []string{".Captcha-englishImage", ".Captcha-chineseImg", ".yidun_modal"},
	LoginWall: []string{".SignFlowHomepage", ".Unhuman"},
}

var loginForm = platform.LoginForm{
	LoginURL:         signInURL,
	HomeURL:          siteURL + "/",
	SwitchToPassword: ".SignFlow-tabs .SignFlow-tab:nth-child(2)",
	Username:         ".SignFlow-accountInput input[name='username']",
	Password:         ".SignFlow-password input[name='password']",
	Submit:           ".SignFlow-submitButton",
	LoggedIn:         ".AppHeader-profileEntry .Avatar",
	SecondFactor:     []string{".SignFlow-smsInput", ".Login-verifyCode"},
	Markers:          session.Markers{Captchas: markers.Captchas},
	LoginTimeout:     15 * time.Second,
}

func postURL(id string) string { return columnURL + "/p/" + id }

func articleURL(t platform.Target) string {
	if t.URL != "" {
		return t.URL
	}
	if t.RemoteID != "" {
		return postURL(t.RemoteID)
	}
	return ""
}

func Entry() platform.Entry {
	return platform.Entry{
		ID:        ID,
		Name:      "知乎",
		Aliases:   []string{"zhihu.com", "zhuanlan", "知乎专栏"},
		Publisher: &Publisher{},
		Scraper:   NewScraper(),
	}
}
