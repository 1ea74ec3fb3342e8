package browser

import (
	"math/rand/v2"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// 常见桌面分辨率
var viewports = []Viewport{
	{1920, 1080},
	{1680, 1050},
	{1536, 864},
	{1440, 900},
	{1366, 768},
	{1280, 800},
}

// RandomIdentity 随机挑选 UA 和视口,userAgents 为空时使用内置列表
func RandomIdentity(userAgents []string) (string, Viewport) {
	pool := userAgents
	if len(pool) == 0 {
		pool = defaultUserAgents
	}
	return pool[rand.IntN(len(pool))], viewports[rand.IntN(len(viewports))]
}

// AcceptLanguage 由 locale 生成请求头,例如 zh-CN -> zh-CN,zh;q=0.9,en;q=0.8
func AcceptLanguage(locale string) string {
	if locale == "" {
		locale = "zh-CN"
	}
	base := locale
	for i, r := range locale {
		if r == '-' || r == '_' {
			base = locale[:i]
			break
		}
	}
	if base == locale {
		return locale + ",en;q=0.8"
	}
	return locale + "," + base + ";q=0.9,en;q=0.8"
}
