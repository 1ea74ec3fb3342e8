// Package normalize 把页面上抓到的计数和时间文本转换成统一的数值和时间。
// 所有函数都是纯函数,不会 panic,可以在 worker 之间共享。
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var countPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(亿|万|千|百万|[kKwWmM])?`)

var magnitudes = map[string]float64{
	"k": 1e3, "K": 1e3, "千": 1e3,
	"w": 1e4, "W": 1e4, "万": 1e4,
	"m": 1e6, "M": 1e6, "百万": 1e6,
	"亿": 1e8,
}

// ParseCount 解析 "1.2万"、"3.5k"、"阅读 1,234" 之类的计数文本,无法解析时返回 0
func ParseCount(text string) int64 {
	s := cleanCountText(text)
	if s == "" {
		return 0
	}
	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if mul, ok := magnitudes[m[2]]; ok {
		n *= mul
	}
	// float64(math.MaxInt64) 等于 2^63,相等时转换也会溢出
	if n >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(n))
}

// 全角转半角,去掉千分位和空白
func cleanCountText(text string) string {
	s := norm.NFKC.String(strings.TrimSpace(text))
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '+':
			return -1
		}
		return r
	}, s)
}
