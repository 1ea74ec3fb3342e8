package publish

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Summarizer 为没有摘要的文章生成摘要
type Summarizer interface {
	Summarize(ctx context.Context, title, content string, maxRunes int) (string, error)
}

var (
	codeBlock   = regexp.MustCompile("(?s)```.*?```")
	markdownImg = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	markdownURL = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markup      = regexp.MustCompile("[#>*_`~|-]+")
	spaces      = regexp.MustCompile(`\s+`)
)

// PlainText 去掉 Markdown 标记并合并空白
func PlainText(content string) string {
	s := codeBlock.ReplaceAllString(content, " ")
	s = markdownImg.ReplaceAllString(s, " ")
	s = markdownURL.ReplaceAllString(s, "$1")
	s = markup.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// Truncate 按字符截断正文作为摘要,超长时以省略号结尾
func Truncate(content string, maxRunes int) string {
	s := PlainText(content)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxRunes-1])) + "…"
}
