package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

var (
	zhRelative  = regexp.MustCompile(`(\d+)\s*(秒|分钟|分|小时|个小时|天|日|周|星期|个月|月|年)\s*前`)
	enRelative  = regexp.MustCompile(`(?i)(\d+|an?)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\s+ago`)
	clockSuffix = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	monthDay    = regexp.MustCompile(`^(\d{1,2})[-/月](\d{1,2})日?(?:\s+(\d{1,2}):(\d{2}))?$`)
)

var zhUnits = map[string]time.Duration{
	"秒":   time.Second,
	"分钟":  time.Minute,
	"分":   time.Minute,
	"小时":  time.Hour,
	"个小时": time.Hour,
	"天":   24 * time.Hour,
	"日":   24 * time.Hour,
	"周":   7 * 24 * time.Hour,
	"星期":  7 * 24 * time.Hour,
	"个月":  30 * 24 * time.Hour,
	"月":   30 * 24 * time.Hour,
	"年":   365 * 24 * time.Hour,
}

// 常见的绝对时间格式,dateparse 兜底
var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006年01月02日 15:04",
	"2006年01月02日",
	"2006年1月2日 15:04",
	"2006年1月2日",
	"2006.01.02",
}

// ParseRelativeOrAbsoluteDate 解析 "5分钟前"、"3 hours ago"、"昨天 12:30"、"2024-01-02" 等,
// 都无法识别时返回 now
func ParseRelativeOrAbsoluteDate(text string, now time.Time) time.Time {
	s := strings.TrimSpace(norm.NFKC.String(text))
	if s == "" {
		return now
	}
	// 去掉 "发布于"、"编辑于" 之类的前缀
	for _, prefix := range []string{"发布于", "编辑于", "创建于", "更新于", "发表于", "Posted", "posted"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	lower := strings.ToLower(s)
	if strings.Contains(s, "刚刚") || lower == "just now" || lower == "now" {
		return now
	}
	if m := zhRelative.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return now
		}
		return before(now, n, zhUnits[m[2]])
	}
	if m := enRelative.FindStringSubmatch(s); m != nil {
		n, unit, ok := englishOffset(m[1], m[2])
		if !ok {
			return now
		}
		return before(now, n, unit)
	}
	if t, ok := parseDayKeyword(s, now); ok {
		return t
	}
	if t, ok := parseMonthDay(s, now); ok {
		return t
	}
	loc := now.Location()
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	if t, err := dateparse.ParseIn(s, loc); err == nil {
		return t
	}
	return now
}

// before 返回 now 之前 n 个 unit 的时间,偏移量超出 time.Duration 范围时返回 now
func before(now time.Time, n int64, unit time.Duration) time.Time {
	if n < 0 || unit <= 0 || n > math.MaxInt64/int64(unit) {
		return now
	}
	return now.Add(-time.Duration(n) * unit)
}

// englishOffset amount 为 "a"/"an" 时按 1 计
func englishOffset(amount, unit string) (int64, time.Duration, bool) {
	n := int64(1)
	if a := strings.ToLower(amount); a != "a" && a != "an" {
		v, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		n = v
	}
	unit = strings.ToLower(unit)
	var d time.Duration
	switch {
	case strings.HasPrefix(unit, "sec"):
		d = time.Second
	case strings.HasPrefix(unit, "min"):
		d = time.Minute
	case strings.HasPrefix(unit, "h"):
		d = time.Hour
	case strings.HasPrefix(unit, "day"):
		d = 24 * time.Hour
	case strings.HasPrefix(unit, "week"):
		d = 7 * 24 * time.Hour
	case strings.HasPrefix(unit, "month"):
		d = 30 * 24 * time.Hour
	case strings.HasPrefix(unit, "year"):
		d = 365 * 24 * time.Hour
	}
	return n, d, true
}

func parseDayKeyword(s string, now time.Time) (time.Time, bool) {
	var offset int
	switch {
	case strings.HasPrefix(s, "今天"):
		offset = 0
	case strings.HasPrefix(s, "昨天"):
		offset = -1
	case strings.HasPrefix(s, "前天"):
		offset = -2
	default:
		return time.Time{}, false
	}
	day := now.AddDate(0, 0, offset)
	hour, minute := 0, 0
	if m := clockSuffix.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
}

// 没有年份的 "03-15 10:20"、"3月15日" 按 now 所在年份处理,落在未来则视为去年
func parseMonthDay(s string, now time.Time) (time.Time, bool) {
	m := monthDay.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	hour, minute := 0, 0
	if m[3] != "" {
		hour, _ = strconv.Atoi(m[3])
		minute, _ = strconv.Atoi(m[4])
	}
	t := time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, now.Location())
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}
