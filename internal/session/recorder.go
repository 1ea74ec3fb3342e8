package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Recorder 保存诊断截图,仅在开发环境启用
type Recorder interface {
	Save(platform, label string, png []byte) error
}

type DirRecorder struct {
	Dir string
	now func() time.Time
}

func NewDirRecorder(dir string) *DirRecorder {
	return &DirRecorder{Dir: dir, now: time.Now}
}

func (r *DirRecorder) Save(platform, label string, png []byte) error {
	dir := filepath.Join(r.Dir, platform)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建截图目录失败: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", r.now().Format("20060102-150405.000"), sanitize(label))
	return os.WriteFile(filepath.Join(dir, name), png, 0o644)
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, label)
}
