package options

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// LauncherOption 对 rod launcher 的单项设置
type LauncherOption func(l *launcher.Launcher)

// CreateLauncher 创建浏览器启动器并依次应用选项
func CreateLauncher(opts ...LauncherOption) *launcher.Launcher {
	l := launcher.New()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func WithBin(bin string) LauncherOption {
	return func(l *launcher.Launcher) {
		if bin != "" {
			l.Bin(bin)
		}
	}
}

func WithUserDataDir(dir string) LauncherOption {
	return func(l *launcher.Launcher) {
		if dir != "" {
			l.UserDataDir(dir)
		}
	}
}

func WithHeadless(headless bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.Headless(headless)
	}
}

// WithDisableBlinkFeatures 一般传 AutomationControlled,去掉 navigator.webdriver 标记
func WithDisableBlinkFeatures(features string) LauncherOption {
	return func(l *launcher.Launcher) {
		if features != "" {
			l.Set("disable-blink-features", features)
		}
	}
}

func WithDisableDevShmUsage(disable bool) LauncherOption {
	return func(l *launcher.Launcher) {
		if disable {
			l.Set("disable-dev-shm-usage")
		}
	}
}

func WithNoSandbox(noSandbox bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.NoSandbox(noSandbox)
	}
}

func WithLeakless(leakless bool) LauncherOption {
	return func(l *launcher.Launcher) {
		l.Leakless(leakless)
	}
}

// WithLang 设置浏览器界面语言,与 Accept-Language 保持一致
func WithLang(lang string) LauncherOption {
	return func(l *launcher.Launcher) {
		if lang != "" {
			l.Set("lang", lang)
		}
	}
}

func WithWindowSize(width, height int) LauncherOption {
	return func(l *launcher.Launcher) {
		if width > 0 && height > 0 {
			l.Set("window-size", fmt.Sprintf("%d,%d", width, height))
		}
	}
}
