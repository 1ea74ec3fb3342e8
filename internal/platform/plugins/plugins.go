// Package plugins 注册所有内置平台
package plugins

import (
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/platform/csdn"
	"github.com/LouYuanbo1/crosspost/internal/platform/jianshu"
	"github.com/LouYuanbo1/crosspost/internal/platform/juejin"
	"github.com/LouYuanbo1/crosspost/internal/platform/zhihu"
)

func NewRegistry() *platform.Registry {
	return platform.NewRegistry(
		juejin.Entry(),
		csdn.Entry(),
		zhihu.Entry(),
		jianshu.Entry(),
	)
}
