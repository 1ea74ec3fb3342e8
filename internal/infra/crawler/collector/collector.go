// Package collector 用 colly 抓取不需要登录、服务端渲染的公开页面
package collector

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

type collyFetcher struct {
	colly  *colly.Collector
	logger *logrus.Entry
}

func InitCollyFetcher(cfg *config.Config, logger *logrus.Entry) (Fetcher, error) {
	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.Colly.UserAgent),
		colly.AllowURLRevisit(),
	}
	if cfg.Colly.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	c := colly.NewCollector(opts...)
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       time.Duration(cfg.Colly.Delay) * time.Second,
		RandomDelay: time.Duration(cfg.Colly.RandomDelay) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("设置抓取频率失败: %w", err)
	}
	if cfg.Colly.Timeout > 0 {
		c.SetRequestTimeout(time.Duration(cfg.Colly.Timeout) * time.Second)
	}
	logger.WithFields(logrus.Fields{
		"delay":        cfg.Colly.Delay,
		"random_delay": cfg.Colly.RandomDelay,
		"timeout":      cfg.Colly.Timeout,
	}).Info("初始化 colly")
	return &collyFetcher{colly: c, logger: logger}, nil
}

// Fetch 每次请求克隆一个 collector,回调互不干扰,频率限制仍然共享
func (f *collyFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := f.colly.Clone()

	var (
		doc      *goquery.Document
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	})
	c.OnResponse(func(r *colly.Response) {
		doc, fetchErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("状态码 %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, errs.Wrap(errs.NetworkError, "", "fetch "+url, fetchErr)
	}
	if doc == nil {
		return nil, errs.New(errs.NetworkError, "", "%s 没有返回内容", url)
	}
	f.logger.WithField("url", url).Debug("静态页面抓取完成")
	return doc, nil
}
