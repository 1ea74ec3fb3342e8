package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/infra/persistence/es"
	"github.com/LouYuanbo1/crosspost/internal/infra/persistence/postgres"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/LouYuanbo1/crosspost/internal/platform/plugins"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/dustin/go-humanize"
)

var registry = plugins.NewRegistry()

// resolve 把别名换成规范标识,未知平台直接报错
func resolve(id string) (string, error) {
	e, ok := registry.Resolve(id)
	if !ok {
		return "", fmt.Errorf("未知平台: %s", id)
	}
	return e.ID, nil
}

type enqueueFlags struct {
	Priority int           `long:"priority" description:"优先级,越大越先执行"`
	Delay    time.Duration `long:"delay" description:"延迟执行,例如 10m"`
	JobID    string        `long:"job-id" description:"指定任务 ID,重复提交不会产生新任务"`
}

func (f enqueueFlags) options() jobqueue.EnqueueOptions {
	return jobqueue.EnqueueOptions{Priority: f.Priority, Delay: f.Delay, JobID: f.JobID}
}

type publishCommand struct {
	app *app

	Article   string   `long:"article" required:"true" description:"文章 ID"`
	User      string   `long:"user" required:"true" description:"用户 ID"`
	Platforms []string `short:"p" long:"platform" required:"true" description:"目标平台,可重复"`
	Action    string   `long:"action" default:"publish" choice:"publish" choice:"update" choice:"delete"`
	enqueueFlags
}

func (c *publishCommand) Execute([]string) error {
	data := model.PublishJobData{Action: model.PublishAction(c.Action), ArticleID: c.Article, UserID: c.User}
	for _, p := range c.Platforms {
		id, err := resolve(p)
		if err != nil {
			return err
		}
		data.Platforms = append(data.Platforms, id)
	}
	return c.app.enqueue(model.QueuePublish, data, c.options())
}

type scrapeCommand struct {
	app *app

	Type           string   `long:"type" required:"true" choice:"article-stats" choice:"comments" choice:"user-profile" choice:"batch-stats"`
	Platform       string   `long:"platform" required:"true"`
	User           string   `long:"user" description:"接收失败通知的用户"`
	Article        string   `long:"article" description:"文章 ID"`
	URL            string   `long:"url" description:"文章地址,优先于 --article"`
	Articles       []string `long:"articles" description:"batch-stats 的文章 ID,可重复"`
	ProfileURL     string   `long:"profile-url" description:"user-profile 的主页地址"`
	MaxComments    int      `long:"max-comments"`
	IncludeReplies bool     `long:"include-replies"`
	ScrollRounds   int      `long:"scroll-rounds" description:"评论区滚动次数,默认使用平台设置"`
	enqueueFlags
}

func (c *scrapeCommand) Execute([]string) error {
	id, err := resolve(c.Platform)
	if err != nil {
		return err
	}
	data := model.ScrapeJobData{
		Type:       model.ScrapeType(c.Type),
		Platform:   id,
		UserID:     c.User,
		ArticleID:  c.Article,
		ArticleURL: c.URL,
		ArticleIDs: c.Articles,
	}
	if c.ProfileURL != "" || c.MaxComments > 0 || c.IncludeReplies || c.ScrollRounds > 0 {
		data.Config = &model.ScrapeConfig{ProfileURL: c.ProfileURL, MaxComments: c.MaxComments,
			IncludeReplies: c.IncludeReplies, ScrollRounds: c.ScrollRounds}
	}
	return c.app.enqueue(model.QueueScrape, data, c.options())
}

func (a *app) enqueue(name string, payload any, opts jobqueue.EnqueueOptions) error {
	jobs, err := a.queue()
	if err != nil {
		return err
	}
	id, err := jobs.Enqueue(a.ctx, name, payload, opts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, id)
	return err
}

type showCommand struct {
	app *app

	Queue string `long:"queue" default:"publish" choice:"publish" choice:"scrape" choice:"notify"`
	Args  struct {
		ID string `positional-arg-name:"job-id" required:"true"`
	} `positional-args:"yes"`
}

func (c *showCommand) Execute([]string) error {
	jobs, err := c.app.queue()
	if err != nil {
		return err
	}
	job, err := jobs.Job(c.app.ctx, c.Queue, c.Args.ID)
	if errors.Is(err, queue.ErrNotFound) {
		return fmt.Errorf("队列 %s 中没有任务 %s", c.Queue, c.Args.ID)
	}
	if err != nil {
		return err
	}
	job.Payload = model.StripCredentials(job.Payload)
	return c.app.print(job)
}

type failedCommand struct {
	app *app

	Queue string `long:"queue" default:"publish" choice:"publish" choice:"scrape" choice:"notify"`
	Limit int    `long:"limit" default:"20"`
}

// failedJob 列表里不展开结果,负载中的凭证会被去掉
type failedJob struct {
	ID         string          `json:"id"`
	Attempts   int             `json:"attempts"`
	ErrorKind  string          `json:"errorKind,omitempty"`
	LastError  string          `json:"lastError"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

func (c *failedCommand) Execute([]string) error {
	jobs, err := c.app.queue()
	if err != nil {
		return err
	}
	list, err := jobs.Failed(c.app.ctx, c.Queue, c.Limit)
	if err != nil {
		return err
	}
	out := make([]failedJob, 0, len(list))
	for _, j := range list {
		out = append(out, failedJob{ID: j.ID, Attempts: j.Attempts, ErrorKind: j.ErrorKind, LastError: j.LastError, FinishedAt: j.FinishedAt, Payload: model.StripCredentials(j.Payload)})
	}
	return c.app.print(out)
}

type statsCommand struct {
	app *app

	Platform string `long:"platform" required:"true"`
	Article  string `long:"article" required:"true"`
	Limit    int    `long:"limit" default:"10"`
}

func (c *statsCommand) Execute([]string) error {
	id, err := resolve(c.Platform)
	if err != nil {
		return err
	}
	if err := c.app.setup(); err != nil {
		return err
	}
	results, err := es.InitResultsStore(c.app.ctx, c.app.cfg, c.app.logger)
	if err != nil {
		return err
	}
	history, err := results.StatsHistory(c.app.ctx, id, c.Article, c.Limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		_, err := fmt.Fprintln(c.app.out, "没有统计记录")
		return err
	}
	return writeStats(c.app.out, history)
}

func writeStats(w io.Writer, history []model.ArticleStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "抓取时间\t阅读\t点赞\t评论\t收藏")
	for _, s := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(s.ScrapedAt), humanize.Comma(s.Views), humanize.Comma(s.Likes),
			humanize.Comma(s.Comments), humanize.Comma(s.Collects))
	}
	return tw.Flush()
}

type credentialCommand struct {
	app *app

	User        string `long:"user" required:"true"`
	Platform    string `long:"platform" required:"true"`
	Username    string `long:"username"`
	Password    string `long:"password" env:"CROSSPOST_PLATFORM_PASSWORD" description:"也可以通过环境变量传入"`
	CookiesFile string `long:"cookies-file" description:"JSON 格式的 cookie 列表"`
}

func (c *credentialCommand) Execute([]string) error {
	id, err := resolve(c.Platform)
	if err != nil {
		return err
	}
	if _, ok := registry.Publisher(id); !ok {
		return fmt.Errorf("平台 %s 不支持发布,无需凭证", id)
	}
	cred := model.LoginCredentials{Username: c.Username, Password: c.Password}
	if c.CookiesFile != "" {
		data, err := os.ReadFile(c.CookiesFile)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &cred.Cookies); err != nil {
			return fmt.Errorf("cookie 文件格式错误: %w", err)
		}
	}
	if cred.Empty() {
		return fmt.Errorf("需要 --username/--password 或 --cookies-file")
	}
	if err := c.app.setup(); err != nil {
		return err
	}
	store, err := postgres.Open(c.app.ctx, c.app.cfg, c.app.logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Credentials.Save(c.app.ctx, c.User, id, cred); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.app.out, "已保存 %s 在 %s 的凭证 %s\n", c.User, id, cred)
	return err
}
