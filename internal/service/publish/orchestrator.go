// Package publish 处理 publish 队列:把一篇文章依次发布到多个平台
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/LouYuanbo1/crosspost/internal/service/notify"
	"github.com/sirupsen/logrus"
)

const defaultSummaryRunes = 120

type Deps struct {
	Articles    ports.ArticleStore
	Credentials ports.CredentialStore
	Registry    *platform.Registry
	Executor    *platform.Executor
	Fanout      *notify.Fanout
	// Summarizer 为空时直接截断正文
	Summarizer Summarizer
	Logger     *logrus.Entry
}

type Options struct {
	PolitenessDelay time.Duration
	SummaryMaxRunes int
}

type Orchestrator struct {
	Deps
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.SummaryMaxRunes <= 0 {
		opts.SummaryMaxRunes = defaultSummaryRunes
	}
	deps.Logger = deps.Logger.WithField("component", "publish")
	return &Orchestrator{Deps: deps, opts: opts, now: time.Now, sleep: sleep}
}

// Process 实现 jobqueue.Processor
func (o *Orchestrator) Process(ctx context.Context, job *jobqueue.Job) (any, error) {
	var data model.PublishJobData
	if err := job.Decode(&data); err != nil {
		return nil, err
	}
	res, err := o.Run(ctx, data, job.ReportProgress)
	if res == nil {
		return nil, err
	}
	return res, err
}

// ScrubPayload 实现 jobqueue.PayloadScrubber:任务结束后不再保存凭证
func (o *Orchestrator) ScrubPayload(payload json.RawMessage) json.RawMessage {
	return model.StripCredentials(payload)
}

// Run 按请求顺序逐个平台执行。返回的结果列表长度始终等于平台数量;
// 所有平台都失败时同时返回结果和错误,只有存在网络类失败时错误才可重试。
func (o *Orchestrator) Run(ctx context.Context, data model.PublishJobData, progress jobqueue.ProgressFunc) (*model.PublishJobResult, error) {
	if err := validate(&data); err != nil {
		return nil, err
	}
	logger := o.Logger.WithFields(logrus.Fields{"article_id": data.ArticleID, "action": data.Action})

	article, err := o.Articles.Find(ctx, data.ArticleID, data.UserID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, errs.New(errs.ValidationError, "", "文章 %s 不存在", data.ArticleID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, "", "加载文章", err)
	}
	if article.Platforms == nil {
		article.Platforms = map[string]model.PlatformPublishState{}
	}

	creds, err := o.credentials(ctx, data)
	if err != nil {
		return nil, err
	}
	if data.Action != model.ActionDelete {
		o.ensureSummary(ctx, article, logger)
	}
	if data.Action == model.ActionPublish {
		o.setStatus(ctx, article, model.ArticlePublishing, logger)
	}

	results := make([]model.PlatformResult, 0, len(data.Platforms))
	ranSession := false
	for i, requested := range data.Platforms {
		if err := ctx.Err(); err != nil {
			// 剩余平台记为失败,保证结果数量与请求一致
			for _, rest := range data.Platforms[i:] {
				results = append(results, o.failed(rest, errs.Wrap(errs.Internal, rest, "cancelled", err)))
			}
			break
		}
		res, ran := o.runPlatform(ctx, requested, data.Action, article, creds, ranSession, logger)
		ranSession = ranSession || ran
		results = append(results, res)
		if progress != nil {
			progress(ctx, (i+1)*100/len(data.Platforms))
		}
	}

	return o.finish(ctx, data, article, results, logger)
}

func validate(data *model.PublishJobData) error {
	if data.Action == "" {
		data.Action = model.ActionPublish
	}
	switch data.Action {
	case model.ActionPublish, model.ActionUpdate, model.ActionDelete:
	default:
		return errs.New(errs.ValidationError, "", "未知的发布动作 %q", data.Action)
	}
	if data.ArticleID == "" || data.UserID == "" {
		return errs.New(errs.ValidationError, "", "articleId 和 userId 不能为空")
	}
	if len(data.Platforms) == 0 {
		return errs.New(errs.ValidationError, "", "platforms 不能为空")
	}
	return nil
}

// credentials 合并任务中携带的凭证和凭证库中的凭证,key 为规范化的平台 ID。
// 只有任务中缺少的平台才会查询凭证库。
func (o *Orchestrator) credentials(ctx context.Context, data model.PublishJobData) (map[string]model.LoginCredentials, error) {
	creds := make(map[string]model.LoginCredentials, len(data.Platforms))
	for id, c := range data.Credentials {
		if c.Empty() {
			continue
		}
		creds[o.canonical(id)] = c
	}
	var missing []string
	for _, id := range data.Platforms {
		key := o.canonical(id)
		if _, ok := creds[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 || o.Credentials == nil {
		return creds, nil
	}
	stored, err := o.Credentials.GetUserCredentials(ctx, data.UserID, missing)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, "", "查询凭证", err)
	}
	for id, c := range stored {
		creds[o.canonical(id)] = c
	}
	return creds, nil
}

func (o *Orchestrator) canonical(id string) string {
	if e, ok := o.Registry.Resolve(id); ok {
		return e.ID
	}
	return platform.Canonical(id)
}

// runPlatform 返回结果以及是否真的启动了浏览器会话
func (o *Orchestrator) runPlatform(ctx context.Context, requested string, action model.PublishAction,
	article *model.Article, creds map[string]model.LoginCredentials, politeness bool, logger *logrus.Entry,
) (model.PlatformResult, bool) {
	pub, ok := o.Registry.Publisher(requested)
	if !ok {
		res := o.failed(requested, errs.New(errs.PlatformNotFound, requested, "不支持的平台"))
		o.notify(ctx, action, article, res, logger)
		return res, false
	}
	id := pub.ID()
	prev := article.Platforms[id]

	switch {
	case action == model.ActionPublish && prev.Done():
		logger.WithField("platform", id).Info("平台已发布,跳过")
		return o.skipped(id, prev), false
	case action == model.ActionDelete && prev.RemoteID == "":
		return o.skipped(id, prev), false
	case action == model.ActionUpdate && prev.RemoteID == "":
		res := o.failed(id, errs.New(errs.ValidationError, id, "文章尚未在该平台发布"))
		o.notify(ctx, action, article, res, logger)
		return res, false
	}

	cred, ok := creds[id]
	if !ok || cred.Empty() {
		res := o.failed(id, errs.New(errs.CredentialMissing, id, "没有该平台的登录凭证"))
		o.record(ctx, article, id, res, action, prev, logger)
		o.notify(ctx, action, article, res, logger)
		return res, false
	}

	if politeness && o.opts.PolitenessDelay > 0 {
		if err := o.sleep(ctx, o.opts.PolitenessDelay); err != nil {
			return o.failed(id, errs.Wrap(errs.Internal, id, "cancelled", err)), false
		}
	}

	if action == model.ActionPublish {
		o.save(ctx, article, id, model.PlatformPublishState{
			Status: model.PlatformPublishing, UpdatedAt: o.now(),
		}, logger)
	}

	var res model.PlatformResult
	switch action {
	case model.ActionUpdate:
		res = o.Executor.Update(ctx, pub, cred, prev.RemoteID, article)
	case model.ActionDelete:
		res = o.Executor.Delete(ctx, pub, cred, prev.RemoteID)
	default:
		res = o.Executor.Publish(ctx, pub, cred, article)
	}
	o.record(ctx, article, id, res, action, prev, logger)
	o.notify(ctx, action, article, res, logger)
	return res, true
}

func (o *Orchestrator) failed(id string, err error) model.PlatformResult {
	return model.PlatformResult{
		Platform:    id,
		Error:       err.Error(),
		ErrorKind:   string(errs.KindOf(err)),
		AttemptedAt: o.now(),
	}
}

func (o *Orchestrator) skipped(id string, prev model.PlatformPublishState) model.PlatformResult {
	return model.PlatformResult{
		Platform:    id,
		Success:     true,
		Skipped:     true,
		URL:         prev.URL,
		RemoteID:    prev.RemoteID,
		AttemptedAt: o.now(),
	}
}

// record 把单个平台的结果写回文章的平台子状态
func (o *Orchestrator) record(ctx context.Context, article *model.Article, id string, res model.PlatformResult,
	action model.PublishAction, prev model.PlatformPublishState, logger *logrus.Entry,
) {
	now := o.now()
	state := prev
	state.UpdatedAt = now
	switch {
	case res.Success && action == model.ActionDelete:
		state = model.PlatformPublishState{Status: model.PlatformPending, UpdatedAt: now}
	case res.Success:
		state.Status = model.PlatformPublished
		state.URL = res.URL
		state.RemoteID = res.RemoteID
		state.Error = ""
		if state.PublishedAt == nil || action == model.ActionPublish {
			state.PublishedAt = &now
		}
	case prev.Done():
		// 更新或删除失败,平台上的旧文章仍然有效
		state.Error = res.Error
	default:
		state.Status = model.PlatformFailed
		state.Error = res.Error
	}
	o.save(ctx, article, id, state, logger)
}

func (o *Orchestrator) save(ctx context.Context, article *model.Article, id string, state model.PlatformPublishState, logger *logrus.Entry) {
	article.Platforms[id] = state
	if err := o.Articles.UpdatePlatformState(ctx, article.ID, article.UserID, id, state); err != nil {
		logger.WithError(err).WithField("platform", id).Warn("保存平台状态失败")
	}
}

func (o *Orchestrator) notify(ctx context.Context, action model.PublishAction, article *model.Article, res model.PlatformResult, logger *logrus.Entry) {
	if o.Fanout == nil {
		return
	}
	var err error
	if res.Success {
		err = o.Fanout.PublishSucceeded(ctx, action, article, res)
	} else {
		err = o.Fanout.PublishFailed(ctx, action, article, res)
	}
	if err != nil {
		logger.WithError(err).WithField("platform", res.Platform).Debug("通知入队失败")
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, article *model.Article, status model.ArticleStatus, logger *logrus.Entry) {
	article.Status = status
	if err := o.Articles.UpdateStatus(ctx, article.ID, article.UserID, status); err != nil {
		logger.WithError(err).WithField("status", status).Warn("更新文章状态失败")
	}
}

func (o *Orchestrator) finish(ctx context.Context, data model.PublishJobData, article *model.Article,
	results []model.PlatformResult, logger *logrus.Entry,
) (*model.PublishJobResult, error) {
	out := &model.PublishJobResult{ArticleID: article.ID, Results: results}
	var firstErr model.PlatformResult
	transient := false
	for _, r := range results {
		if r.Success {
			out.Succeeded++
			continue
		}
		if out.Failed == 0 {
			firstErr = r
		}
		out.Failed++
		switch errs.Kind(r.ErrorKind) {
		case errs.NetworkError, errs.QueueUnavailable:
			transient = true
		}
	}

	switch {
	case out.Failed == 0:
		out.Status = model.PublishCompleted
	case out.Succeeded > 0:
		out.Status = model.PublishPartial
	default:
		out.Status = model.PublishFailed
	}

	switch data.Action {
	case model.ActionPublish:
		if out.Succeeded > 0 {
			o.setStatus(ctx, article, model.ArticlePublished, logger)
		} else {
			o.setStatus(ctx, article, model.ArticleFailed, logger)
		}
	case model.ActionDelete:
		if !anyPublished(article) {
			o.setStatus(ctx, article, model.ArticleDraft, logger)
		}
	}

	logger.WithFields(logrus.Fields{
		"status":    out.Status,
		"succeeded": out.Succeeded,
		"failed":    out.Failed,
	}).Info("发布任务结束")

	if out.Status != model.PublishFailed {
		return out, nil
	}
	err := fmt.Errorf("%d 个平台全部失败: %w", out.Failed,
		errs.New(errs.Kind(firstErr.ErrorKind), firstErr.Platform, "%s", firstErr.Error))
	if !transient {
		err = errs.Permanent(err)
	}
	return out, err
}

func anyPublished(article *model.Article) bool {
	for _, st := range article.Platforms {
		if st.Status == model.PlatformPublished {
			return true
		}
	}
	return false
}

// ensureSummary 在第一个平台开始前补齐摘要,生成失败时退回到截断正文
func (o *Orchestrator) ensureSummary(ctx context.Context, article *model.Article, logger *logrus.Entry) {
	if article.Summary != "" {
		return
	}
	limit := o.opts.SummaryMaxRunes
	var summary string
	if o.Summarizer != nil {
		s, err := o.Summarizer.Summarize(ctx, article.Title, PlainText(article.Content), limit)
		if err != nil {
			logger.WithError(err).Warn("生成摘要失败,改用截断正文")
		} else {
			summary = s
		}
	}
	if summary == "" {
		summary = Truncate(article.Content, limit)
	} else if utf8.RuneCountInString(summary) > limit {
		summary = Truncate(summary, limit)
	}
	article.Summary = summary
	if err := o.Articles.UpdateSummary(ctx, article.ID, article.UserID, summary); err != nil {
		logger.WithError(err).Warn("保存摘要失败")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
