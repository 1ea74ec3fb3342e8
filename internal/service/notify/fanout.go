// Package notify 通知的生产端(Fanout)和 notify 队列的消费端(Processor)
package notify

import (
	"context"
	"fmt"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// notify 队列中的优先级,数值越大越先处理
const (
	PriorityRoutine = 1
	PriorityFailure = 5
	PriorityAlert   = 10
)

func PriorityFor(s model.Severity) int {
	switch s {
	case model.SeverityAlert:
		return PriorityAlert
	case model.SeverityFailure:
		return PriorityFailure
	}
	return PriorityRoutine
}

// Fanout 把业务结果转换成通知任务
type Fanout struct {
	queue  ports.Enqueuer
	logger *logrus.Entry
}

func NewFanout(queue ports.Enqueuer, logger *logrus.Entry) *Fanout {
	return &Fanout{queue: queue, logger: logger.WithField("component", "notify")}
}

// Send 按严重程度确定优先级后入队
func (f *Fanout) Send(ctx context.Context, data model.NotificationJobData) error {
	if data.Severity == "" {
		data.Severity = model.SeverityRoutine
	}
	_, err := f.queue.Enqueue(ctx, model.QueueNotify, data, jobqueue.EnqueueOptions{Priority: PriorityFor(data.Severity)})
	if err != nil {
		f.logger.WithError(err).WithField("type", data.Type).Warn("通知入队失败")
	}
	return err
}

var actionNames = map[model.PublishAction]string{
	model.ActionPublish: "发布",
	model.ActionUpdate:  "更新",
	model.ActionDelete:  "删除",
}

func actionName(a model.PublishAction) string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return actionNames[model.ActionPublish]
}

// PublishSucceeded 单个平台发布(或更新、删除)成功
func (f *Fanout) PublishSucceeded(ctx context.Context, action model.PublishAction, article *model.Article, res model.PlatformResult) error {
	name := actionName(action)
	return f.Send(ctx, model.NotificationJobData{
		Type:      model.NotifyPublishSuccess,
		Title:     name + "成功",
		Message:   fmt.Sprintf("《%s》已在 %s %s: %s", article.Title, res.Platform, name, res.URL),
		UserID:    article.UserID,
		ArticleID: article.ID,
		Platform:  res.Platform,
		Severity:  model.SeverityRoutine,
		Metadata:  map[string]any{"action": string(action), "url": res.URL, "remoteId": res.RemoteID},
	})
}

// PublishFailed 单个平台失败,优先级高于成功通知
func (f *Fanout) PublishFailed(ctx context.Context, action model.PublishAction, article *model.Article, res model.PlatformResult) error {
	name := actionName(action)
	return f.Send(ctx, model.NotificationJobData{
		Type:      model.NotifyPublishFailed,
		Title:     name + "失败",
		Message:   fmt.Sprintf("《%s》在 %s %s失败: %s", article.Title, res.Platform, name, res.Error),
		UserID:    article.UserID,
		ArticleID: article.ID,
		Platform:  res.Platform,
		Severity:  model.SeverityFailure,
		Metadata:  map[string]any{"action": string(action), "errorKind": res.ErrorKind},
	})
}

// ScrapeFailed 批量抓取中有失败条目时通知用户
func (f *Fanout) ScrapeFailed(ctx context.Context, userID, platform string, summary model.BatchSummary) error {
	return f.Send(ctx, model.NotificationJobData{
		Type:     model.NotifyScrapeFailed,
		Title:    "数据抓取部分失败",
		Message:  fmt.Sprintf("%s 共抓取 %s 篇文章,失败 %s 篇", platform, humanize.Comma(int64(summary.Total)), humanize.Comma(int64(summary.Failed))),
		UserID:   userID,
		Platform: platform,
		Severity: model.SeverityFailure,
		Metadata: map[string]any{"total": summary.Total, "failed": summary.Failed},
	})
}

// OperatorAlert 发给运营人员,不关联具体用户
func (f *Fanout) OperatorAlert(ctx context.Context, title, message, platform string, metadata map[string]any) error {
	return f.Send(ctx, model.NotificationJobData{
		Type:     model.NotifyOperatorAlert,
		Title:    title,
		Message:  message,
		Platform: platform,
		Severity: model.SeverityAlert,
		Metadata: metadata,
	})
}

// InterventionAlert 会话等待人工处理验证码或二次验证时调用
func (f *Fanout) InterventionAlert(ctx context.Context, platform, reason string) {
	_ = f.OperatorAlert(ctx, "需要人工处理", fmt.Sprintf("%s 的自动化会话正在等待人工处理: %s", platform, reason), platform,
		map[string]any{"reason": reason})
}
