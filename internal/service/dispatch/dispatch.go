// Package dispatch 队列事件的唯一消费者:日志、指标和运营告警
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/infra/metrics"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/sirupsen/logrus"
)

// Alerter 通知运营人员,由 notify.Fanout 实现
type Alerter interface {
	OperatorAlert(ctx context.Context, title, message, platform string, metadata map[string]any) error
}

type Dispatcher struct {
	metrics *metrics.Collector
	alerter Alerter
	logger  *logrus.Entry
}

// New metrics 和 alerter 都可以为空
func New(m *metrics.Collector, alerter Alerter, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{metrics: m, alerter: alerter, logger: logger.WithField("component", "dispatch")}
}

// Run 消费事件直到通道关闭。通道在 ShutdownGracefully 之后关闭,
// 所以停机时剩余事件仍会处理完。
func (d *Dispatcher) Run(ctx context.Context, events <-chan jobqueue.Event) {
	for ev := range events {
		d.Handle(ctx, ev)
	}
	d.logger.Debug("事件通道已关闭")
}

func (d *Dispatcher) Handle(ctx context.Context, ev jobqueue.Event) {
	logger := d.logger.WithFields(logrus.Fields{"queue": ev.Queue, "job_id": ev.JobID, "attempt": ev.Attempt})
	if d.metrics != nil {
		d.metrics.JobEvent(ev.Queue, string(ev.Type))
	}

	switch ev.Type {
	case jobqueue.EventProgress:
		logger.WithField("progress", ev.Progress).Debug("任务进度")
		return
	case jobqueue.EventStalled:
		logger.Warn("任务卡住,已重新入队")
		return
	case jobqueue.EventCompleted:
		logger.WithField("took", ev.Duration).Info("任务完成")
	case jobqueue.EventRetrying:
		logger.WithFields(logrus.Fields{"kind": ev.ErrorKind, "retry_at": ev.RetryAt}).Warn("任务将重试: " + ev.Error)
	case jobqueue.EventFailed:
		logger.WithField("kind", ev.ErrorKind).Error("任务失败: " + ev.Error)
	}

	if d.metrics != nil {
		if ev.Duration > 0 {
			d.metrics.JobDuration(ev.Queue, string(ev.Type), ev.Duration)
		}
		if ev.Type != jobqueue.EventCompleted {
			d.metrics.JobFailure(ev.Queue, string(ev.ErrorKind), ev.Exhausted)
		}
	}

	switch ev.Queue {
	case model.QueuePublish:
		d.publishEvent(ctx, ev, logger)
	case model.QueueScrape:
		d.scrapeEvent(ev, logger)
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, ev jobqueue.Event, logger *logrus.Entry) {
	if len(ev.Result) > 0 && d.metrics != nil {
		var res model.PublishJobResult
		if err := json.Unmarshal(ev.Result, &res); err != nil {
			logger.WithError(err).Debug("无法解析发布结果")
		} else {
			for _, r := range res.Results {
				d.metrics.PlatformResult(r.Platform, outcome(r))
			}
		}
	}
	if ev.Type != jobqueue.EventFailed || !ev.Exhausted || d.alerter == nil {
		return
	}

	var data model.PublishJobData
	if err := json.Unmarshal(ev.Payload, &data); err != nil {
		logger.WithError(err).Debug("无法解析发布任务负载,告警中缺少文章信息")
	}
	msg := fmt.Sprintf("文章 %s 的发布任务 %s 在第 %d 次尝试后失败: %s", data.ArticleID, ev.JobID, ev.Attempt, ev.Error)
	meta := map[string]any{
		"jobId":     ev.JobID,
		"articleId": data.ArticleID,
		"userId":    data.UserID,
		"platforms": data.Platforms,
		"errorKind": string(ev.ErrorKind),
	}
	if err := d.alerter.OperatorAlert(ctx, "发布任务失败", msg, "", meta); err != nil {
		if d.metrics != nil {
			d.metrics.EventDropped()
		}
		logger.WithError(err).Error("发送运营告警失败")
	}
}

func (d *Dispatcher) scrapeEvent(ev jobqueue.Event, logger *logrus.Entry) {
	if ev.Type != jobqueue.EventCompleted || d.metrics == nil {
		return
	}
	var data model.ScrapeJobData
	if err := json.Unmarshal(ev.Payload, &data); err != nil || data.Type != model.ScrapeBatchStats {
		return
	}
	var summary model.BatchSummary
	if err := json.Unmarshal(ev.Result, &summary); err != nil {
		logger.WithError(err).Debug("无法解析批量抓取汇总")
		return
	}
	d.metrics.BatchItems(data.Platform, summary.Success, summary.Failed)
}

func outcome(r model.PlatformResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "success"
	default:
		return "failed"
	}
}
