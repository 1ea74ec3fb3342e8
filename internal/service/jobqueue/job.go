package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/sirupsen/logrus"
)

// Processor 处理一个队列的任务。返回值会序列化后保存在任务上,失败时也会保留。
type Processor interface {
	Process(ctx context.Context, job *Job) (any, error)
}

// PayloadScrubber 可选。任务完成或最终失败时,服务用 ScrubPayload 的返回值替换保存的负载。
type PayloadScrubber interface {
	ScrubPayload(payload json.RawMessage) json.RawMessage
}

type ProcessorFunc func(ctx context.Context, job *Job) (any, error)

func (f ProcessorFunc) Process(ctx context.Context, job *Job) (any, error) { return f(ctx, job) }

// ProgressFunc 回报 0-100 的任务进度,Job.ReportProgress 即是一个实现
type ProgressFunc func(ctx context.Context, progress int)

// Job 交给 Processor 的任务句柄
type Job struct {
	*queue.Job
	svc    *Service
	logger *logrus.Entry
}

// NewJob 不属于任何服务的任务句柄,用于直接调用 Processor(测试、命令行)。
// ReportProgress 只更新内存中的进度。
func NewJob(qj *queue.Job, logger *logrus.Entry) *Job {
	return &Job{Job: qj, logger: logger.WithFields(logrus.Fields{"queue": qj.Queue, "job_id": qj.ID})}
}

// Decode 解析任务负载,失败视为 ValidationError,不会重试
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return errs.Wrap(errs.ValidationError, "", "decode payload", err)
	}
	return nil
}

// Logger 带有队列和任务 ID 的日志
func (j *Job) Logger() *logrus.Entry { return j.logger }

// ReportProgress 保存进度并发出 progress 事件,失败只记日志
func (j *Job) ReportProgress(ctx context.Context, progress int) {
	if j.svc == nil {
		j.Progress = progress
		return
	}
	if err := j.svc.broker.Progress(ctx, j.Job, progress); err != nil {
		j.logger.WithError(err).Debug("保存任务进度失败")
	}
	j.svc.emit(Event{Type: EventProgress, Queue: j.Queue, JobID: j.ID, Attempt: j.Attempts, Progress: progress})
}

type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventRetrying  EventType = "retrying"
	EventFailed    EventType = "failed"
	EventStalled   EventType = "stalled"
)

// Event 队列事件,由唯一的分发器消费
type Event struct {
	Type      EventType
	Queue     string
	JobID     string
	Attempt   int
	Progress  int
	Error     string
	ErrorKind errs.Kind
	// Exhausted failed 事件中表示任务已进入终态
	Exhausted bool
	RetryAt   time.Time
	// Duration 本次执行耗时,只在 completed / retrying / failed 上有值
	Duration time.Duration
	Payload  json.RawMessage
	Result   json.RawMessage
	Time     time.Time
}

// EnqueueOptions Priority 越大越先执行;MaxAttempts 为 0 时使用队列配置;
// JobID 非空时重复提交不会产生新任务
type EnqueueOptions struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
	JobID       string
}

// Backoff 第 attempt 次失败后的等待时间:base·2^(attempt−1),不超过 max
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
