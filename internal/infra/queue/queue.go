// Package queue 任务的持久化存储。Broker 只负责状态流转,调度和重试策略在 jobqueue 服务中。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrNotFound 任务不存在,或者 job 持有的租约已经失效
var ErrNotFound = errors.New("任务不存在")

// Job 队列中的一条任务记录。Attempts 在每次取出时加一。
// Lease 是本次取出的租约标识,之后的写操作只有租约仍然有效时才生效。
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	State       State           `json:"state"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	ErrorKind   string          `json:"errorKind,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	RunAt       time.Time       `json:"runAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	LeaseUntil  *time.Time      `json:"leaseUntil,omitempty"`
	Lease       string          `json:"-"`
}

// Exhausted 已用完重试次数
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// Broker 任务存储。Fetch 没有可执行任务时返回 (nil, nil)。
type Broker interface {
	Add(ctx context.Context, job *Job) error
	Fetch(ctx context.Context, queue string, lease time.Duration) (*Job, error)
	// Heartbeat 延长租约,任务已不在执行中或已被重新取出时返回 ErrNotFound
	Heartbeat(ctx context.Context, job *Job, lease time.Duration) error
	Progress(ctx context.Context, job *Job, progress int) error
	Complete(ctx context.Context, job *Job, result json.RawMessage) error
	// Retry 把任务放回延迟集合,runAt 之后重新可取
	Retry(ctx context.Context, job *Job, runAt time.Time) error
	// Fail 任务进入终态 failed,保留最后一次的错误和结果
	Fail(ctx context.Context, job *Job) error
	// RequeueStalled 租约过期的任务放回等待队列,重试次数用完的直接失败
	RequeueStalled(ctx context.Context, queue string, now time.Time) ([]*Job, error)
	Get(ctx context.Context, queue, id string) (*Job, error)
	List(ctx context.Context, queue string, state State, limit int) ([]*Job, error)
	Ping(ctx context.Context) error
	Close() error
}

// waitScore 优先级高的先执行,同优先级按进入等待队列的时间先后
func waitScore(priority int, at time.Time) float64 {
	return float64(-priority)*1e13 + float64(at.UnixMilli())
}

func ms(t time.Time) float64 { return float64(t.UnixMilli()) }

func ptr(t time.Time) *time.Time { return &t }

func newLease() string { return uuid.NewString() }

// Open 按名称创建 Broker:redis 或 memory
func Open(ctx context.Context, kind, url, prefix string) (Broker, error) {
	switch kind {
	case "memory":
		return NewMemoryBroker(), nil
	case "", "redis":
		if url == "" {
			return nil, fmt.Errorf("未配置 Redis 地址")
		}
		return InitRedisBroker(ctx, url, prefix)
	}
	return nil, fmt.Errorf("不支持的队列存储: %s", kind)
}
