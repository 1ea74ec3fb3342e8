// Package jobqueue 队列服务:按队列配置的并发数运行 worker,负责重试退避、租约续期、卡住任务检测和事件分发。
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/infra/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const eventBuffer = 1024

type Service struct {
	broker     queue.Broker
	queues     map[string]config.QueueConfig
	processors map[string]Processor
	logger     *logrus.Entry
	now        func() time.Time

	events    chan Event
	eventsMu  sync.RWMutex
	closed    bool
	dropped   atomic.Int64
	stop      chan struct{}
	cancelRun context.CancelFunc
	group     *errgroup.Group
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(broker queue.Broker, queues map[string]config.QueueConfig, logger *logrus.Entry) *Service {
	return &Service{
		broker:     broker,
		queues:     queues,
		processors: map[string]Processor{},
		logger:     logger.WithField("component", "jobqueue"),
		now:        time.Now,
		events:     make(chan Event, eventBuffer),
		stop:       make(chan struct{}),
	}
}

// Register 必须在 Start 之前调用
func (s *Service) Register(name string, p Processor) error {
	if _, ok := s.queues[name]; !ok {
		return errs.New(errs.ValidationError, "", "未知队列 %s", name)
	}
	s.processors[name] = p
	return nil
}

// Events 所有队列共用的事件通道,ShutdownGracefully 结束后关闭
func (s *Service) Events() <-chan Event { return s.events }

// Enqueue 提交任务,返回任务 ID
func (s *Service) Enqueue(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	cfg, ok := s.queues[name]
	if !ok {
		return "", errs.New(errs.ValidationError, "", "未知队列 %s", name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(errs.ValidationError, "", "encode payload", err)
	}
	job := &queue.Job{
		ID:          opts.JobID,
		Queue:       name,
		Payload:     data,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = cfg.MaxAttempts
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 1
	}
	now := s.now()
	job.CreatedAt = now
	job.RunAt = now.Add(opts.Delay)

	err = s.broker.Add(ctx, job)
	if errors.Is(err, queue.ErrDuplicate) {
		s.logger.WithFields(logrus.Fields{"queue": name, "job_id": job.ID}).Debug("任务已存在,忽略重复提交")
		return job.ID, nil
	}
	if err != nil {
		return "", errs.Wrap(errs.QueueUnavailable, "", "enqueue "+name, err)
	}
	s.logger.WithFields(logrus.Fields{"queue": name, "job_id": job.ID, "priority": opts.Priority, "delay": opts.Delay}).Debug("任务已入队")
	return job.ID, nil
}

// Job 查询任务,不存在时返回 queue.ErrNotFound
func (s *Service) Job(ctx context.Context, name, id string) (*queue.Job, error) {
	job, err := s.broker.Get(ctx, name, id)
	if err != nil && !errors.Is(err, queue.ErrNotFound) {
		return nil, errs.Wrap(errs.QueueUnavailable, "", "get job", err)
	}
	return job, err
}

// Failed 重试用尽的任务,最近失败的在前
func (s *Service) Failed(ctx context.Context, name string, limit int) ([]*queue.Job, error) {
	return s.List(ctx, name, queue.StateFailed, limit)
}

func (s *Service) List(ctx context.Context, name string, state queue.State, limit int) ([]*queue.Job, error) {
	jobs, err := s.broker.List(ctx, name, state, limit)
	if err != nil {
		return nil, errs.Wrap(errs.QueueUnavailable, "", "list jobs", err)
	}
	return jobs, nil
}

// Start 为每个注册了 Processor 的队列启动 worker 和卡住任务检测,立即返回
func (s *Service) Start(ctx context.Context) error {
	if err := s.broker.Ping(ctx); err != nil {
		return errs.Wrap(errs.QueueUnavailable, "", "ping", err)
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		runCtx, cancel := context.WithCancel(ctx)
		s.cancelRun = cancel
		s.group, runCtx = errgroup.WithContext(runCtx)
		for name, p := range s.processors {
			cfg := s.queues[name]
			for i := range max(cfg.Concurrency, 1) {
				logger := s.logger.WithFields(logrus.Fields{"queue": name, "worker": i})
				s.group.Go(func() error {
					s.work(runCtx, name, cfg, p, logger)
					return nil
				})
			}
			s.group.Go(func() error {
				s.checkStalled(runCtx, name, cfg)
				return nil
			})
			s.logger.WithFields(logrus.Fields{"queue": name, "concurrency": cfg.Concurrency}).Info("队列已启动")
		}
	})
	if !started {
		return fmt.Errorf("队列服务已经启动")
	}
	return nil
}

// ShutdownGracefully 停止取新任务并等待进行中的任务结束。
// ctx 到期后取消进行中的任务,等它们退出后关闭事件通道。
func (s *Service) ShutdownGracefully(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.group != nil {
			done := make(chan struct{})
			go func() {
				_ = s.group.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				s.logger.Warn("等待进行中的任务超时,强制取消")
				s.cancelRun()
				<-done
				err = ctx.Err()
			}
			s.cancelRun()
		}
		s.eventsMu.Lock()
		s.closed = true
		close(s.events)
		s.eventsMu.Unlock()
		s.logger.Info("队列服务已停止")
	})
	return err
}

func (s *Service) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// pause 等待 d,服务停止或 ctx 取消时提前返回 false
func (s *Service) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Service) work(ctx context.Context, name string, cfg config.QueueConfig, p Processor, logger *logrus.Entry) {
	poll := cfg.PollInterval.Std()
	for !s.stopping() && ctx.Err() == nil {
		job, err := s.broker.Fetch(ctx, name, cfg.LockDuration.Std())
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("取任务失败")
			}
			if !s.pause(ctx, poll) {
				return
			}
			continue
		}
		if job == nil {
			if !s.pause(ctx, poll) {
				return
			}
			continue
		}
		s.handle(ctx, cfg, p, job, logger.WithField("job_id", job.ID))
	}
}

func (s *Service) handle(ctx context.Context, cfg config.QueueConfig, p Processor, qj *queue.Job, logger *logrus.Entry) {
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopHeartbeat := s.heartbeat(jctx, cancel, qj, cfg.LockDuration.Std(), logger)

	job := &Job{Job: qj, svc: s, logger: logger}
	logger.WithField("attempt", qj.Attempts).Info("开始处理任务")
	started := s.now()
	result, err := s.process(jctx, p, job)
	stopHeartbeat()
	took := s.now().Sub(started)

	// 即使服务被强制取消,也要把任务结果写回
	fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer fcancel()

	resultJSON, merr := marshalResult(result)
	if merr != nil {
		logger.WithError(merr).Warn("序列化任务结果失败")
	}
	if err == nil {
		if berr := s.broker.Complete(fctx, s.scrub(p, qj), resultJSON); berr != nil {
			if s.stale(berr, logger) {
				return
			}
			logger.WithError(berr).Error("保存任务完成状态失败")
		}
		logger.Info("任务完成")
		s.emit(Event{Type: EventCompleted, Queue: qj.Queue, JobID: qj.ID, Attempt: qj.Attempts, Duration: took, Payload: qj.Payload, Result: resultJSON})
		return
	}

	kind := errs.KindOf(err)
	qj.LastError = err.Error()
	qj.ErrorKind = string(kind)
	if resultJSON != nil {
		qj.Result = resultJSON
	}
	ev := Event{Queue: qj.Queue, JobID: qj.ID, Attempt: qj.Attempts, Error: qj.LastError, ErrorKind: kind, Duration: took, Payload: qj.Payload, Result: qj.Result}
	if !errs.Retryable(err) || qj.Exhausted() {
		if berr := s.broker.Fail(fctx, s.scrub(p, qj)); berr != nil {
			if s.stale(berr, logger) {
				return
			}
			logger.WithError(berr).Error("保存任务失败状态失败")
		}
		logger.WithError(err).WithField("kind", kind).Warn("任务失败,不再重试")
		ev.Type, ev.Exhausted = EventFailed, true
		s.emit(ev)
		return
	}
	retryAt := s.now().Add(Backoff(cfg.BackoffBase.Std(), cfg.BackoffMax.Std(), qj.Attempts))
	if berr := s.broker.Retry(fctx, qj, retryAt); berr != nil {
		if s.stale(berr, logger) {
			return
		}
		logger.WithError(berr).Error("任务重新入队失败")
	}
	logger.WithError(err).WithFields(logrus.Fields{"kind": kind, "retry_at": retryAt}).Warn("任务失败,稍后重试")
	ev.Type, ev.RetryAt = EventRetrying, retryAt
	s.emit(ev)
}

// stale 租约已经失效:任务被判定为卡住后交给了别的 worker,本次结果作废
func (s *Service) stale(err error, logger *logrus.Entry) bool {
	if !errors.Is(err, queue.ErrNotFound) {
		return false
	}
	logger.Warn("任务租约已失效,丢弃本次处理结果")
	return true
}

// scrub 任务进入终态前去掉负载中不应长期保存的字段
func (s *Service) scrub(p Processor, qj *queue.Job) *queue.Job {
	if sc, ok := p.(PayloadScrubber); ok {
		qj.Payload = sc.ScrubPayload(qj.Payload)
	}
	return qj
}

// process 调用 Processor,panic 转为 Internal 错误
func (s *Service) process(ctx context.Context, p Processor, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, "", "processor panic: %v", r)
		}
	}()
	return p.Process(ctx, job)
}

// heartbeat 定期续租。任务已被判定为卡住并重新分配时取消当前处理。
func (s *Service) heartbeat(ctx context.Context, cancel context.CancelFunc, job *queue.Job, lease time.Duration, logger *logrus.Entry) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(lease/3, 10*time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.broker.Heartbeat(ctx, job, lease)
				if errors.Is(err, queue.ErrNotFound) {
					logger.Warn("任务租约已失效,停止处理")
					cancel()
					return
				}
				if err != nil {
					logger.WithError(err).Debug("续租失败")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Service) checkStalled(ctx context.Context, name string, cfg config.QueueConfig) {
	interval := cfg.StalledInterval.Std()
	logger := s.logger.WithField("queue", name)
	for s.pause(ctx, interval) {
		jobs, err := s.broker.RequeueStalled(ctx, name, s.now())
		if err != nil {
			logger.WithError(err).Warn("检查卡住的任务失败")
			continue
		}
		for _, job := range jobs {
			logger.WithFields(logrus.Fields{"job_id": job.ID, "state": job.State}).Warn("任务租约过期")
			s.emit(Event{Type: EventStalled, Queue: name, JobID: job.ID, Attempt: job.Attempts, Error: job.LastError, Payload: job.Payload})
			if job.State == queue.StateFailed {
				s.emit(Event{Type: EventFailed, Queue: name, JobID: job.ID, Attempt: job.Attempts, Error: job.LastError,
					ErrorKind: errs.Kind(job.ErrorKind), Exhausted: true, Payload: job.Payload, Result: job.Result})
			}
		}
	}
}

// emit 不阻塞 worker:通道满时丢弃事件
func (s *Service) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
		s.logger.WithFields(logrus.Fields{"type": ev.Type, "job_id": ev.JobID}).Warn("事件通道已满,丢弃事件")
	}
}

func marshalResult(result any) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}
