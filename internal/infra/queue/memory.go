package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	job Job
	// seq 进入等待队列的顺序,用于同优先级 FIFO
	seq int64
}

// MemoryBroker 进程内的 Broker,用于测试和单机调试。语义与 RedisBroker 一致。
type MemoryBroker struct {
	mu   sync.Mutex
	jobs map[string]map[string]*memEntry
	seq  int64
	now  func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{jobs: map[string]map[string]*memEntry{}, now: time.Now}
}

func (b *MemoryBroker) queue(name string) map[string]*memEntry {
	q, ok := b.jobs[name]
	if !ok {
		q = map[string]*memEntry{}
		b.jobs[name] = q
	}
	return q
}

func (b *MemoryBroker) Add(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	if _, ok := q[job.ID]; ok {
		return ErrDuplicate
	}
	now := b.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.State = StateWaiting
	if job.RunAt.After(now) {
		job.State = StateDelayed
	}
	b.seq++
	q[job.ID] = &memEntry{job: clone(job), seq: b.seq}
	return nil
}

func (b *MemoryBroker) Fetch(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	var next *memEntry
	for _, e := range b.queue(queue) {
		if !e.ready(now) {
			continue
		}
		if next == nil || e.before(next) {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}
	next.job.Attempts++
	next.job.State = StateActive
	next.job.ProcessedAt = ptr(now)
	next.job.LeaseUntil = ptr(now.Add(lease))
	next.job.Lease = newLease()
	job := clone(&next.job)
	return &job, nil
}

func (e *memEntry) ready(now time.Time) bool {
	switch e.job.State {
	case StateWaiting:
		return true
	case StateDelayed:
		return !e.job.RunAt.After(now)
	}
	return false
}

func (e *memEntry) before(other *memEntry) bool {
	if e.job.Priority != other.job.Priority {
		return e.job.Priority > other.job.Priority
	}
	if !e.job.RunAt.Equal(other.job.RunAt) {
		return e.job.RunAt.Before(other.job.RunAt)
	}
	return e.seq < other.seq
}

func (b *MemoryBroker) Heartbeat(ctx context.Context, job *Job, lease time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.held(job)
	if err != nil {
		return err
	}
	e.job.LeaseUntil = ptr(b.now().Add(lease))
	return nil
}

func (b *MemoryBroker) Progress(ctx context.Context, job *Job, progress int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.held(job)
	if err != nil {
		return err
	}
	job.Progress = progress
	e.job.Progress = progress
	return nil
}

func (b *MemoryBroker) Complete(ctx context.Context, job *Job, result json.RawMessage) error {
	return b.update(job, func(j *Job) {
		j.State = StateCompleted
		j.Result = result
		j.FinishedAt = ptr(b.now())
	})
}

func (b *MemoryBroker) Retry(ctx context.Context, job *Job, runAt time.Time) error {
	return b.update(job, func(j *Job) {
		j.State = StateDelayed
		j.RunAt = runAt
	})
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job) error {
	return b.update(job, func(j *Job) {
		j.State = StateFailed
		j.FinishedAt = ptr(b.now())
	})
}

// held 返回 job 租约仍然有效的记录,调用方持有锁
func (b *MemoryBroker) held(job *Job) (*memEntry, error) {
	e, ok := b.queue(job.Queue)[job.ID]
	if !ok || e.job.State != StateActive || job.Lease == "" || e.job.Lease != job.Lease {
		return nil, ErrNotFound
	}
	return e, nil
}

// update 租约有效时修改 job 并用它覆盖存储的记录,租约随之释放
func (b *MemoryBroker) update(job *Job, apply func(*Job)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.held(job)
	if err != nil {
		return err
	}
	apply(job)
	job.LeaseUntil = nil
	job.Lease = ""
	if job.State == StateWaiting || job.State == StateDelayed {
		b.seq++
		e.seq = b.seq
	}
	e.job = clone(job)
	return nil
}

func (b *MemoryBroker) RequeueStalled(ctx context.Context, queue string, now time.Time) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var stalled []*Job
	for _, e := range b.queue(queue) {
		j := &e.job
		if j.State != StateActive || j.LeaseUntil == nil || j.LeaseUntil.After(now) {
			continue
		}
		j.LeaseUntil = nil
		j.Lease = ""
		if j.LastError == "" {
			j.LastError = "任务租约过期"
		}
		if j.Exhausted() {
			j.State = StateFailed
			j.FinishedAt = ptr(now)
		} else {
			j.State = StateWaiting
			j.RunAt = now
			b.seq++
			e.seq = b.seq
		}
		c := clone(j)
		stalled = append(stalled, &c)
	}
	return stalled, nil
}

func (b *MemoryBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.queue(queue)[id]
	if !ok {
		return nil, ErrNotFound
	}
	job := clone(&e.job)
	job.Lease = ""
	return &job, nil
}

func (b *MemoryBroker) List(ctx context.Context, queue string, state State, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	b.mu.Lock()
	var entries []*memEntry
	for _, e := range b.queue(queue) {
		if e.job.State == state {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		switch state {
		case StateCompleted, StateFailed:
			return a.job.FinishedAt.After(*c.job.FinishedAt)
		case StateDelayed:
			return a.job.RunAt.Before(c.job.RunAt)
		case StateActive:
			return a.job.LeaseUntil.Before(*c.job.LeaseUntil)
		}
		return a.before(c)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	jobs := make([]*Job, len(entries))
	for i, e := range entries {
		j := clone(&e.job)
		j.Lease = ""
		jobs[i] = &j
	}
	b.mu.Unlock()
	return jobs, nil
}

func (b *MemoryBroker) Ping(ctx context.Context) error { return nil }

func (b *MemoryBroker) Close() error { return nil }

func clone(j *Job) Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	c.Result = append(json.RawMessage(nil), j.Result...)
	return c
}
