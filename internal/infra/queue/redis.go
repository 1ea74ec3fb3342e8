package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 中的键布局,{p} 为前缀,{q} 为队列名:
//
//	{p}:{q}:job:{id}  任务 JSON
//	{p}:{q}:wait      有序集合,分数见 waitScore
//	{p}:{q}:delayed   有序集合,分数为可执行时间(毫秒)
//	{p}:{q}:score     延迟任务到期后进入 wait 使用的分数
//	{p}:{q}:active    有序集合,分数为租约到期时间
//	{p}:{q}:lease     哈希,执行中任务当前的租约标识
//	{p}:{q}:completed / failed  有序集合,分数为结束时间

var addScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	if ARGV[4] ~= '' then
		redis.call('HSET', KEYS[3], ARGV[3], ARGV[4])
	end
	return 1
end
return 0
`)

// 先把到期的延迟任务移到 wait,再弹出分数最小的任务放入 active
var fetchScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
	local score = redis.call('HGET', KEYS[4], id)
	redis.call('ZREM', KEYS[1], id)
	redis.call('HDEL', KEYS[4], id)
	redis.call('ZADD', KEYS[2], score or ARGV[1], id)
end
local popped = redis.call('ZPOPMIN', KEYS[2])
if #popped == 0 then
	return false
end
redis.call('ZADD', KEYS[3], ARGV[2], popped[1])
redis.call('HSET', KEYS[5], popped[1], ARGV[3])
return popped[1]
`)

// 租约仍属于调用者时才延长
var heartbeatScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('ZADD', KEYS[2], 'XX', ARGV[3], ARGV[1])
return 1
`)

var progressScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[3])
return 1
`)

// 租约仍属于调用者时释放租约,把任务移到目标集合并写回记录
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[4], ARGV[1])
if ARGV[5] ~= '' then
	redis.call('HSET', KEYS[5], ARGV[1], ARGV[5])
end
redis.call('SET', KEYS[3], ARGV[3])
return 1
`)

// 租约确实已过期时收回,和 releaseScript 互斥
var reclaimScript = redis.NewScript(`
local expires = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not expires or tonumber(expires) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// ErrDuplicate 相同 ID 的任务已存在
var ErrDuplicate = errors.New("任务已存在")

type RedisBroker struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// InitRedisBroker 连接 Redis 并检查连通性
func InitRedisBroker(ctx context.Context, url, prefix string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析 Redis 地址失败: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisBroker(client, prefix), nil
}

func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix, now: time.Now}
}

func (b *RedisBroker) key(queue, name string) string {
	return b.prefix + ":" + queue + ":" + name
}

func (b *RedisBroker) jobKey(queue, id string) string {
	return b.key(queue, "job:"+id)
}

func (b *RedisBroker) Add(ctx context.Context, job *Job) error {
	now := b.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	set, score, pending := "wait", waitScore(job.Priority, job.RunAt), ""
	job.State = StateWaiting
	if job.RunAt.After(now) {
		job.State = StateDelayed
		set, pending = "delayed", strconv.FormatFloat(score, 'f', -1, 64)
		score = ms(job.RunAt)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	keys := []string{b.jobKey(job.Queue, job.ID), b.key(job.Queue, set), b.key(job.Queue, "score")}
	added, err := addScript.Run(ctx, b.client, keys, data, score, job.ID, pending).Int()
	if err != nil {
		return fmt.Errorf("写入任务失败: %w", err)
	}
	if added == 0 {
		return ErrDuplicate
	}
	return nil
}

func (b *RedisBroker) Fetch(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	now := b.now()
	keys := []string{b.key(queue, "delayed"), b.key(queue, "wait"), b.key(queue, "active"), b.key(queue, "score"), b.key(queue, "lease")}
	token := newLease()
	id, err := fetchScript.Run(ctx, b.client, keys, ms(now), ms(now.Add(lease)), token).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("取任务失败: %w", err)
	}
	job, err := b.Get(ctx, queue, id)
	if errors.Is(err, ErrNotFound) {
		// 任务记录已被删除,丢弃悬空的 ID
		b.client.ZRem(ctx, b.key(queue, "active"), id)
		b.client.HDel(ctx, b.key(queue, "lease"), id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Attempts++
	job.State = StateActive
	job.ProcessedAt = ptr(now)
	job.LeaseUntil = ptr(now.Add(lease))
	if err := b.save(ctx, b.client, job); err != nil {
		return nil, err
	}
	job.Lease = token
	return job, nil
}

func (b *RedisBroker) Heartbeat(ctx context.Context, job *Job, lease time.Duration) error {
	keys := []string{b.key(job.Queue, "lease"), b.key(job.Queue, "active")}
	ok, err := heartbeatScript.Run(ctx, b.client, keys, job.ID, job.Lease, ms(b.now().Add(lease))).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *RedisBroker) Progress(ctx context.Context, job *Job, progress int) error {
	next := *job
	next.Progress = progress
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	keys := []string{b.key(job.Queue, "lease"), b.jobKey(job.Queue, job.ID)}
	ok, err := progressScript.Run(ctx, b.client, keys, job.ID, job.Lease, data).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrNotFound
	}
	job.Progress = progress
	return nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job, result json.RawMessage) error {
	now := b.now()
	return b.release(ctx, job, "completed", ms(now), "", func(j *Job) {
		j.State = StateCompleted
		j.Result = result
		j.FinishedAt = ptr(now)
	})
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, runAt time.Time) error {
	pending := strconv.FormatFloat(waitScore(job.Priority, runAt), 'f', -1, 64)
	return b.release(ctx, job, "delayed", ms(runAt), pending, func(j *Job) {
		j.State = StateDelayed
		j.RunAt = runAt
	})
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job) error {
	now := b.now()
	return b.release(ctx, job, "failed", ms(now), "", func(j *Job) {
		j.State = StateFailed
		j.FinishedAt = ptr(now)
	})
}

// release 在 job 的副本上应用修改,写入成功后才同步回 job,租约失效时 job 保持不变
func (b *RedisBroker) release(ctx context.Context, job *Job, set string, score float64, pending string, apply func(*Job)) error {
	next := *job
	apply(&next)
	next.LeaseUntil = nil
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	keys := []string{b.key(job.Queue, "lease"), b.key(job.Queue, "active"), b.jobKey(job.Queue, job.ID), b.key(job.Queue, set), b.key(job.Queue, "score")}
	ok, err := releaseScript.Run(ctx, b.client, keys, job.ID, job.Lease, data, score, pending).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrNotFound
	}
	next.Lease = ""
	*job = next
	return nil
}

func (b *RedisBroker) RequeueStalled(ctx context.Context, queue string, now time.Time) ([]*Job, error) {
	active := b.key(queue, "active")
	ids, err := b.client.ZRangeByScore(ctx, active, &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}).Result()
	if err != nil {
		return nil, err
	}
	var stalled []*Job
	for _, id := range ids {
		// 收回租约成功的检查者才负责处理这个任务
		removed, err := reclaimScript.Run(ctx, b.client, []string{active, b.key(queue, "lease")}, id, now.UnixMilli()).Int()
		if err != nil {
			return stalled, err
		}
		if removed == 0 {
			continue
		}
		job, err := b.Get(ctx, queue, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return stalled, err
		}
		job.LeaseUntil = nil
		if job.LastError == "" {
			job.LastError = "任务租约过期"
		}
		_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if job.Exhausted() {
				job.State = StateFailed
				job.FinishedAt = ptr(now)
				pipe.ZAdd(ctx, b.key(queue, "failed"), redis.Z{Score: ms(now), Member: id})
			} else {
				job.State = StateWaiting
				job.RunAt = now
				pipe.ZAdd(ctx, b.key(queue, "wait"), redis.Z{Score: waitScore(job.Priority, now), Member: id})
			}
			return b.save(ctx, pipe, job)
		})
		if err != nil {
			return stalled, err
		}
		stalled = append(stalled, job)
	}
	return stalled, nil
}

func (b *RedisBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	data, err := b.client.Get(ctx, b.jobKey(queue, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("解析任务 %s 失败: %w", id, err)
	}
	return &job, nil
}

// List 等待中的按执行顺序,已结束的按时间倒序
func (b *RedisBroker) List(ctx context.Context, queue string, state State, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	set := string(state)
	if state == StateWaiting {
		set = "wait"
	}
	key := b.key(queue, set)
	var ids []string
	var err error
	switch state {
	case StateCompleted, StateFailed:
		ids, err = b.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	default:
		ids, err = b.client.ZRange(ctx, key, 0, int64(limit-1)).Result()
	}
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := b.Get(ctx, queue, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		job.State = state
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) save(ctx context.Context, c redis.Cmdable, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.Set(ctx, b.jobKey(job.Queue, job.ID), data, 0).Err()
}
