// Package memstore 进程内的存储实现,用于测试和不连接数据库的本地调试
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
)

var (
	_ ports.ArticleStore      = (*Articles)(nil)
	_ ports.CredentialStore   = (*Credentials)(nil)
	_ ports.UserStore         = (*Users)(nil)
	_ ports.ResultsStore      = (*Results)(nil)
	_ ports.NotificationStore = (*Notifications)(nil)
)

type Articles struct {
	mu       sync.Mutex
	articles map[string]*model.Article
	// FailUpdates 非空时所有写操作返回该错误
	FailUpdates error
}

func NewArticles(articles ...model.Article) *Articles {
	s := &Articles{articles: map[string]*model.Article{}}
	for i := range articles {
		a := articles[i]
		if a.Platforms == nil {
			a.Platforms = map[string]model.PlatformPublishState{}
		}
		s.articles[a.ID] = &a
	}
	return s
}

func (s *Articles) get(articleID, userID string) (*model.Article, error) {
	a, ok := s.articles[articleID]
	if !ok || (userID != "" && a.UserID != userID) {
		return nil, ports.ErrNotFound
	}
	return a, nil
}

func (s *Articles) Find(ctx context.Context, articleID, userID string) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(articleID, userID)
	if err != nil {
		return nil, err
	}
	c := *a
	c.Platforms = make(map[string]model.PlatformPublishState, len(a.Platforms))
	for k, v := range a.Platforms {
		c.Platforms[k] = v
	}
	return &c, nil
}

func (s *Articles) PlatformState(ctx context.Context, articleID, platform string) (model.PlatformPublishState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(articleID, "")
	if err != nil {
		return model.PlatformPublishState{}, err
	}
	st, ok := a.Platforms[platform]
	if !ok {
		return model.PlatformPublishState{}, ports.ErrNotFound
	}
	return st, nil
}

func (s *Articles) UpdatePlatformState(ctx context.Context, articleID, userID, platform string, state model.PlatformPublishState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdates != nil {
		return s.FailUpdates
	}
	a, err := s.get(articleID, userID)
	if err != nil {
		return err
	}
	a.Platforms[platform] = state
	return nil
}

func (s *Articles) UpdateStatus(ctx context.Context, articleID, userID string, status model.ArticleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdates != nil {
		return s.FailUpdates
	}
	a, err := s.get(articleID, userID)
	if err != nil {
		return err
	}
	a.Status = status
	return nil
}

func (s *Articles) UpdateSummary(ctx context.Context, articleID, userID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(articleID, userID)
	if err != nil {
		return err
	}
	a.Summary = summary
	return nil
}

func (s *Articles) ListPublished(ctx context.Context, platform string, limit int) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Article
	for _, a := range s.articles {
		if st, ok := a.Platforms[platform]; ok && st.Status == model.PlatformPublished {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Credentials 按用户和平台保存的登录凭证
type Credentials struct {
	mu    sync.Mutex
	byKey map[string]model.LoginCredentials
	Calls int
}

func NewCredentials() *Credentials {
	return &Credentials{byKey: map[string]model.LoginCredentials{}}
}

func (s *Credentials) Put(userID, platform string, cred model.LoginCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[userID+"/"+platform] = cred
}

func (s *Credentials) GetUserCredentials(ctx context.Context, userID string, platforms []string) (map[string]model.LoginCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	out := map[string]model.LoginCredentials{}
	for _, p := range platforms {
		if c, ok := s.byKey[userID+"/"+p]; ok {
			out[p] = c
		}
	}
	return out, nil
}

type Users struct {
	mu    sync.Mutex
	users map[string]model.User
}

func NewUsers(users ...model.User) *Users {
	s := &Users{users: map[string]model.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Users) Find(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &u, nil
}

type Results struct {
	mu       sync.Mutex
	Stats    []model.ArticleStats
	Comments []model.Comment
	Profiles []model.UserProfile
}

func (s *Results) SaveStats(ctx context.Context, stats []model.ArticleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats = append(s.Stats, stats...)
	return nil
}

func (s *Results) SaveComments(ctx context.Context, comments []model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Comments = append(s.Comments, comments...)
	return nil
}

func (s *Results) SaveProfile(ctx context.Context, profile model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Profiles = append(s.Profiles, profile)
	return nil
}

type Notifications struct {
	mu    sync.Mutex
	items []model.Notification
	// Err 非空时 Create 返回该错误
	Err error
}

func (s *Notifications) Create(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, it := range s.items {
		if n.ID != "" && it.ID == n.ID {
			return nil
		}
	}
	s.items = append(s.items, *n)
	return nil
}

func (s *Notifications) All() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.items...)
}

// Enqueued 一次 Enqueue 调用
type Enqueued struct {
	Queue   string
	Payload any
	Opts    jobqueue.EnqueueOptions
}

// Queue 记录入队请求,不执行任务
type Queue struct {
	mu   sync.Mutex
	jobs []Enqueued
	Err  error
}

var _ ports.Enqueuer = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, queue string, payload any, opts jobqueue.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return "", q.Err
	}
	q.jobs = append(q.jobs, Enqueued{Queue: queue, Payload: payload, Opts: opts})
	return fmt.Sprintf("%s-%d", queue, len(q.jobs)), nil
}

func (q *Queue) Jobs() []Enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Enqueued(nil), q.jobs...)
}
