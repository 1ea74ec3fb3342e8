package es

import (
	"context"
	"fmt"
	"sort"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/sirupsen/logrus"
)

var _ ports.ResultsStore = (*ResultsStore)(nil)

// ResultsStore 抓取结果只追加:每次抓取都是一份新的快照文档
type ResultsStore struct {
	stats    TypedEsClient[*model.StatsDoc]
	comments TypedEsClient[*model.CommentDoc]
	profiles TypedEsClient[*model.ProfileDoc]
}

func InitResultsStore(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*ResultsStore, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	s := NewResultsStore(client, cfg.Elasticsearch.IndexPrefix, logger)
	if err := s.CreateIndices(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func NewResultsStore(client *elasticsearch.TypedClient, prefix string, logger *logrus.Entry) *ResultsStore {
	logger = logger.WithField("component", "es")
	return &ResultsStore{
		stats:    InitTypedEsClient[*model.StatsDoc](client, prefix, logger),
		comments: InitTypedEsClient[*model.CommentDoc](client, prefix, logger),
		profiles: InitTypedEsClient[*model.ProfileDoc](client, prefix, logger),
	}
}

func (s *ResultsStore) CreateIndices(ctx context.Context) error {
	for _, create := range []func(context.Context) error{
		s.stats.CreateIndexWithMapping,
		s.comments.CreateIndexWithMapping,
		s.profiles.CreateIndexWithMapping,
	} {
		if err := create(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *ResultsStore) SaveStats(ctx context.Context, stats []model.ArticleStats) error {
	docs := make([]*model.StatsDoc, 0, len(stats))
	for _, st := range stats {
		docs = append(docs, &model.StatsDoc{ArticleStats: st})
	}
	return save(ctx, s.stats, docs)
}

func (s *ResultsStore) SaveComments(ctx context.Context, comments []model.Comment) error {
	docs := make([]*model.CommentDoc, 0, len(comments))
	for _, c := range comments {
		docs = append(docs, &model.CommentDoc{Comment: c})
	}
	return save(ctx, s.comments, docs)
}

func (s *ResultsStore) SaveProfile(ctx context.Context, profile model.UserProfile) error {
	return save(ctx, s.profiles, []*model.ProfileDoc{{UserProfile: profile}})
}

// save 单条直接写入,多条走批量接口
func save[D model.Document](ctx context.Context, c TypedEsClient[D], docs []D) error {
	switch len(docs) {
	case 0:
		return nil
	case 1:
		return c.IndexDocWithID(ctx, docs[0])
	}
	return c.BulkIndexDocsWithID(ctx, docs)
}

// StatsHistory 某篇文章在某个平台上的统计快照,按抓取时间从新到旧
func (s *ResultsStore) StatsHistory(ctx context.Context, platform, articleID string, limit int) ([]model.ArticleStats, error) {
	query := &types.Query{Bool: &types.BoolQuery{Filter: []types.Query{
		{Term: map[string]types.TermQuery{"platform": {Value: platform}}},
		{Term: map[string]types.TermQuery{"articleId": {Value: articleID}}},
	}}}
	docs, _, err := s.stats.SearchDoc(ctx, query, 0, 1000)
	if err != nil {
		return nil, fmt.Errorf("查询统计快照失败: %w", err)
	}
	out := make([]model.ArticleStats, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ArticleStats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScrapedAt.After(out[j].ScrapedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
