package es

import (
	"context"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

// TypedEsClient 绑定到单个文档类型的索引操作,索引名和映射来自文档类型本身
type TypedEsClient[D model.Document] interface {
	GetClient() *elasticsearch.TypedClient
	Index() string
	CreateIndexWithMapping(ctx context.Context) error
	IndexDocWithID(ctx context.Context, doc D) error
	BulkIndexDocsWithID(ctx context.Context, docs []D) error
	CountDocs(ctx context.Context) (int64, error)
	SearchDoc(ctx context.Context, query *types.Query, from, size int) ([]D, int64, error)
}
