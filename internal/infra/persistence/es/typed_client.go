package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esutil"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/sirupsen/logrus"
)

type typedEsClient[D model.Document] struct {
	client *elasticsearch.TypedClient
	index  string
	logger *logrus.Entry
	// 只用来读取索引名和映射,不保存数据
	schemaDoc D
}

// NewClient 按配置创建共享的 Elasticsearch 客户端
func NewClient(cfg *config.Config) (*elasticsearch.TypedClient, error) {
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Addresses: []string{cfg.Elasticsearch.Address},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			// 自签名证书只在开发环境出现
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Development()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
	}
	return client, nil
}

// InitTypedEsClient 索引名为 prefix 加上文档类型的索引名
func InitTypedEsClient[D model.Document](client *elasticsearch.TypedClient, prefix string, logger *logrus.Entry) TypedEsClient[D] {
	tec := &typedEsClient[D]{client: client}
	tec.index = prefix + tec.schemaDoc.GetIndex()
	tec.logger = logger.WithField("index", tec.index)
	return tec
}

func (tec *typedEsClient[D]) GetClient() *elasticsearch.TypedClient {
	return tec.client
}

func (tec *typedEsClient[D]) Index() string { return tec.index }

func (tec *typedEsClient[D]) CreateIndexWithMapping(ctx context.Context) error {
	exists, err := tec.client.Indices.Exists(tec.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("检查索引 %s 失败: %w", tec.index, err)
	}
	if exists {
		tec.logger.Debug("索引已存在,跳过创建")
		return nil
	}
	req := tec.client.Indices.Create(tec.index)
	if mapping := tec.schemaDoc.GetTypeMapping(); mapping != nil {
		req = req.Mappings(mapping)
	}
	if _, err := req.Do(ctx); err != nil {
		return fmt.Errorf("创建索引 %s 失败: %w", tec.index, err)
	}
	tec.logger.Info("索引已创建")
	return nil
}

func (tec *typedEsClient[D]) IndexDocWithID(ctx context.Context, doc D) error {
	_, err := tec.client.Index(tec.index).
		Id(doc.GetID()).
		Document(doc).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("写入文档 %s 失败: %w", doc.GetID(), err)
	}
	return nil
}

// BulkIndexDocsWithID 批量写入,任何一条失败都会返回错误
func (tec *typedEsClient[D]) BulkIndexDocsWithID(ctx context.Context, docs []D) error {
	if len(docs) == 0 {
		return nil
	}
	var failed atomic.Int64
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         tec.index,
		Client:        tec.client,
		NumWorkers:    2,
		FlushBytes:    5 * 1024 * 1024,
		FlushInterval: 30 * time.Second,
		OnError: func(ctx context.Context, err error) {
			tec.logger.WithError(err).Warn("批量写入出错")
		},
	})
	if err != nil {
		return fmt.Errorf("创建批量写入器失败: %w", err)
	}

	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			failed.Add(1)
			tec.logger.WithError(err).WithField("doc_id", doc.GetID()).Warn("序列化文档失败")
			continue
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.GetID(),
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				entry := tec.logger.WithField("doc_id", item.DocumentID)
				if err != nil {
					entry.WithError(err).Warn("写入文档失败")
				} else {
					entry.WithField("reason", res.Error.Reason).Warn("写入文档失败")
				}
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("添加批量写入任务失败: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("批量写入失败: %w", err)
	}
	stats := bi.Stats()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d/%d 条文档写入失败", n, len(docs))
	}
	tec.logger.WithField("indexed", stats.NumIndexed).Debug("批量写入完成")
	return nil
}

func (tec *typedEsClient[D]) CountDocs(ctx context.Context) (int64, error) {
	resp, err := tec.client.Count().Index(tec.index).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("统计文档数失败: %w", err)
	}
	return resp.Count, nil
}

func (tec *typedEsClient[D]) SearchDoc(ctx context.Context, query *types.Query, from, size int) ([]D, int64, error) {
	resp, err := tec.client.Search().
		Index(tec.index).
		Query(query).
		From(from).
		Size(size).
		Do(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("搜索失败: %w", err)
	}

	results := make([]D, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc D
		if err := json.Unmarshal(hit.Source_, &doc); err != nil {
			continue
		}
		results = append(results, doc)
	}
	var total int64
	if resp.Hits.Total != nil {
		total = resp.Hits.Total.Value
	}
	return results, total, nil
}
