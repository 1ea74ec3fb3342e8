package es

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/logging"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES 只实现写入路径需要的几个接口
type fakeES struct {
	mu      sync.Mutex
	indices map[string]bool
	docs    map[string]json.RawMessage
	bulks   int
	sources []json.RawMessage
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.indices[parts[0]] {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && len(parts) == 1:
		f.indices[parts[0]] = true
		fmt.Fprintf(w, `{"acknowledged":true,"shards_acknowledged":true,"index":%q}`, parts[0])
	case r.Method == http.MethodPut && len(parts) == 3 && parts[1] == "_doc":
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.docs[parts[0]+"/"+parts[2]] = body
		fmt.Fprintf(w, `{"_index":%q,"_id":%q,"_version":1,"result":"created","_shards":{"total":1,"successful":1,"failed":0},"_seq_no":0,"_primary_term":1}`, parts[0], parts[2])
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.bulks++
		var items []string
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1024*1024), 1024*1024)
		for sc.Scan() {
			var meta struct {
				Index struct {
					Index string `json:"_index"`
					ID    string `json:"_id"`
				} `json:"index"`
			}
			if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || meta.Index.ID == "" {
				continue
			}
			sc.Scan()
			index := meta.Index.Index
			if index == "" {
				index = parts[0]
			}
			f.docs[index+"/"+meta.Index.ID] = append(json.RawMessage(nil), sc.Bytes()...)
			items = append(items, fmt.Sprintf(`{"index":{"_index":%q,"_id":%q,"status":201,"result":"created"}}`, index, meta.Index.ID))
		}
		fmt.Fprintf(w, `{"took":1,"errors":false,"items":[%s]}`, strings.Join(items, ","))
	case strings.HasSuffix(r.URL.Path, "/_search"):
		hits := make([]string, 0, len(f.sources))
		for i, src := range f.sources {
			hits = append(hits, fmt.Sprintf(`{"_index":%q,"_id":"%d","_score":1,"_source":%s}`, parts[0], i, src))
		}
		fmt.Fprintf(w, `{"took":1,"timed_out":false,"_shards":{"total":1,"successful":1,"skipped":0,"failed":0},"hits":{"total":{"value":%d,"relation":"eq"},"max_score":1,"hits":[%s]}}`,
			len(hits), strings.Join(hits, ","))
	default:
		w.WriteHeader(http.StatusNotImplemented)
		fmt.Fprintf(w, `{"error":{"type":"not_implemented","reason":"%s %s"},"status":501}`, r.Method, r.URL.Path)
	}
}

func newStore(t *testing.T) (*ResultsStore, *fakeES) {
	t.Helper()
	fake := &fakeES{indices: map[string]bool{"test-user-profiles": true}, docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewResultsStore(client, "test-", logging.Discard()), fake
}

func TestCreateIndices(t *testing.T) {
	s, fake := newStore(t)
	require.NoError(t, s.CreateIndices(context.Background()))
	assert.True(t, fake.indices["test-article-stats"])
	assert.True(t, fake.indices["test-article-comments"])
	assert.True(t, fake.indices["test-user-profiles"])
}

func TestSaveStatsAppendsSnapshots(t *testing.T) {
	s, fake := newStore(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	stats := model.ArticleStats{Platform: "juejin", ArticleID: "a1", RemoteID: "7", Views: 10, ScrapedAt: first}
	require.NoError(t, s.SaveStats(ctx, []model.ArticleStats{stats}))
	stats.Views = 25
	stats.ScrapedAt = first.Add(time.Hour)
	require.NoError(t, s.SaveStats(ctx, []model.ArticleStats{stats}))

	assert.Len(t, fake.docs, 2, "each scrape is a new document")
	assert.Equal(t, 0, fake.bulks)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.docs[fmt.Sprintf("test-article-stats/juejin:7:%d", first.UnixMilli())], &doc))
	assert.Equal(t, float64(10), doc["views"])
	assert.Equal(t, "a1", doc["articleId"])
}

func TestSaveCommentsUsesBulk(t *testing.T) {
	s, fake := newStore(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	err := s.SaveComments(context.Background(), []model.Comment{
		{Platform: "csdn", ArticleID: "a1", RemoteID: "c1", Author: "甲", Content: "好文", ScrapedAt: now},
		{Platform: "csdn", ArticleID: "a1", RemoteID: "c2", Author: "乙", Content: "收藏了", ScrapedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.bulks)
	assert.Len(t, fake.docs, 2)
	assert.Contains(t, fake.docs, fmt.Sprintf("test-article-comments/csdn:a1:c1:%d", now.UnixMilli()))

	require.NoError(t, s.SaveComments(context.Background(), nil))
	assert.Equal(t, 1, fake.bulks)
}

func TestSaveProfile(t *testing.T) {
	s, fake := newStore(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveProfile(context.Background(), model.UserProfile{Platform: "zhihu", URL: "https://www.zhihu.com/people/x", Followers: 3, ScrapedAt: now}))
	assert.Len(t, fake.docs, 1)
}

func TestStatsHistoryNewestFirst(t *testing.T) {
	s, fake := newStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, views := range []int64{10, 30, 20} {
		src, err := json.Marshal(model.ArticleStats{Platform: "juejin", ArticleID: "a1", Views: views, ScrapedAt: base.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)})
		require.NoError(t, err)
		fake.sources = append(fake.sources, src)
	}

	got, err := s.StatsHistory(context.Background(), "juejin", "a1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(30), got[0].Views)
	assert.Equal(t, int64(20), got[1].Views)
}
