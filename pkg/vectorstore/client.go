// Package vectorstore 提供了对远端向量索引（Elasticsearch）的命名空间级网关。
// 同一命名空间内写入与检索使用完全一致的 namespace 字符串，跨命名空间不可见。
package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Metadata 是随向量一起存储、检索时原样返回的元数据。
type Metadata struct {
	Text string `json:"text"`
	File string `json:"file,omitempty"`
}

// Vector 是写入索引的一条向量记录。
type Vector struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match 是一次相似度检索的单条结果，按相似度降序排列。
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Store 定义了向量索引的命名空间级操作。
// 网关不做任何重试，远端错误原样包装后交由调用方决定。
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error)
	// Scan 不做相似度计算，按写入无关的顺序取回命名空间内至多 limit 条记录。
	Scan(ctx context.Context, namespace string, limit int) ([]Match, error)
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error
	DeleteAll(ctx context.Context, namespace string) error
}

type esStore struct {
	client    *elasticsearch.Client
	indexName string
}

// NewStore 初始化 Elasticsearch 客户端并确保索引存在。
func NewStore(esCfg config.ElasticsearchConfig) (Store, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	s := &esStore{client: client, indexName: esCfg.IndexName}
	if err := s.createIndexIfNotExists(esCfg.Dimensions); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *esStore) createIndexIfNotExists(dims int) error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"namespace": { "type": "keyword" },
				"text": { "type": "text" },
				"file": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

type storedDocument struct {
	Namespace string    `json:"namespace"`
	Text      string    `json:"text"`
	File      string    `json:"file,omitempty"`
	Vector    []float32 `json:"vector"`
}

// Upsert 将向量逐条写入命名空间，按 ID 幂等覆盖。
func (s *esStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	for _, v := range vectors {
		doc := storedDocument{
			Namespace: namespace,
			Text:      v.Metadata.Text,
			File:      v.Metadata.File,
			Vector:    v.Values,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal vector document: %w", err)
		}

		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: v.ID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("failed to index vector %s: %w", v.ID, err)
		}
		if res.IsError() {
			body := res.String()
			res.Body.Close()
			log.Errorf("索引向量到 Elasticsearch 出错: %s", body)
			return fmt.Errorf("vector index returned an error for %s", v.ID)
		}
		res.Body.Close()
	}
	return nil
}

// Query 在命名空间内做 kNN 相似度检索，结果按相似度降序。
func (s *esStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"namespace": namespace},
			},
		},
		"size": topK,
	}
	if !includeMetadata {
		query["_source"] = false
	}

	return s.runSearch(ctx, query, includeMetadata)
}

// Scan 取回命名空间内至多 limit 条记录及其元数据。
// 删除文件时按分块正文匹配待回收向量用的就是这条路径：
// cosine 的 dense_vector 字段不接受零向量查询，普通 term 过滤即可。
func (s *esStore) Scan(ctx context.Context, namespace string, limit int) ([]Match, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"namespace": namespace},
		},
		"size": limit,
	}
	return s.runSearch(ctx, query, true)
}

func (s *esStore) runSearch(ctx context.Context, query map[string]interface{}, includeMetadata bool) ([]Match, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode vector query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("vector index search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("向量索引检索返回错误, status: %s", res.Status())
		return nil, fmt.Errorf("vector index returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source *storedDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode vector index response: %w", err)
	}

	matches := make([]Match, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		m := Match{ID: hit.ID, Score: hit.Score}
		if includeMetadata && hit.Source != nil {
			m.Metadata = Metadata{Text: hit.Source.Text, File: hit.Source.File}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DeleteByIDs 删除命名空间内指定 ID 的向量。
func (s *esStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"namespace": namespace}},
					{"ids": map[string]interface{}{"values": ids}},
				},
			},
		},
	}
	return s.deleteByQuery(ctx, query)
}

// DeleteAll 清空整个命名空间（游客会话结束、重新上传、用户重置）。
func (s *esStore) DeleteAll(ctx context.Context, namespace string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"namespace": namespace},
		},
	}
	return s.deleteByQuery(ctx, query)
}

func (s *esStore) deleteByQuery(ctx context.Context, query map[string]interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("vector index delete failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("向量索引删除返回错误, status: %s", res.Status())
		return fmt.Errorf("vector index returned an error: %s", res.String())
	}
	return nil
}
