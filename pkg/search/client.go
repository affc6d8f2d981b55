// Package search wraps the Elasticsearch knowledge store. Each tenant
// namespace maps to its own index, so a query can only ever see the
// namespace it is addressed to.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"comerse-go/internal/config"
	"comerse-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Store is the tenant knowledge store.
type Store interface {
	EnsureIndex(ctx context.Context, namespace string) error
	DropIndex(ctx context.Context, namespace string) error
	IndexChunk(ctx context.Context, namespace string, doc model.ChunkDocument) error
	Search(ctx context.Context, namespace string, vector []float32, k int) ([]model.RetrievedChunk, error)
}

type esStore struct {
	client      *elasticsearch.Client
	indexPrefix string
	dims        int
}

// NewStore connects an Elasticsearch client for the knowledge store.
// dims is the embedding dimensionality used in index mappings.
func NewStore(cfg config.ElasticsearchConfig, dims int) (Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return &esStore{client: client, indexPrefix: cfg.IndexPrefix, dims: dims}, nil
}

// indexName builds the per-tenant index name. The namespace is the partition:
// tenant isolation holds structurally because every request addresses exactly
// one index.
func (s *esStore) indexName(namespace string) string {
	return fmt.Sprintf("%s-%s", s.indexPrefix, namespace)
}

// EnsureIndex creates the tenant's index if it does not exist yet.
func (s *esStore) EnsureIndex(ctx context.Context, namespace string) error {
	name := s.indexName(namespace)
	res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index %s: %d", name, res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"data_type": { "type": "keyword" },
				"metadata": { "type": "object", "enabled": false }
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error creating index %s: %s", name, res.String())
	}
	return nil
}

// DropIndex deletes the tenant's index wholesale. A missing index is not an
// error, so replace flows can always call this first.
func (s *esStore) DropIndex(ctx context.Context, namespace string) error {
	name := s.indexName(namespace)
	res, err := s.client.Indices.Delete([]string{name}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch returned an error deleting index %s: %s", name, res.String())
	}
	return nil
}

// IndexChunk writes one chunk document into the tenant's index.
func (s *esStore) IndexChunk(ctx context.Context, namespace string, doc model.ChunkDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName(namespace),
		DocumentID: doc.ChunkID,
		Body:       bytes.NewReader(docBytes),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.New("failed to index chunk: " + res.String())
	}
	return nil
}

// Search runs a kNN query against the tenant's index and returns chunks in
// rank order. A tenant with no index yet gets an empty result, not an error.
func (s *esStore) Search(ctx context.Context, namespace string, vector []float32, k int) ([]model.RetrievedChunk, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size": k,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName(namespace)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ChunkDocument `json:"_source"`
				Score  float64             `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.RetrievedChunk, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.RetrievedChunk{
			Content:  hit.Source.Content,
			Score:    hit.Score,
			DataType: hit.Source.DataType,
			Metadata: hit.Source.Metadata,
		})
	}
	return results, nil
}
