// Package search keeps the latest pacing results in an Elasticsearch index so
// that the portfolio can be filtered by decision and searched by name.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"pacer/internal/config"
	"pacer/internal/models"
)

// Document is one indexed pacing result
type Document struct {
	*models.EventPacingResult
	AsOf      string    `json:"as_of"`
	IndexedAt time.Time `json:"indexed_at"`
}

type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mappingJSON, err := json.Marshal(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(mappingJSON),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

func indexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	text := map[string]interface{}{
		"type": "text",
		"fields": map[string]interface{}{
			"keyword": map[string]interface{}{
				"type":         "keyword",
				"ignore_above": 256,
			},
		},
	}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"event_id":           keyword,
				"event_name":         text,
				"event_type":         keyword,
				"city":               text,
				"decision":           keyword,
				"as_of":              keyword,
				"urgency":            map[string]interface{}{"type": "integer"},
				"days_until":         map[string]interface{}{"type": "integer"},
				"sell_through":       map[string]interface{}{"type": "float"},
				"pace_vs_historical": map[string]interface{}{"type": "float"},
				"cac":                map[string]interface{}{"type": "float"},
				"indexed_at":         map[string]interface{}{"type": "date"},
				// nested comparison tables are returned but never queried
				"historical_comparisons": map[string]interface{}{"type": "object", "enabled": false},
			},
		},
	}
}

// IndexResults replaces the indexed portfolio with results computed for asOf
func (c *ElasticsearchClient) IndexResults(ctx context.Context, asOf time.Time, results []*models.EventPacingResult) error {
	day := asOf.Format("2006-01-02")
	if len(results) > 0 {
		body, err := bulkBody(c.config.Index, day, time.Now().UTC(), results)
		if err != nil {
			return err
		}

		req := esapi.BulkRequest{
			Body:    bytes.NewReader(body),
			Refresh: "wait_for",
		}
		res, err := req.Do(ctx, c.client)
		if err != nil {
			return fmt.Errorf("failed to index results: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("indexing error: %s", res.String())
		}

		var bulk struct {
			Errors bool `json:"errors"`
		}
		if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
			return fmt.Errorf("failed to decode bulk response: %w", err)
		}
		if bulk.Errors {
			return fmt.Errorf("bulk indexing reported item errors")
		}
	}

	return c.deleteStale(ctx, day)
}

// bulkBody renders the NDJSON payload of a bulk index request
func bulkBody(index, asOf string, now time.Time, results []*models.EventPacingResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range results {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": index, "_id": r.EventID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("failed to encode bulk metadata: %w", err)
		}
		if err := enc.Encode(Document{EventPacingResult: r, AsOf: asOf, IndexedAt: now}); err != nil {
			return nil, fmt.Errorf("failed to encode result %s: %w", r.EventID, err)
		}
	}
	return buf.Bytes(), nil
}

// deleteStale drops documents of events that left the portfolio
func (c *ElasticsearchClient) deleteStale(ctx context.Context, asOf string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must_not": []map[string]interface{}{
					{"term": map[string]interface{}{"as_of": asOf}},
				},
			},
		},
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %w", err)
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{c.config.Index},
		Body:    bytes.NewReader(queryJSON),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete stale results: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete error: %s", res.String())
	}
	return nil
}

// Search returns indexed results, most urgent first, optionally filtered by
// decision and matched against name, city and event type.
func (c *ElasticsearchClient) Search(ctx context.Context, decision, query string, size int) ([]*models.EventPacingResult, error) {
	if size <= 0 {
		size = 50
	}
	searchRequest := map[string]interface{}{
		"query": buildSearchQuery(decision, query),
		"sort": []map[string]interface{}{
			{"urgency": map[string]interface{}{"order": "desc"}},
			{"days_until": map[string]interface{}{"order": "asc"}},
		},
		"size": size,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(searchJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source models.EventPacingResult `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := make([]*models.EventPacingResult, len(response.Hits.Hits))
	for i := range response.Hits.Hits {
		out[i] = &response.Hits.Hits[i].Source
	}
	return out, nil
}

func buildSearchQuery(decision, query string) map[string]interface{} {
	var must []map[string]interface{}
	var filter []map[string]interface{}

	if q := strings.TrimSpace(query); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q,
				"fields":    []string{"event_name^2", "city", "event_type"},
				"fuzziness": "AUTO",
			},
		})
	}
	if d := strings.ToUpper(strings.TrimSpace(decision)); d != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"decision": d},
		})
	}

	if len(must) == 0 && len(filter) == 0 {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]interface{}{"bool": boolQuery}
}

func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
