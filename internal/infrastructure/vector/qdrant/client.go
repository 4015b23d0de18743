// Package qdrant stores enriched chunks in a qdrant collection with one dense and one sparse named vector.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
	serviceName      = "qdrant"
)

// pointNamespace derives stable point ids from chunk ids so re-ingesting a chunk overwrites it.
var pointNamespace = uuid.MustParse("6f1f3c2e-8d0a-4f55-9a57-3f4d8c1b2e70")

// payloadSchemas maps filterable metadata keys to qdrant payload index types.
var payloadSchemas = map[string]string{
	"priority":   "integer",
	"confidence": "float",
}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Client) { c.executor = exec }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pointPayload struct {
	domain.EnrichedMetadata
	Text string `json:"text"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload pointPayload   `json:"payload"`
}

// PointID is the qdrant point id of a chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectorSize := len(chunks[0].Vector)
	if vectorSize == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant index", fmt.Errorf("chunk %s has an empty vector", chunks[0].Metadata.ChunkID))
	}
	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) != vectorSize {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant index",
				fmt.Errorf("chunk %s vector size %d, expected %d", chunk.Metadata.ChunkID, len(chunk.Vector), vectorSize))
		}
		meta := chunk.Metadata
		points = append(points, point{
			ID: PointID(meta.ChunkID),
			Vector: map[string]any{
				denseVectorName:  chunk.Vector,
				sparseVectorName: encodeSparseDocument(chunk.Text, meta.DocTitle, meta.SearchKeywords),
			},
			Payload: pointPayload{EnrichedMetadata: meta, Text: chunk.Text},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

// DeleteChunks removes the points of the given chunk ids. Missing points are not an error.
func (c *Client) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, PointID(id))
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.call(ctx, "delete", http.MethodPost, path, map[string]any{"points": ids}, nil)
}

func (c *Client) Search(ctx context.Context, queryVector []float32, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	body := c.queryBody(queryVector, denseVectorName, req)
	points, err := c.query(ctx, "search", body)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CandidateHit, 0, len(points))
	for _, p := range points {
		out = append(out, domain.CandidateHit{
			Content:   p.Payload.Text,
			BaseScore: clampScore(p.Score),
			Metadata:  p.Payload.EnrichedMetadata,
		})
	}
	return out, nil
}

// SearchLexical ranks by sparse term overlap. Its scores are unbounded, so hits carry no base score.
func (c *Client) SearchLexical(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	sparse := encodeSparseQuery(req.Query)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	points, err := c.query(ctx, "search_lexical", c.queryBody(sparse, sparseVectorName, req))
	if err != nil {
		return nil, err
	}
	out := make([]domain.CandidateHit, 0, len(points))
	for _, p := range points {
		out = append(out, domain.CandidateHit{
			Content:     p.Payload.Text,
			NoBaseScore: true,
			Metadata:    p.Payload.EnrichedMetadata,
		})
	}
	return out, nil
}

func (c *Client) queryBody(query any, using string, req domain.SearchRequest) map[string]any {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"query":        query,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if filter := buildFilter(req); filter != nil {
		body["filter"] = filter
	}
	return body
}

type scoredPoint struct {
	ID      any          `json:"id"`
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
}

func (c *Client) query(ctx context.Context, operation string, body map[string]any) ([]scoredPoint, error) {
	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	if err := c.call(ctx, operation, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Points, nil
}

// buildFilter translates the resolved category constraint and source types into a qdrant filter.
func buildFilter(req domain.SearchRequest) map[string]any {
	var must, should, mustNot []map[string]any

	if c := req.Category; c != nil && len(c.Values) > 0 {
		switch c.Operator {
		case domain.CategoryNotIn:
			mustNot = append(mustNot, matchAny("category", c.Values))
		case domain.CategoryInAny:
			should = append(should, matchAny("category", c.Values), matchAny("tags", c.Values))
		default:
			must = append(must, matchAny("category", c.Values))
		}
	}
	if len(req.SourceTypes) > 0 {
		values := make([]string, 0, len(req.SourceTypes))
		for _, st := range req.SourceTypes {
			values = append(values, string(st))
		}
		must = append(must, matchAny("source_type", values))
	}

	if len(must) == 0 && len(should) == 0 && len(mustNot) == 0 {
		return nil
	}
	filter := map[string]any{}
	if len(must) > 0 {
		filter["must"] = must
	}
	if len(should) > 0 {
		filter["should"] = should
	}
	if len(mustNot) > 0 {
		filter["must_not"] = mustNot
	}
	return filter
}

func matchAny(key string, values []string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"any": values},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{"size": vectorSize, "distance": "Cosine"},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	if err := c.call(ctx, "ensure_collection", http.MethodPut, path, body, nil); err != nil && !isConflict(err) {
		return err
	}

	for _, field := range domain.FilterableFields {
		schema := payloadSchemas[field]
		if schema == "" {
			schema = "keyword"
		}
		indexBody := map[string]any{"field_name": field, "field_schema": schema}
		indexPath := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.call(ctx, "create_payload_index", http.MethodPut, indexPath, indexBody, nil); err != nil {
			c.logger.Warn("qdrant_payload_index_failed", "collection", c.collection, "field", field, "error", err)
		}
	}

	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal qdrant %s body: %w", operation, err)
	}

	err = c.execute(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create qdrant %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Service:    serviceName,
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(body),
			}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant %s response: %w", operation, err)
		}
		return nil
	})
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTP)
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "qdrant."+operation, fn, resilience.ClassifyHTTP)
}

func isConflict(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}

func clampScore(score float64) float64 {
	return min(1, max(0, score))
}
