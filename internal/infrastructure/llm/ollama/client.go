// Package ollama provides embeddings and short general-knowledge answers from an ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
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

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// KnowledgeGenerator answers generic topic questions when the index has nothing relevant.
type KnowledgeGenerator struct {
	client *Client
}

func NewKnowledgeGenerator(client *Client) *KnowledgeGenerator {
	return &KnowledgeGenerator{client: client}
}

type knowledgeAnswer struct {
	Known  bool   `json:"known"`
	Answer string `json:"answer"`
}

// Lookup returns "" when the model reports it has no reliable generic answer.
func (g *KnowledgeGenerator) Lookup(ctx context.Context, topic, category string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", nil
	}
	raw, err := g.client.generateJSON(ctx, buildKnowledgePrompt(topic, category))
	if err != nil {
		return "", err
	}

	var answer knowledgeAnswer
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &answer); err != nil {
		return "", fmt.Errorf("parse knowledge json: %w", err)
	}
	if !answer.Known {
		return "", nil
	}
	return strings.TrimSpace(answer.Answer), nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
