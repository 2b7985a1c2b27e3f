// Package embedding turns text into vectors for the retrieval layer.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"meeting-rag-api/internal/config"
	"meeting-rag-api/pkg/retry"
)

const (
	defaultHTTPModel = "BAAI/bge-m3"
	defaultBatchSize = 32
)

// HTTPClient talks to a self-hosted embedding server exposing POST /embed.
type HTTPClient struct {
	endpoint   string
	model      string
	batchSize  int
	httpClient *http.Client
}

var _ embedding.Embedder = (*HTTPClient)(nil)

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

func NewHTTPClient(cfg *config.EmbeddingConfig) (*HTTPClient, error) {
	endpoint, err := embedURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultHTTPModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint:   endpoint,
		model:      model,
		batchSize:  defaultBatchSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// embedURL defaults an endpoint without a path to /embed.
func embedURL(raw string) (string, error) {
	endpoint := strings.TrimRight(raw, "/")
	if endpoint == "" {
		return "", fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}
	return u.String(), nil
}

// EmbedStrings embeds texts in batches, preserving order.
func (c *HTTPClient) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	all := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := min(i+c.batchSize, len(texts))

		resp, err := c.doBatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("embedding server returned %d vectors for %d texts", len(resp.Embeddings), end-i)
		}
		all = append(all, resp.Embeddings...)
	}
	return all, nil
}

func (c *HTTPClient) doBatchEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("embedding request failed: %w",
			&retry.StatusError{Code: httpResp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return &resp, nil
}
