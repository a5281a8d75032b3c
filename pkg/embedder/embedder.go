// Package embedder is the HTTP client for the embedding service that
// serves the multilingual sentence model. Query and passage texts are
// prefixed for e5-family models and every returned vector is
// L2-normalized so cosine similarity reduces to a dot product.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// embedMu serializes requests so a batch job cannot overload the single
// GPU worker behind the service.
var embedMu sync.Mutex

// Client talks to the embedding HTTP service.
type Client struct {
	baseURL string
	model   string
	dim     int
	httpCli *http.Client
}

// New creates an embedding client. dim is the expected vector size;
// responses with a different dimensionality are rejected.
func New(baseURL, model string, dim int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		dim:     dim,
		httpCli: &http.Client{Timeout: 120 * time.Second},
	}
}

// Dimension returns the expected vector size.
func (c *Client) Dimension() int { return c.dim }

type embedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedQuery embeds one search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{c.prefixed("query", text)})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedPassages embeds document texts in one request. Order of the
// returned vectors matches the input order.
func (c *Client) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = c.prefixed("passage", t)
	}
	return c.embed(ctx, prefixed)
}

// prefixed adds the e5 instruction prefix when the model needs it.
// Non-e5 models get the raw text.
func (c *Client) prefixed(role, text string) string {
	if strings.Contains(strings.ToLower(c.model), "e5") {
		return role + ": " + text
	}
	return text
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	embedMu.Lock()
	defer embedMu.Unlock()

	body, err := json.Marshal(embedRequest{Model: c.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}

	for i, v := range out.Embeddings {
		if len(v) != c.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), c.dim)
		}
		l2Normalize(v)
	}
	return out.Embeddings, nil
}

// l2Normalize scales v to unit length in place. Zero vectors are left
// untouched.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
