// Package lexical is the HTTP client for the Typesense article index.
// It covers the three operations the service needs: collection
// bootstrap, document import and keyword search.
package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/khojlabs/khoj/pkg/apierr"
)

// Field groups queried per mode, most specific first. Weights favor the
// title heavily over body text.
const (
	devQueryBy     = "title_hi,summary_hi,content_hi"
	romanQueryBy   = "title_roman_norm,summary_roman_norm,content_roman_norm"
	queryByWeights = "6,3,1"
	numTypos       = 1
)

// Hit is one lexical search result at article granularity.
type Hit struct {
	ArticleID string
	TextMatch float64
}

// Document is one indexed article row. Roman fields hold the canonical
// roman form of the Devanagari text.
type Document struct {
	ID        string `json:"id"`
	TitleHi   string `json:"title_hi"`
	SummaryHi string `json:"summary_hi"`
	ContentHi string `json:"content_hi"`

	TitleRomanNorm   string `json:"title_roman_norm"`
	SummaryRomanNorm string `json:"summary_roman_norm"`
	ContentRomanNorm string `json:"content_roman_norm"`

	CategoriesNorm   []string `json:"categories_norm"`
	TagsNorm         []string `json:"tags_norm"`
	LocationsNorm    []string `json:"locations_norm"`
	ContributorsNorm []string `json:"contributors_norm"`

	ArticleType    string `json:"article_type,omitempty"`
	MultimediaType string `json:"multimedia_type,omitempty"`
	PartnerLabel   string `json:"partner_label,omitempty"`

	PublishedTS   int64  `json:"published_ts"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Client talks to one Typesense node.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpCli    *http.Client
}

// New creates a Typesense client for one collection.
func New(baseURL, apiKey, collection string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		httpCli:    &http.Client{Timeout: timeout},
	}
}

// QueryBy returns the query_by field list for a query mode.
func QueryBy(mode string) string {
	if mode == "dev" {
		return devQueryBy
	}
	return romanQueryBy
}

// CombineFilters merges a caller-supplied filter with the auto filter
// from entity detection. Both sides are parenthesized so their internal
// || clauses cannot leak across the conjunction.
func CombineFilters(client, auto string) string {
	client = strings.TrimSpace(client)
	auto = strings.TrimSpace(auto)
	switch {
	case client == "":
		return auto
	case auto == "":
		return client
	default:
		return "(" + client + ") && (" + auto + ")"
	}
}

type searchResponse struct {
	Found int `json:"found"`
	Hits  []struct {
		TextMatch json.Number `json:"text_match"`
		Document  struct {
			ID string `json:"id"`
		} `json:"document"`
	} `json:"hits"`
}

// Search runs one keyword search and returns hits in Typesense rank
// order. mode selects the field group; filterBy may be empty.
func (c *Client) Search(ctx context.Context, q, mode, filterBy string, limit int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("query_by", QueryBy(mode))
	params.Set("query_by_weights", queryByWeights)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("page", "1")
	params.Set("num_typos", strconv.Itoa(numTypos))
	params.Set("include_fields", "id")
	if filterBy != "" {
		params.Set("filter_by", filterBy)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/documents/search?%s",
		c.baseURL, url.PathEscape(c.collection), params.Encode())

	var out searchResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("%w: lexical search: %v", apierr.ErrRetrieval, err)
	}

	hits := make([]Hit, 0, len(out.Hits))
	for _, h := range out.Hits {
		if h.Document.ID == "" {
			continue
		}
		score, _ := h.TextMatch.Float64()
		hits = append(hits, Hit{ArticleID: h.Document.ID, TextMatch: score})
	}
	return hits, nil
}

// collectionSchema is the create-collection request body.
type collectionSchema struct {
	Name                string            `json:"name"`
	Fields              []collectionField `json:"fields"`
	DefaultSortingField string            `json:"default_sorting_field"`
}

type collectionField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Facet    bool   `json:"facet,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// EnsureCollection creates the article collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(c.collection))
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to check collection %s: %w", c.collection, err)
	}

	schema := collectionSchema{
		Name: c.collection,
		Fields: []collectionField{
			{Name: "title_hi", Type: "string"},
			{Name: "summary_hi", Type: "string", Optional: true},
			{Name: "content_hi", Type: "string", Optional: true},
			{Name: "title_roman_norm", Type: "string"},
			{Name: "summary_roman_norm", Type: "string", Optional: true},
			{Name: "content_roman_norm", Type: "string", Optional: true},
			{Name: "categories_norm", Type: "string[]", Facet: true},
			{Name: "tags_norm", Type: "string[]", Facet: true},
			{Name: "locations_norm", Type: "string[]", Facet: true},
			{Name: "contributors_norm", Type: "string[]", Facet: true},
			{Name: "article_type", Type: "string", Facet: true, Optional: true},
			{Name: "multimedia_type", Type: "string", Facet: true, Optional: true},
			{Name: "partner_label", Type: "string", Facet: true, Optional: true},
			{Name: "published_ts", Type: "int64"},
			{Name: "published_date", Type: "string", Optional: true},
		},
		DefaultSortingField: "published_ts",
	}
	body, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal collection schema: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/collections", body, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.collection, err)
	}
	return nil
}

// importResult is one line of the JSONL import response.
type importResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ImportDocuments upserts documents via the bulk import endpoint and
// fails on the first rejected row.
func (c *Client) ImportDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("failed to encode document %s: %w", d.ID, err)
		}
	}

	endpoint := fmt.Sprintf("%s/collections/%s/documents/import?action=upsert",
		c.baseURL, url.PathEscape(c.collection))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create import request: %w", err)
	}
	req.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("import request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read import response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("import returned status %d: %s", resp.StatusCode, string(raw))
	}

	for i, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var r importResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if !r.Success {
			return fmt.Errorf("document %s rejected: %s", docs[i].ID, r.Error)
		}
	}
	return nil
}

// Health pings the node.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, nil); err != nil {
		return fmt.Errorf("typesense health check failed: %w", err)
	}
	return nil
}

// statusError preserves the HTTP status for callers that branch on it.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*statusError)
	return ok && se.status == code
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
