package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gridport/gridport/internal/schema"
)

// GridConfig holds the connection settings for a grid API base.
type GridConfig struct {
	BaseURL    string
	BaseID     string
	Token      string
	PageSize   int
	MaxRetries int
}

// GridClient reads a base through the grid HTTP API. Requests carry a bearer
// token; 429 and 5xx responses retry with backoff.
type GridClient struct {
	baseURL  string
	baseID   string
	token    string
	pageSize int
	http     *retryablehttp.Client

	mu     sync.Mutex
	fields map[string][]schema.FieldDefinition // schema cache, filled on first meta fetch
}

// NewGridClient creates a client for the configured base.
func NewGridClient(cfg GridConfig) *GridClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return &GridClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		baseID:   cfg.BaseID,
		token:    cfg.Token,
		pageSize: pageSize,
		http:     rc,
	}
}

var _ RecordSource = (*GridClient)(nil)

type wireField struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options"`
}

type wireTable struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Fields []wireField `json:"fields"`
}

type tablesResponse struct {
	Tables []wireTable `json:"tables"`
}

type recordsResponse struct {
	Records []struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	} `json:"records"`
	Offset string `json:"offset"`
}

// ListTables fetches the base's table metadata, including field schemas.
func (c *GridClient) ListTables(ctx context.Context) ([]schema.Table, error) {
	var resp tablesResponse
	path := fmt.Sprintf("/v0/meta/bases/%s/tables", url.PathEscape(c.baseID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, &SourceError{Err: err}
	}

	tables := make([]schema.Table, 0, len(resp.Tables))
	cache := make(map[string][]schema.FieldDefinition, len(resp.Tables))
	for _, wt := range resp.Tables {
		t := schema.Table{ID: wt.ID, Name: wt.Name}
		for _, wf := range wt.Fields {
			t.Fields = append(t.Fields, schema.FieldDefinition{
				Name:      wf.Name,
				Type:      schema.FieldType(wf.Type),
				Options:   wf.Options,
				TableName: wt.Name,
			})
		}
		tables = append(tables, t)
		cache[wt.Name] = t.Fields
	}

	c.mu.Lock()
	c.fields = cache
	c.mu.Unlock()

	return tables, nil
}

// ListFields returns the field schema of one table. The meta response covers
// the whole base, so the first call caches every table's fields.
func (c *GridClient) ListFields(ctx context.Context, table string) ([]schema.FieldDefinition, error) {
	c.mu.Lock()
	cached, ok := c.fields[table]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if _, err := c.ListTables(ctx); err != nil {
		return nil, &SourceError{Table: table, Err: err}
	}

	c.mu.Lock()
	cached, ok = c.fields[table]
	c.mu.Unlock()
	if !ok {
		return nil, &SourceError{Table: table, Err: fmt.Errorf("table not present in base %s", c.baseID)}
	}
	return cached, nil
}

// PageRecords fetches one page of a table's records. Pass an empty cursor
// for the first page; the returned cursor is opaque.
func (c *GridClient) PageRecords(ctx context.Context, table, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("pageSize", fmt.Sprint(c.pageSize))
	if cursor != "" {
		query.Set("offset", cursor)
	}

	var resp recordsResponse
	path := fmt.Sprintf("/v0/%s/%s", url.PathEscape(c.baseID), url.PathEscape(table))
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, &SourceError{Table: table, Err: err}
	}

	page := &Page{NextCursor: resp.Offset}
	for _, r := range resp.Records {
		page.Records = append(page.Records, schema.RawRecord{ID: r.ID, Fields: r.Fields})
	}
	return page, nil
}

func (c *GridClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
