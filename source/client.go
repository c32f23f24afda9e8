// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/poiesic/doajsync/core"
)

const (
	// DefaultPageSize is the page size used when callers do not choose one.
	DefaultPageSize = 100

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "doajsync/1.0"
	maxErrorBody     = 512
)

// Page is one successful page of results.
// Records is empty when the category is exhausted; Total still carries the
// count last reported by the source.
type Page struct {
	Records []core.RawRecord
	Total   int
}

// Fetcher fetches a single page of a category.
type Fetcher interface {
	FetchPage(ctx context.Context, category core.Category, page, pageSize int) (*Page, error)
}

// Client fetches pages from the article API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient != nil {
			c.httpClient = httpClient
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		if userAgent != "" {
			c.userAgent = userAgent
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a client for the API rooted at baseURL.
// Category names are appended to baseURL as a path segment.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// pageResponse is the wire format of a page.
type pageResponse struct {
	Results []json.RawMessage `json:"results"`
	Total   int               `json:"total"`
}

// FetchPage requests one page of a category.
//
// It returns a *FetchError on transport failures, non-2xx statuses and
// undecodable bodies. An empty Records slice means the category is exhausted.
func (c *Client) FetchPage(ctx context.Context, category core.Category, page, pageSize int) (*Page, error) {
	if err := core.ValidatePageRequest(category, page, pageSize); err != nil {
		return nil, err
	}

	pageURL := c.pageURL(category, page, pageSize)
	c.logger.Info("fetching page", "url", pageURL, "category", category, "page", page)

	fail := func(status int, err error) (*Page, error) {
		c.logger.Error("failed to fetch page", "category", category, "page", page, "status", status, "err", err)
		return nil, &FetchError{Category: category, Page: page, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := decodedBody(resp)
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	defer body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return fail(resp.StatusCode, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var decoded pageResponse
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if len(decoded.Results) == 0 {
		c.logger.Info("no articles found", "category", category, "page", page)
	}

	records := make([]core.RawRecord, len(decoded.Results))
	for i, data := range decoded.Results {
		records[i] = c.decodeRecord(category, page, i, data)
	}

	return &Page{Records: records, Total: decoded.Total}, nil
}

// decodeRecord decodes one result. A record the source shaped unexpectedly
// degrades to a record carrying only its id so the rest of the page survives.
func (c *Client) decodeRecord(category core.Category, page, index int, data json.RawMessage) core.RawRecord {
	var record core.RawRecord
	err := json.Unmarshal(data, &record)
	if err == nil {
		return record
	}

	var fallback struct {
		ID core.Text `json:"id"`
	}
	_ = json.Unmarshal(data, &fallback)
	c.logger.Warn("malformed record, keeping id only",
		"category", category, "page", page, "index", index, "id", string(fallback.ID), "err", err)
	return core.RawRecord{ID: string(fallback.ID)}
}

func (c *Client) pageURL(category core.Category, page, pageSize int) string {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	return strings.TrimSuffix(c.baseURL, "/") + "/" + url.PathEscape(string(category)) + "?" + query.Encode()
}

// decodedBody unwraps the content encodings advertised in FetchPage.
// Closing the result does not close resp.Body.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, errors.New("unsupported content encoding " + resp.Header.Get("Content-Encoding"))
	}
}
