package tagesschau

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

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
)

const (
	// DefaultBaseURL is the API root all named endpoints hang off.
	DefaultBaseURL   = "https://www.tagesschau.de/api2"
	defaultUserAgent = "gemini-tagesschau-mirror/1.0"
	defaultTimeout   = 30 * time.Second

	// SearchPageSize is the number of results requested per search page.
	SearchPageSize = 15
)

// Client talks to the tagesschau JSON API. Every call is a single attempt.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client is copied
// and its redirect policy overridden: redirects are never followed.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		copied.CheckRedirect = noRedirects
		c.http = &copied
	}
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client rooted at baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(trimmed, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: defaultTimeout, CheckRedirect: noRedirects},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Homepage fetches the front page news and the regional lead articles.
func (c *Client) Homepage(ctx context.Context) (Document, error) {
	return c.endpoint(ctx, "homepage", nil)
}

// News fetches the news list filtered by regions and/or topic. Empty filters
// are omitted from the request.
func (c *Client) News(ctx context.Context, regions []Region, topic Topic) (Document, error) {
	values := url.Values{}
	if len(regions) > 0 {
		ids := make([]string, 0, len(regions))
		for _, r := range regions {
			ids = append(ids, strconv.Itoa(r.ID))
		}
		values.Set("regions", strings.Join(ids, ","))
	}
	if topic != "" {
		values.Set("ressort", string(topic))
	}
	return c.endpoint(ctx, "news", values)
}

// Search fetches one page of story results for text. Pages are zero-based.
func (c *Client) Search(ctx context.Context, text string, page int) (Document, error) {
	values := url.Values{}
	values.Set("searchText", text)
	values.Set("resultPage", strconv.Itoa(page))
	values.Set("pageSize", strconv.Itoa(SearchPageSize))
	values.Set("type", "story")
	return c.endpoint(ctx, "search", values)
}

// Fetch requests a fully formed URL verbatim. Callers must have checked it
// against the whitelist.
func (c *Client) Fetch(ctx context.Context, rawURL string) (Document, error) {
	return c.get(ctx, rawURL)
}

func (c *Client) endpoint(ctx context.Context, name string, values url.Values) (Document, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + name + "/"
	if len(values) > 0 {
		u.RawQuery = values.Encode()
	}
	return c.get(ctx, u.String())
}

func (c *Client) get(ctx context.Context, rawURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "", fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "",
			fmt.Errorf("api %s redirected to %q with status %d", rawURL, resp.Header.Get("Location"), resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "",
			fmt.Errorf("api %s returned status %d", rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "", fmt.Errorf("read response: %w", err))
	}
	if err := checkObject(body); err != nil {
		return nil, apperr.Wrap(apperr.ApiRequestFailure, "", fmt.Errorf("decode response from %s: %w", rawURL, err))
	}
	return Document(body), nil
}

// noRedirects hands 3xx responses back to get, which fails them. Following
// them would let a whitelisted URL pull content from any host.
func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// checkObject verifies body holds exactly one JSON object.
func checkObject(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("response is not a json object")
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("response is not valid json")
	}
	return nil
}
