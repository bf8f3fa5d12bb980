package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	appLog "notioncal/internal/log"
)

const (
	// pageSize is the largest page Notion accepts on list endpoints.
	pageSize = 100

	// maxRateLimitRetries bounds retries after a 429.
	maxRateLimitRetries = 3

	// defaultRetryAfter applies when a 429 carries no Retry-After header.
	defaultRetryAfter = time.Second

	titlePropertyID = "title"

	headerAuthorization = "Authorization"
	headerVersion       = "Notion-Version"
	headerContentType   = "Content-Type"
	headerRetryAfter    = "Retry-After"
)

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds what the client needs to talk to the API.
type Config struct {
	APIKey  string
	Version string
	// BaseURL without trailing slash, e.g. "https://api.notion.com/v1".
	BaseURL string
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Client is an authenticated, versioned Notion API client covering the two
// calls the sync needs: database query and title property retrieval.
type Client struct {
	cfg     Config
	http    HTTPClient
	limiter *rate.Limiter
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// QueryDatabase returns every page of the database, following
// next_cursor until has_more is false.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string) ([]Page, error) {
	path := "/databases/" + url.PathEscape(databaseID) + "/query"

	var pages []Page
	cursor := ""
	for {
		var resp listResponse[Page]
		body := queryRequest{PageSize: pageSize, StartCursor: cursor}
		if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
			return nil, fmt.Errorf("query database %s: %w", databaseID, err)
		}
		pages = append(pages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}

	appLog.Debug("notion database queried", "database", databaseID, "pages", len(pages))
	return pages, nil
}

// TitleSegments returns the rich text segments of a page's title property,
// across all pages of the property item list.
func (c *Client) TitleSegments(ctx context.Context, pageID string) ([]RichText, error) {
	path := "/pages/" + url.PathEscape(pageID) + "/properties/" + titlePropertyID

	var segments []RichText
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}

		var resp listResponse[PropertyItem]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, fmt.Errorf("fetch title of page %s: %w", pageID, err)
		}
		for _, item := range resp.Results {
			if item.Title == nil {
				continue
			}
			segments = append(segments, *item.Title)
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}

	return segments, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set(headerAuthorization, "Bearer "+c.cfg.APIKey)
		req.Header.Set(headerVersion, c.cfg.Version)
		req.Header.Set(headerContentType, "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("perform request: %w", err)
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			wait := retryAfter(resp.Header.Get(headerRetryAfter))
			appLog.Info("notion rate limited; backing off", "path", path, "wait", wait.String(), "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeAPIError(resp.StatusCode, data)
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil
	}
}

func decodeAPIError(status int, data []byte) error {
	// Non-JSON error bodies (proxies, gateways) still yield a status.
	apiErr := &APIError{}
	_ = json.Unmarshal(data, apiErr)
	apiErr.Status = status
	return apiErr
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
