// Package sourceapi is the read-only client for the source's daily index
// and per-article HTML endpoints. Fetching is built on Colly; parsing HTML
// to markdown is delegated to an injected HTMLToMarkdown so this package
// stays a pure fetch client.
package sourceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// IndexEntry is one article as listed in a day's index JSON.
type IndexEntry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Categories  []string  `json:"categories"`
}

// HTMLToMarkdown converts a fetched article page into title + markdown
// body. The production parser for the source's exact page dialect is an
// external collaborator; DefaultHTMLToMarkdown is a goquery-based
// reference implementation good enough to drive tests and a standalone
// deployment.
type HTMLToMarkdown interface {
	Convert(html string) (title, markdown string, err error)
}

// Client fetches daily indices and article HTML from the source, retrying
// transient network/HTTP failures with backoff.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	timeout    time.Duration
}

// New creates a Client. baseURL is the source's API root, e.g.
// "https://www.crhoy.com".
func New(baseURL string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "crhoy-pipeline/1.0",
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

func (c *Client) newCollector() *colly.Collector {
	col := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.AllowURLRevisit(),
	)
	_ = col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       500 * time.Millisecond,
	})
	col.SetRequestTimeout(c.timeout)
	return col
}

// fetch retrieves raw bytes from url, retrying up to maxRetries times with
// linear backoff on transient failure.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("sourceapi: fetch %s after %d retries: %w", url, c.maxRetries, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	col := c.newCollector()

	var (
		mu       sync.Mutex
		body     []byte
		fetchErr error
		status   int
	)

	col.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	col.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := col.Visit(url); err != nil {
			mu.Lock()
			if fetchErr == nil {
				fetchErr = err
			}
			mu.Unlock()
		}
		col.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return nil, fmt.Errorf("status %d: %w", status, fetchErr)
	}
	if status != 0 && status >= 400 {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return body, nil
}

// Probe checks that the source site is reachable at all, with a single
// non-retried request. Services call it at the top of each cycle and skip
// the cycle when it fails, so an outage shows up as one warning per cycle
// instead of a burst of per-item retry noise.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.fetchOnce(ctx, c.baseURL+"/"); err != nil {
		return fmt.Errorf("sourceapi: probe: %w", err)
	}
	return nil
}

// DailyIndex fetches and decodes the day's index. The index endpoint's
// path mirrors the local metadata layout (YYYY/MM/DD).
func (c *Client) DailyIndex(ctx context.Context, date time.Time) ([]IndexEntry, error) {
	url := fmt.Sprintf("%s/api/index/%04d/%02d/%02d", c.baseURL, date.Year(), date.Month(), date.Day())
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("sourceapi: daily index %s: %w", date.Format("2006-01-02"), err)
	}

	var entries []IndexEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("sourceapi: decode daily index %s: %w", date.Format("2006-01-02"), err)
	}
	return entries, nil
}

// ArticleHTML fetches the raw HTML for a single article URL.
func (c *Client) ArticleHTML(ctx context.Context, articleURL string) (string, error) {
	body, err := c.fetch(ctx, articleURL)
	if err != nil {
		return "", fmt.Errorf("sourceapi: article html %s: %w", articleURL, err)
	}
	return string(body), nil
}

// FetchAndConvert fetches an article's HTML and converts it to markdown
// via conv.
func (c *Client) FetchAndConvert(ctx context.Context, articleURL string, conv HTMLToMarkdown) (title, markdown string, err error) {
	html, err := c.ArticleHTML(ctx, articleURL)
	if err != nil {
		return "", "", err
	}
	title, markdown, err = conv.Convert(html)
	if err != nil {
		return "", "", fmt.Errorf("sourceapi: convert %s: %w", articleURL, err)
	}
	return title, markdown, nil
}
