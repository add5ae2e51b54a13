// Package collysearch implements the keyword search client using gocolly.
package collysearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// Config controls collector behavior.
type Config struct {
	// BaseURL is the JSON search endpoint, without query parameters.
	BaseURL   string
	UserAgent string
	// Cookie is the raw Cookie header carrying the authenticated session.
	Cookie  string
	Timeout time.Duration
}

// Client implements archiver.SearchClient against the board search endpoint.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse search base url: %w", err)
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Client{cfg: cfg, baseCollector: c}, nil
}

// Search fetches and decodes one page of results.
func (c *Client) Search(ctx context.Context, req archiver.SearchRequest) (archiver.SearchResult, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return archiver.SearchResult{}, err
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		if c.cfg.Cookie != "" {
			r.Headers.Set("Cookie", c.cfg.Cookie)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return archiver.SearchResult{}, err
	}
	if status != http.StatusOK {
		return archiver.SearchResult{}, fmt.Errorf("search endpoint returned status %d", status)
	}

	var result archiver.SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return archiver.SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	return result, nil
}

func (c *Client) buildURL(req archiver.SearchRequest) (string, error) {
	if req.Cafe.ID == "" {
		return "", fmt.Errorf("cafe id is required")
	}
	if req.Keyword == "" {
		return "", fmt.Errorf("keyword is required")
	}
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse search base url: %w", err)
	}
	q := u.Query()
	q.Set("cafeId", req.Cafe.ID)
	q.Set("query", req.Keyword)
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("perPage", strconv.Itoa(req.PageSize))
	// Newest-first ordering is part of the endpoint contract; pagination
	// and date-range filtering assume it.
	q.Set("sortBy", "date")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("search canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("search visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("search response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
