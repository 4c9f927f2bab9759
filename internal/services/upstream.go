package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"marketbrief/backend-go/internal/models"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodyBytes     = 4 << 20
)

var (
	ErrIncomplete      = errors.New("incomplete row set")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrNoSources       = errors.New("no live sources")
	ErrUnknownCategory = errors.New("unknown category")
)

// Source fetches the full row set of one category from one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Row, error)
}

type UpstreamError struct {
	Source string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d", e.Source, e.Status)
}

// getBody performs a GET with a browser user agent and returns the body
// decoded to UTF-8. Non-2xx responses become *UpstreamError.
func getBody(ctx context.Context, hc *http.Client, source, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", source, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	res, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &UpstreamError{Source: source, Status: res.StatusCode, Body: string(snippet)}
	}

	r, err := charset.NewReader(io.LimitReader(res.Body, maxBodyBytes), res.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%s: decode charset: %w", source, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", source, err)
	}
	return body, nil
}

// validateRows enforces the all-or-nothing invariant of a category payload.
func validateRows(rows []models.Row, expected int) error {
	if len(rows) != expected {
		return fmt.Errorf("%w: got %d rows, want %d", ErrIncomplete, len(rows), expected)
	}
	for _, r := range rows {
		if r.Value == "" {
			return fmt.Errorf("%w: empty value for %q", ErrIncomplete, r.Label)
		}
	}
	return nil
}

type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *circuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, now: now}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.threshold <= 0 || c.failures < c.threshold {
		return true
	}
	if c.now().Sub(c.openedAt) > c.cooldown {
		c.failures = 0
		c.openedAt = time.Time{}
		return true
	}
	return false
}

func (c *circuitBreaker) success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openedAt = time.Time{}
}

func (c *circuitBreaker) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.threshold > 0 && c.failures >= c.threshold {
		c.openedAt = c.now()
	}
}
