package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const maxCoverBytes = 10 << 20

// Cover is a downloaded album image
type Cover struct {
	Data []byte
	MIME string
}

// CoverCache fetches album art once per URL
type CoverCache struct {
	mu      sync.Mutex
	client  *http.Client
	entries map[string]*Cover
	limit   int
}

// NewCoverCache creates a cache holding at most limit images
func NewCoverCache(limit int) *CoverCache {
	if limit <= 0 {
		limit = 32
	}
	return &CoverCache{
		client:  &http.Client{Timeout: 30 * time.Second},
		entries: make(map[string]*Cover),
		limit:   limit,
	}
}

// Fetch returns the image at url, downloading it on first use
func (c *CoverCache) Fetch(ctx context.Context, url string) (*Cover, error) {
	if url == "" {
		return nil, fmt.Errorf("no cover url")
	}

	c.mu.Lock()
	if cover, ok := c.entries[url]; ok {
		c.mu.Unlock()
		return cover, nil
	}
	c.mu.Unlock()

	cover, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.limit {
		// reset when full
		c.entries = make(map[string]*Cover)
	}
	c.entries[url] = cover
	return cover, nil
}

func (c *CoverCache) download(ctx context.Context, url string) (*Cover, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cover request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover request failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read cover: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return &Cover{Data: data, MIME: mime}, nil
}

// Len returns the number of cached images
func (c *CoverCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
