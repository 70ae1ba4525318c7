// Package sdk fetches the tracker SDK once per test session and lays out the
// per-test content root the content double serves.
package sdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxSDKSize guards against a misconfigured URL streaming something huge.
const maxSDKSize = 16 << 20

// Cache holds the SDK source for the lifetime of a test session. The first
// Get fetches; every later Get returns the same bytes or the same error, since
// a failed fetch is fatal to the whole session.
type Cache struct {
	url    string
	client *http.Client
	log    *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	done   bool
	source []byte
	err    error
}

// NewCache returns a cache for the SDK at url. A nil client uses a client
// with a 30s timeout.
func NewCache(url string, client *http.Client, log *zap.Logger) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{url: url, client: client, log: log}
}

// URL returns the SDK location.
func (c *Cache) URL() string {
	return c.url
}

// Get returns the SDK source, fetching it on first use.
func (c *Cache) Get(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.done {
		src, err := c.source, c.err
		c.mu.Unlock()
		return src, err
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(c.url, func() (interface{}, error) {
		c.mu.Lock()
		if c.done {
			src, err := c.source, c.err
			c.mu.Unlock()
			return src, err
		}
		c.mu.Unlock()

		src, err := c.fetch(ctx)

		c.mu.Lock()
		c.done, c.source, c.err = true, src, err
		c.mu.Unlock()
		return src, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch tracker sdk: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tracker sdk from %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tracker sdk from %s: unexpected status %s", c.url, resp.Status)
	}

	src, err := io.ReadAll(io.LimitReader(resp.Body, maxSDKSize+1))
	if err != nil {
		return nil, fmt.Errorf("read tracker sdk: %w", err)
	}
	if len(src) > maxSDKSize {
		return nil, fmt.Errorf("tracker sdk at %s exceeds %d bytes", c.url, maxSDKSize)
	}

	c.log.Info("fetched tracker sdk",
		zap.String("url", c.url),
		zap.Int("bytes", len(src)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return src, nil
}
