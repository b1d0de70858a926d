package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
)

const defaultSignedURLTTL = 5 * time.Minute

// URLSource produces the websocket endpoint for a connection attempt. For
// providers that hand out short-lived signed URLs this is a network call; the
// Manager wraps every source in a TTL cache so concurrent connection attempts
// share one fetch.
type URLSource interface {
	FetchURL(ctx context.Context) (string, error)
}

// StaticURL is a URLSource for providers addressed by a fixed endpoint.
type StaticURL string

func (u StaticURL) FetchURL(ctx context.Context) (string, error) {
	url := strings.TrimSpace(string(u))
	if url == "" {
		return "", core.NewInvalidRequestError("endpoint URL must not be empty")
	}
	return url, nil
}

// SignedURLSource fetches a short-lived signed websocket URL from an HTTP
// endpoint returning {"signed_url": "..."}.
type SignedURLSource struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func (s *SignedURLSource) FetchURL(ctx context.Context) (string, error) {
	if s == nil || strings.TrimSpace(s.Endpoint) == "" {
		return "", core.NewInvalidRequestError("signed URL endpoint must not be empty")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", core.NewTransportError("fetch signed URL", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", core.NewAPIError(fmt.Sprintf("signed URL endpoint returned status %d", resp.StatusCode))
	}

	var payload struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", core.NewAPIError("decode signed URL response: " + err.Error())
	}
	if strings.TrimSpace(payload.SignedURL) == "" {
		return "", core.NewAPIError("signed URL endpoint returned an empty URL")
	}
	return payload.SignedURL, nil
}

type urlFetch struct {
	done chan struct{}
	url  string
	err  error
}

// urlCache deduplicates and caches URLSource fetches. Concurrent requesters
// during a fetch share the single in-flight result; a cached URL is reused
// until its TTL expires.
type urlCache struct {
	source URLSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	url       string
	fetchedAt time.Time
	pending   *urlFetch
}

func newURLCache(source URLSource, ttl time.Duration) *urlCache {
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	return &urlCache{source: source, ttl: ttl, now: time.Now}
}

func (c *urlCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.url != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		url := c.url
		c.mu.Unlock()
		return url, nil
	}
	if c.pending != nil {
		fetch := c.pending
		c.mu.Unlock()
		select {
		case <-fetch.done:
			return fetch.url, fetch.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	fetch := &urlFetch{done: make(chan struct{})}
	c.pending = fetch
	c.mu.Unlock()

	url, err := c.source.FetchURL(ctx)

	c.mu.Lock()
	c.pending = nil
	if err == nil {
		c.url = url
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()

	fetch.url = url
	fetch.err = err
	close(fetch.done)
	return url, err
}

func (c *urlCache) invalidate() {
	c.mu.Lock()
	c.url = ""
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
