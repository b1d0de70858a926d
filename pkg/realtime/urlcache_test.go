package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	calls atomic.Int64
	url   string
	delay time.Duration
}

func (s *countingSource) FetchURL(ctx context.Context) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.url, nil
}

func TestURLCache_ReusesWithinTTL(t *testing.T) {
	src := &countingSource{url: "wss://example.test/session"}
	cache := newURLCache(src, time.Minute)

	base := time.Unix(1_700_000_000, 0)
	now := base
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		url, err := cache.get(context.Background())
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if url != src.url {
			t.Fatalf("get %d = %q, want %q", i, url, src.url)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}

	now = base.Add(61 * time.Second)
	if _, err := cache.get(context.Background()); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("fetches after expiry = %d, want 2", got)
	}
}

func TestURLCache_ConcurrentGetsShareOneFetch(t *testing.T) {
	src := &countingSource{url: "wss://example.test/session", delay: 50 * time.Millisecond}
	cache := newURLCache(src, time.Minute)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.get(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestURLCache_InvalidateForcesRefetch(t *testing.T) {
	src := &countingSource{url: "wss://example.test/session"}
	cache := newURLCache(src, time.Minute)

	if _, err := cache.get(context.Background()); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.invalidate()
	if _, err := cache.get(context.Background()); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestSignedURLSource_FetchURL(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signed_url":"wss://example.test/signed?tok=abc"}`))
	}))
	defer srv.Close()

	src := &SignedURLSource{Endpoint: srv.URL, APIKey: "sk-test"}
	url, err := src.FetchURL(context.Background())
	if err != nil {
		t.Fatalf("FetchURL: %v", err)
	}
	if url != "wss://example.test/signed?tok=abc" {
		t.Fatalf("url = %q", url)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("authorization = %q, want bearer token", gotAuth)
	}
}

func TestSignedURLSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	src := &SignedURLSource{Endpoint: srv.URL}
	if _, err := src.FetchURL(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
