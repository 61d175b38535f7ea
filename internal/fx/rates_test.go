package fx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

func rateServer(t *testing.T, body string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Query().Get("base") != "GBP" || r.URL.Query().Get("symbols") != "USD" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestProvider(t *testing.T, endpoint string, now time.Time) (*Provider, *storage.Store) {
	t.Helper()
	store := storage.New(storage.NewMemoryBackend(), "buyer", nil)
	p := NewProvider(store, "GBP", "USD", WithEndpoint(endpoint), WithLogger(zaptest.NewLogger(t)))
	p.nowFunc = func() time.Time { return now }
	return p, store
}

func TestRateFetchesAndCaches(t *testing.T) {
	server, hits := rateServer(t, `{"rates":{"USD":1.31}}`, http.StatusOK)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p, store := newTestProvider(t, server.URL, now)

	rate := p.Rate(context.Background())
	if !rate.Equal(decimal.RequireFromString("1.31")) {
		t.Fatalf("expected 1.31, got %s", rate)
	}

	var entry CacheEntry
	if !store.Load(context.Background(), storage.KeyFXRate, &entry) {
		t.Fatal("expected cached entry")
	}
	if entry.FetchedAt != now.UnixMilli() {
		t.Errorf("fetchedAt = %d, want %d", entry.FetchedAt, now.UnixMilli())
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected 1 fetch, got %d", *hits)
	}
}

func TestFreshCacheSkipsFetch(t *testing.T) {
	server, hits := rateServer(t, `{"rates":{"USD":2}}`, http.StatusOK)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p, store := newTestProvider(t, server.URL, now)

	store.Save(context.Background(), storage.KeyFXRate, CacheEntry{
		Rate:      decimal.RequireFromString("1.27"),
		FetchedAt: now.Add(-59 * time.Minute).UnixMilli(),
	})

	if rate := p.Rate(context.Background()); !rate.Equal(decimal.RequireFromString("1.27")) {
		t.Errorf("expected cached 1.27, got %s", rate)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("fresh cache should not fetch, got %d hits", *hits)
	}
}

func TestStaleCacheRefetches(t *testing.T) {
	server, hits := rateServer(t, `{"rates":{"USD":1.4}}`, http.StatusOK)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p, store := newTestProvider(t, server.URL, now)

	store.Save(context.Background(), storage.KeyFXRate, CacheEntry{
		Rate:      decimal.RequireFromString("1.27"),
		FetchedAt: now.Add(-61 * time.Minute).UnixMilli(),
	})

	if rate := p.Rate(context.Background()); !rate.Equal(decimal.RequireFromString("1.4")) {
		t.Errorf("expected refreshed 1.4, got %s", rate)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("stale cache should fetch once, got %d hits", *hits)
	}
}

func TestFailureFallsBackToStaleCache(t *testing.T) {
	server, hits := rateServer(t, `oops`, http.StatusBadGateway)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p, store := newTestProvider(t, server.URL, now)

	store.Save(context.Background(), storage.KeyFXRate, CacheEntry{
		Rate:      decimal.RequireFromString("1.19"),
		FetchedAt: now.Add(-48 * time.Hour).UnixMilli(),
	})

	if rate := p.Rate(context.Background()); !rate.Equal(decimal.RequireFromString("1.19")) {
		t.Errorf("expected stale 1.19, got %s", rate)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected a fetch attempt, got %d", *hits)
	}
}

func TestFailureWithoutCacheUsesDefault(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"server error", "", http.StatusInternalServerError},
		{"bad json", "{", http.StatusOK},
		{"missing symbol", `{"rates":{"EUR":1.1}}`, http.StatusOK},
		{"zero rate", `{"rates":{"USD":0}}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := rateServer(t, tt.body, tt.status)
			p, _ := newTestProvider(t, server.URL, time.Now())

			if rate := p.Rate(context.Background()); !rate.Equal(DefaultRate) {
				t.Errorf("expected default %s, got %s", DefaultRate, rate)
			}
		})
	}
}

func TestUnreachableEndpointUsesConfiguredDefault(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	store := storage.New(storage.NewMemoryBackend(), "", nil)
	p := NewProvider(store, "GBP", "USD", WithEndpoint(addr), WithDefaultRate(decimal.RequireFromString("1.3")))

	if rate := p.Rate(context.Background()); !rate.Equal(decimal.RequireFromString("1.3")) {
		t.Errorf("expected 1.3, got %s", rate)
	}
}

func TestFetchErrorsAreClassified(t *testing.T) {
	server, _ := rateServer(t, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	p, _ := newTestProvider(t, server.URL, time.Now())

	_, err := p.fetch(context.Background())
	var apiErr *storefront.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests || apiErr.Message != "quota exceeded" {
		t.Errorf("expected API error with status 429, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	p, _ = newTestProvider(t, closed.URL, time.Now())

	if _, err := p.fetch(context.Background()); !errors.Is(err, storefront.ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(slow.Close)
	p, _ = newTestProvider(t, slow.URL, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.fetch(ctx); !errors.Is(err, storefront.ErrTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
}
