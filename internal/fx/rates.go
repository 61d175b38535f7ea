// Package fx provides the base-to-display currency exchange rate.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

const (
	// DefaultTTL is how long a fetched rate is reused without refetching.
	DefaultTTL = time.Hour
	// DefaultURL is the public rate endpoint.
	DefaultURL = "https://api.exchangerate.host/latest"
)

// DefaultRate is used when no rate has ever been fetched.
var DefaultRate = decimal.RequireFromString("1.25")

// CacheEntry is the persisted rate.
type CacheEntry struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt int64           `json:"ts"`
}

// Provider resolves the exchange rate from cache, the remote endpoint, the
// last cached value, or DefaultRate, in that order. Rate never fails.
type Provider struct {
	endpoint    string
	base        string
	symbol      string
	ttl         time.Duration
	defaultRate decimal.Decimal
	httpClient  *http.Client
	store       *storage.Store
	logger      *zap.Logger
	nowFunc     func() time.Time

	mu sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the rate endpoint.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// WithTTL overrides the cache lifetime.
func WithTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithDefaultRate overrides the last-resort rate.
func WithDefaultRate(r decimal.Decimal) Option {
	return func(p *Provider) {
		if r.IsPositive() {
			p.defaultRate = r
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithLogger sets the logger for degraded lookups.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider returns a provider converting base into symbol, caching in store.
func NewProvider(store *storage.Store, base, symbol string, opts ...Option) *Provider {
	p := &Provider{
		endpoint:    DefaultURL,
		base:        base,
		symbol:      symbol,
		ttl:         DefaultTTL,
		defaultRate: DefaultRate,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		store:       store,
		logger:      zap.NewNop(),
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Symbol is the display currency.
func (p *Provider) Symbol() string { return p.symbol }

// Rate returns a usable rate, possibly stale.
func (p *Provider) Rate(ctx context.Context) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	var cached CacheEntry
	hasCache := p.store.Load(ctx, storage.KeyFXRate, &cached) && cached.Rate.IsPositive()

	now := p.nowFunc()
	if hasCache && now.Sub(time.UnixMilli(cached.FetchedAt)) < p.ttl {
		return cached.Rate
	}

	rate, err := p.fetch(ctx)
	if err == nil {
		entry := CacheEntry{Rate: rate, FetchedAt: now.UnixMilli()}
		if err := p.store.Save(ctx, storage.KeyFXRate, entry); err != nil {
			p.logger.Warn("caching exchange rate", zap.Error(err))
		}
		return rate
	}

	p.logger.Warn("exchange rate fetch failed", zap.Error(err), zap.Bool("have_cached", hasCache))
	if hasCache {
		return cached.Rate
	}
	return p.defaultRate
}

func (p *Provider) fetch(ctx context.Context) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("base", p.base)
	q.Set("symbols", p.symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, storefront.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, storefront.NewAPIError(resp, body)
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decoding response: %w", err)
	}

	rate, ok := payload.Rates[p.symbol]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("no positive %s rate in response", p.symbol)
	}
	return rate, nil
}
