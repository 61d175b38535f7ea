// Package storefront is the HTTP client for the shop's catalog, order and
// payment endpoints.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultAPIPrefix    = "/api"
	defaultCountriesURL = "https://restcountries.com/v3.1/all"
	countriesStaticPath = "/static/data/countries.json"

	headerCSRF        = "X-CSRF-Token"
	headerIdempotency = "X-Idempotency-Key"
)

// Client talks to the storefront. baseURL is the site origin; catalog and
// order endpoints live under the API prefix, payment and static files at the
// origin root.
type Client struct {
	baseURL      string
	apiPrefix    string
	csrfToken    string
	countriesURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithAPIPrefix overrides the "/api" prefix.
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *Client) {
		c.apiPrefix = prefix
	}
}

// WithCSRFToken sets the token sent on order writes.
func WithCSRFToken(token string) ClientOption {
	return func(c *Client) {
		c.csrfToken = token
	}
}

// WithCountriesURL overrides the remote country list endpoint.
func WithCountriesURL(u string) ClientOption {
	return func(c *Client) {
		c.countriesURL = u
	}
}

// WithLogger sets the logger used for degraded reads.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new storefront client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiPrefix:    defaultAPIPrefix,
		countriesURL: defaultCountriesURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + c.apiPrefix + path
}

func (c *Client) siteURL(path string) string {
	return c.baseURL + path
}

// ============================================
// Catalog
// ============================================

// ListProducts fetches the full product list.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL("/products"), nil, nil, &products); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// SimilarProducts fetches products related to productID.
func (c *Client) SimilarProducts(ctx context.Context, productID string) ([]Product, error) {
	q := url.Values{}
	q.Set("product_id", productID)

	var products []Product
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL("/products/similar?"+q.Encode()), nil, nil, &products); err != nil {
		return nil, fmt.Errorf("fetching similar products: %w", err)
	}
	return products, nil
}

// ProductByID fetches a single product with its thumbnails.
func (c *Client) ProductByID(ctx context.Context, productID string) (*Product, error) {
	q := url.Values{}
	q.Set("product_id", productID)

	var p Product
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL("/product_by_id?"+q.Encode()), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("fetching product %s: %w", productID, err)
	}
	return &p, nil
}

// ProductBySlug fetches a product by brand and product name as they appear
// in the site's URLs, where spaces are written as underscores.
func (c *Client) ProductBySlug(ctx context.Context, brand, product string) (*Product, error) {
	endpoint := fmt.Sprintf("/products/%s/%s", url.PathEscape(Slug(brand)), url.PathEscape(Slug(product)))

	var p Product
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL(endpoint), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("fetching product %s/%s: %w", brand, product, err)
	}
	return &p, nil
}

// Slug replaces spaces with underscores.
func Slug(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

// CheckoutDiscount returns the automatic site-wide discount percent.
func (c *Client) CheckoutDiscount(ctx context.Context) (decimal.Decimal, error) {
	var setting DiscountSetting
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL("/settings/checkout_discount"), nil, nil, &setting); err != nil {
		return decimal.Zero, fmt.Errorf("fetching checkout discount: %w", err)
	}
	return setting.Percent, nil
}

// Coupons returns the active promo codes.
func (c *Client) Coupons(ctx context.Context) ([]Coupon, error) {
	var coupons []Coupon
	if err := c.doRequest(ctx, http.MethodGet, c.apiURL("/coupons"), nil, nil, &coupons); err != nil {
		return nil, fmt.Errorf("fetching coupons: %w", err)
	}
	return coupons, nil
}

// ============================================
// Orders
// ============================================

// CreateOrder posts a single-line order. idempotencyKey lets the server
// recognise a duplicate delivery of the same submission.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) error {
	h := c.writeHeaders()
	if idempotencyKey != "" {
		h.Set(headerIdempotency, idempotencyKey)
	}
	if err := c.doRequest(ctx, http.MethodPost, c.apiURL("/orders"), req, h, nil); err != nil {
		return fmt.Errorf("creating order for %s: %w", req.ProductID, err)
	}
	return nil
}

// LogOrderAttempt records a checkout attempt for analytics.
func (c *Client) LogOrderAttempt(ctx context.Context, attempt OrderAttempt) error {
	if err := c.doRequest(ctx, http.MethodPost, c.apiURL("/order-attempts"), attempt, c.writeHeaders(), nil); err != nil {
		return fmt.Errorf("logging order attempt: %w", err)
	}
	return nil
}

func (c *Client) writeHeaders() http.Header {
	h := http.Header{}
	if c.csrfToken != "" {
		h.Set(headerCSRF, c.csrfToken)
	}
	return h
}

// ============================================
// Payments
// ============================================

// CreatePaymentOrder asks the server to open an order with the payment provider.
func (c *Client) CreatePaymentOrder(ctx context.Context, req CreatePaymentOrderRequest) (*PaymentOrder, error) {
	var order PaymentOrder
	if err := c.doRequest(ctx, http.MethodPost, c.siteURL("/paypal/create-paypal-order"), req, nil, &order); err != nil {
		return nil, fmt.Errorf("creating payment order: %w", err)
	}
	return &order, nil
}

// CapturePaymentOrder completes an order the buyer has approved.
func (c *Client) CapturePaymentOrder(ctx context.Context, req CapturePaymentRequest) (*CaptureResult, error) {
	var result CaptureResult
	if err := c.doRequest(ctx, http.MethodPost, c.siteURL("/paypal/capture-paypal-order"), req, nil, &result); err != nil {
		return nil, fmt.Errorf("capturing payment order %s: %w", req.OrderID, err)
	}
	return &result, nil
}

// ============================================
// Countries
// ============================================

// fallbackCountries is used when neither country source answers.
var fallbackCountries = []Country{
	{Code: "AU", Name: "Australia"},
	{Code: "CA", Name: "Canada"},
	{Code: "FR", Name: "France"},
	{Code: "DE", Name: "Germany"},
	{Code: "IE", Name: "Ireland"},
	{Code: "IT", Name: "Italy"},
	{Code: "ES", Name: "Spain"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "US", Name: "United States"},
}

// Countries returns shipping destinations sorted by name. It tries the site's
// static list, then the remote list, then a built-in short list, so it always
// returns something.
func (c *Client) Countries(ctx context.Context) []Country {
	var local []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
		Code  string `json:"code"`
		ISO   string `json:"iso"`
	}
	if err := c.doRequest(ctx, http.MethodGet, c.siteURL(countriesStaticPath), nil, nil, &local); err == nil {
		countries := make([]Country, 0, len(local))
		for _, l := range local {
			countries = append(countries, Country{Name: firstNonEmpty(l.Name, l.Label), Code: firstNonEmpty(l.Code, l.ISO)})
		}
		if out := normalizeCountries(countries); len(out) > 0 {
			return out
		}
	} else {
		c.logger.Warn("static country list unavailable", zap.Error(err))
	}

	var remote []struct {
		Name struct {
			Common   string `json:"common"`
			Official string `json:"official"`
		} `json:"name"`
		CCA2 string `json:"cca2"`
		CCA3 string `json:"cca3"`
	}
	if err := c.doRequest(ctx, http.MethodGet, c.countriesURL, nil, nil, &remote); err == nil {
		countries := make([]Country, 0, len(remote))
		for _, r := range remote {
			countries = append(countries, Country{
				Name: firstNonEmpty(r.Name.Common, r.Name.Official),
				Code: firstNonEmpty(r.CCA2, r.CCA3),
			})
		}
		if out := normalizeCountries(countries); len(out) > 0 {
			return out
		}
	} else {
		c.logger.Warn("remote country list unavailable", zap.Error(err))
	}

	out := make([]Country, len(fallbackCountries))
	copy(out, fallbackCountries)
	return out
}

func normalizeCountries(in []Country) []Country {
	seen := make(map[string]bool, len(in))
	out := make([]Country, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ============================================
// Internal HTTP Methods
// ============================================

// doRequest performs a JSON request. Transport failures wrap ErrNetwork or
// ErrTimeout; non-2xx responses return *APIError.
func (c *Client) doRequest(ctx context.Context, method, reqURL string, body interface{}, headers http.Header, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewAPIError(resp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
