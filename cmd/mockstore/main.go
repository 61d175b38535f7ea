// Package main implements a mock storefront API for local development.
package main

import (
	"embed"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

//go:embed testdata/*
var testdataFS embed.FS

type server struct {
	logger *zap.Logger

	// raw keeps the upstream field names so clients exercise normalization.
	raw       []json.RawMessage
	products  []storefront.Product
	coupons   json.RawMessage
	countries json.RawMessage

	discount    string
	failProduct string
	csrfToken   string
	failPayPal  bool
	addr        string

	mu       sync.Mutex
	seen     map[string]bool
	payments map[string][]storefront.PaymentItem
}

func main() {
	logger, err := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	addr := getEnv("MOCKSTORE_ADDR", ":18080")
	s, err := newServer(logger, addr)
	if err != nil {
		logger.Fatal("Failed to load testdata", zap.Error(err))
	}

	logger.Info("Mock storefront listening",
		zap.String("addr", addr),
		zap.Int("products", len(s.products)),
		zap.String("fail_product", s.failProduct))
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func newServer(logger *zap.Logger, addr string) (*server, error) {
	s := &server{
		logger:      logger,
		discount:    getEnv("MOCKSTORE_DISCOUNT", "5"),
		failProduct: os.Getenv("MOCKSTORE_FAIL_PRODUCT"),
		csrfToken:   os.Getenv("MOCKSTORE_CSRF_TOKEN"),
		failPayPal:  os.Getenv("MOCKSTORE_PAYPAL_FAIL_AUTH") != "",
		addr:        addr,
		seen:        make(map[string]bool),
		payments:    make(map[string][]storefront.PaymentItem),
	}

	data, err := testdataFS.ReadFile("testdata/products.json")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.products); err != nil {
		return nil, err
	}
	if s.coupons, err = testdataFS.ReadFile("testdata/coupons.json"); err != nil {
		return nil, err
	}
	if s.countries, err = testdataFS.ReadFile("testdata/countries.json"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", s.handleProducts)
	mux.HandleFunc("/api/products/", s.handleProductPath)
	mux.HandleFunc("/api/product_by_id", s.handleProductByID)
	mux.HandleFunc("/api/settings/checkout_discount", s.handleDiscount)
	mux.HandleFunc("/api/coupons", s.handleCoupons)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/order-attempts", s.handleOrderAttempts)
	mux.HandleFunc("/paypal/create-paypal-order", s.handleCreatePayPal)
	mux.HandleFunc("/paypal/capture-paypal-order", s.handleCapturePayPal)
	mux.HandleFunc("/static/data/countries.json", s.handleCountries)
	return mux
}

func (s *server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.raw)
}

// handleProductPath serves /api/products/similar and /api/products/{brand}/{product}.
func (s *server) handleProductPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/products/"), "/")
	if path == "similar" {
		s.handleSimilar(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	for i, p := range s.products {
		if strings.EqualFold(storefront.Slug(p.Brand), parts[0]) && strings.EqualFold(storefront.Slug(p.Title), parts[1]) {
			writeJSON(w, http.StatusOK, s.raw[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "product not found")
}

// handleSimilar returns other products of the same brand.
func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("product_id")
	brand := ""
	for _, p := range s.products {
		if p.ID == id {
			brand = p.Brand
		}
	}

	similar := []json.RawMessage{}
	for i, p := range s.products {
		if p.ID != id && brand != "" && p.Brand == brand {
			similar = append(similar, s.raw[i])
		}
	}
	writeJSON(w, http.StatusOK, similar)
}

func (s *server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("product_id")
	for i, p := range s.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, s.raw[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "product not found")
}

func (s *server) handleDiscount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"percent":` + s.discount + `}`))
}

func (s *server) handleCoupons(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.coupons)
}

func (s *server) handleCountries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.countries)
}

func (s *server) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if s.csrfToken != "" && r.Header.Get("X-CSRF-Token") != s.csrfToken {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><body><h1>Forbidden</h1><p>The CSRF token is missing.</p></body></html>"))
		return false
	}
	return true
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.checkCSRF(w, r) {
		return
	}

	var req storefront.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order payload")
		return
	}
	if req.ProductID == "" || req.CustomerEmail == "" || req.CustomerCountry == "" {
		writeError(w, http.StatusBadRequest, "product_id, customer_email and customer_country are required")
		return
	}
	if req.ProductID == s.failProduct {
		writeError(w, http.StatusConflict, "product "+req.ProductID+" is out of stock")
		return
	}

	key := r.Header.Get("X-Idempotency-Key") + "/" + req.ProductID
	s.mu.Lock()
	duplicate := s.seen[key]
	s.seen[key] = true
	s.mu.Unlock()

	s.logger.Info("Order received",
		zap.String("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.String("payment_method", req.PaymentMethod),
		zap.Bool("duplicate", duplicate))
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "duplicate": duplicate})
}

func (s *server) handleOrderAttempts(w http.ResponseWriter, r *http.Request) {
	var attempt storefront.OrderAttempt
	if err := json.NewDecoder(r.Body).Decode(&attempt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt payload")
		return
	}
	s.logger.Debug("Order attempt", zap.String("product", attempt.Product), zap.String("status", attempt.Status))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *server) handleCreatePayPal(w http.ResponseWriter, r *http.Request) {
	if s.failPayPal {
		writeError(w, http.StatusUnauthorized, "Client Authentication failed: invalid_client")
		return
	}

	var req storefront.CreatePaymentOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:17])
	s.mu.Lock()
	s.payments[id] = req.Items
	s.mu.Unlock()

	host := s.addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	writeJSON(w, http.StatusCreated, storefront.PaymentOrder{
		ID:     id,
		Status: "CREATED",
		Links: []storefront.Link{
			{Href: "http://" + host + "/paypal/orders/" + id, Rel: "self", Method: "GET"},
			{Href: "http://" + host + "/paypal/checkoutnow?token=" + id, Rel: "approve", Method: "GET"},
		},
	})
}

func (s *server) handleCapturePayPal(w http.ResponseWriter, r *http.Request) {
	var req storefront.CapturePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture payload")
		return
	}

	s.mu.Lock()
	_, ok := s.payments[req.OrderID]
	delete(s.payments, req.OrderID)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown order "+req.OrderID)
		return
	}
	s.logger.Info("Payment captured", zap.String("order_id", req.OrderID), zap.Int("items", len(req.Items)))
	writeJSON(w, http.StatusOK, storefront.CaptureResult{ID: req.OrderID, Status: "COMPLETED"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
