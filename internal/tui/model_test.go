package tui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/thomas/storefront-terminal-go/internal/cache"
	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/checkout"
	"github.com/thomas/storefront-terminal-go/internal/fx"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

type testEnv struct {
	server  *httptest.Server
	backend storage.Backend
	store   *storage.Store

	mu     sync.Mutex
	orders []storefront.OrderRequest
}

func (e *testEnv) orderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

func product(id, title, brand, price string) storefront.Product {
	return storefront.Product{
		ID:          id,
		Title:       title,
		Brand:       brand,
		Price:       decimal.RequireFromString(price),
		Thumbnails:  []string{id + "-front.jpg", id + "-back.jpg"},
		Description: "<p>Handmade <b>leather</b></p>",
	}
}

func testProducts() []storefront.Product {
	return []storefront.Product{
		product("p1", "Leather Tote", "Atelier", "120.00"),
		product("p2", "Silk Scarf", "Maison", "45.50"),
		product("p3", "Wool Beanie", "Atelier", "20.00"),
	}
}

// setupTestModel creates a model backed by a mock storefront. Orders for
// failProduct are rejected.
func setupTestModel(t *testing.T, products []storefront.Product, failProduct string) (Model, *testEnv) {
	t.Helper()
	env := &testEnv{}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/products":
			json.NewEncoder(w).Encode(products)
		case "/api/products/similar":
			id := r.URL.Query().Get("product_id")
			var similar []storefront.Product
			for _, p := range products {
				if p.ID != id {
					similar = append(similar, p)
				}
			}
			json.NewEncoder(w).Encode(similar)
		case "/api/settings/checkout_discount":
			io.WriteString(w, `{"percent":10}`)
		case "/api/coupons":
			io.WriteString(w, `[{"code":"SPRING","discount_type":"percent","discount_value":"5"}]`)
		case "/api/orders":
			var req storefront.OrderRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ProductID == failProduct {
				w.WriteHeader(http.StatusConflict)
				io.WriteString(w, `{"error":"out of stock"}`)
				return
			}
			env.mu.Lock()
			env.orders = append(env.orders, req)
			env.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"ok":true}`)
		case "/api/order-attempts":
			io.WriteString(w, `{}`)
		case "/fx":
			io.WriteString(w, `{"rates":{"USD":1.3}}`)
		case "/paypal/create-paypal-order":
			io.WriteString(w, `{"id":"PP-42","links":[{"href":"https://pay.example/approve/PP-42","rel":"approve"}]}`)
		case "/paypal/capture-paypal-order":
			io.WriteString(w, `{"id":"PP-42","status":"COMPLETED"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(env.server.Close)

	logger := zaptest.NewLogger(t)
	env.backend = storage.NewMemoryBackend()
	env.store = storage.New(env.backend, "buyer", logger)
	session := storage.New(storage.NewMemoryBackend(), "session", logger)

	// The attempt log runs in the background and may outlive the test, so the
	// client and submitter do not log through t.
	client := storefront.NewClient(env.server.URL)
	deps := Deps{
		Client:          client,
		Catalog:         cache.New[string, []storefront.Product](time.Minute),
		Countries:       cache.New[string, []storefront.Country](time.Minute),
		Store:           env.store,
		Cart:            cart.New(env.store),
		Wishlist:        cart.NewWishlist(env.store),
		Pricing:         pricing.NewState(context.Background(), env.store, "GBP", "USD", decimal.Zero, logger),
		Rates:           fx.NewProvider(env.store, "GBP", "USD", fx.WithEndpoint(env.server.URL+"/fx")),
		Submitter:       checkout.NewSubmitter(client, session, nil),
		Payments:        checkout.NewPayments(client, env.store, env.server.URL, logger),
		PaymentCurrency: "USD",
		BrandName:       "Test Shop",
		Logger:          logger,
	}

	m := NewModel(deps)
	t.Cleanup(m.Close)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), env
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func deliver(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func loaded(t *testing.T) (Model, *testEnv) {
	t.Helper()
	m, env := setupTestModel(t, testProducts(), "")
	m = deliver(t, m, m.loadProducts())
	m = deliver(t, m, m.loadPricing())
	return m, env
}

func TestNewModel(t *testing.T) {
	m, _ := setupTestModel(t, testProducts(), "")

	if m.GetViewState() != ViewProductList {
		t.Errorf("expected initial view state to be ProductList, got %v", m.GetViewState())
	}
	if m.GetSelectedProduct() != nil {
		t.Error("expected no product to be selected initially")
	}
	if !m.loadingProducts {
		t.Error("expected products to be loading")
	}
	if !strings.Contains(m.View(), "Loading products") {
		t.Error("expected loading indicator in view")
	}
}

func TestProductsLoadedAndDetailNavigation(t *testing.T) {
	m, _ := loaded(t)

	if len(m.products) != 3 || len(m.productList.Items()) != 3 {
		t.Fatalf("expected 3 products, got %d", len(m.products))
	}

	m, cmd := press(t, m, "enter")
	if m.GetViewState() != ViewProductDetail {
		t.Fatalf("expected detail view, got %v", m.GetViewState())
	}
	if m.GetSelectedProduct().ID != "p1" {
		t.Errorf("expected p1, got %s", m.GetSelectedProduct().ID)
	}
	m = deliver(t, m, cmd)
	if len(m.similar) != 2 {
		t.Errorf("expected 2 similar products, got %d", len(m.similar))
	}

	view := m.View()
	if !strings.Contains(view, "Handmade leather") {
		t.Error("description should be rendered without markup")
	}
	if !strings.Contains(view, "/static/p1-front.jpg") {
		t.Error("first thumbnail should be shown")
	}

	m, _ = press(t, m, "right")
	if m.thumbIdx != 1 {
		t.Errorf("expected second thumbnail, got %d", m.thumbIdx)
	}
	m, _ = press(t, m, "right")
	if m.thumbIdx != 1 {
		t.Error("thumbnail index must stay in range")
	}

	m, cmd = press(t, m, "down")
	m, cmd = press(t, m, "enter")
	if m.GetSelectedProduct().ID != "p3" {
		t.Errorf("expected similar product p3, got %s", m.GetSelectedProduct().ID)
	}
	m = deliver(t, m, cmd)

	m, _ = press(t, m, "esc")
	if m.GetViewState() != ViewProductList || m.GetSelectedProduct() != nil {
		t.Error("expected ProductList view after pressing Esc")
	}
}

func TestPricingLoaded(t *testing.T) {
	m, _ := loaded(t)

	if !m.deps.Pricing.GlobalPercent().Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10%% global discount, got %s", m.deps.Pricing.GlobalPercent())
	}
	if len(m.deps.Pricing.Coupons()) != 1 {
		t.Errorf("expected one coupon, got %d", len(m.deps.Pricing.Coupons()))
	}
	if !m.deps.Pricing.Rate().Equal(decimal.RequireFromString("1.3")) {
		t.Errorf("expected fetched rate, got %s", m.deps.Pricing.Rate())
	}
	if !strings.Contains(m.View(), "10% off everything") {
		t.Error("global discount should be advertised")
	}
}

func TestCartKeys(t *testing.T) {
	m, _ := loaded(t)

	m, _ = press(t, m, "a")
	m, _ = press(t, m, "a")
	if len(m.lines) != 1 || m.lines[0].Quantity != 2 {
		t.Fatalf("expected one line with quantity 2, got %+v", m.lines)
	}

	m, _ = press(t, m, "c")
	if m.GetViewState() != ViewCart {
		t.Fatalf("expected cart view, got %v", m.GetViewState())
	}

	m, _ = press(t, m, "+")
	if m.lines[0].Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", m.lines[0].Quantity)
	}

	view := m.View()
	if !strings.Contains(view, "Total:") || !strings.Contains(view, "Discount (10%)") {
		t.Errorf("cart view should show totals with discount:\n%s", view)
	}

	for i := 0; i < 3; i++ {
		m, _ = press(t, m, "-")
	}
	if len(m.lines) != 0 {
		t.Errorf("quantity zero should remove the line, got %+v", m.lines)
	}

	if persisted := m.deps.Cart.Lines(context.Background()); len(persisted) != 0 {
		t.Errorf("expected empty persisted cart, got %d lines", len(persisted))
	}
}

func TestRemoveAndEmptyCart(t *testing.T) {
	m, _ := loaded(t)
	m, _ = press(t, m, "a")
	m.productList.Select(1)
	m, _ = press(t, m, "a")

	m, _ = press(t, m, "c")
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "d")
	if len(m.lines) != 1 || m.lines[0].ID != "p1" {
		t.Fatalf("expected only p1 left, got %+v", m.lines)
	}

	m, _ = press(t, m, "x")
	if len(m.lines) != 0 {
		t.Errorf("expected empty cart, got %+v", m.lines)
	}
	m, _ = press(t, m, "o")
	if m.GetViewState() != ViewCart {
		t.Error("checkout must not open for an empty cart")
	}
}

func TestToggleLike(t *testing.T) {
	m, _ := loaded(t)

	m, cmd := press(t, m, "enter")
	m = deliver(t, m, cmd)

	m, _ = press(t, m, "f")
	if len(m.likes) != 1 || !strings.Contains(m.View(), "♥") {
		t.Fatalf("expected product to be liked, got %+v", m.likes)
	}

	m, _ = press(t, m, "f")
	if len(m.likes) != 0 {
		t.Errorf("second toggle should unlike, got %+v", m.likes)
	}
}

func TestLikesView(t *testing.T) {
	m, _ := loaded(t)
	m, _ = press(t, m, "f")

	m, _ = press(t, m, "l")
	if m.GetViewState() != ViewLikes {
		t.Fatalf("expected likes view, got %v", m.GetViewState())
	}
	if !strings.Contains(m.View(), "Leather Tote") {
		t.Error("liked product should be listed")
	}

	m, _ = press(t, m, "a")
	if len(m.lines) != 1 {
		t.Errorf("expected liked product in cart, got %+v", m.lines)
	}

	m, _ = press(t, m, "d")
	if len(m.likes) != 0 {
		t.Errorf("expected empty wishlist, got %+v", m.likes)
	}
}

func TestSearchFiltersList(t *testing.T) {
	m, _ := loaded(t)

	m, _ = press(t, m, "/")
	if !m.showSearch {
		t.Fatal("expected search input to open")
	}
	m, _ = press(t, m, "atelier")
	m, _ = press(t, m, "enter")

	if got := len(m.productList.Items()); got != 2 {
		t.Errorf("expected 2 Atelier products, got %d", got)
	}

	m, _ = press(t, m, "/")
	m, _ = press(t, m, "esc")
	if got := len(m.productList.Items()); got != 3 {
		t.Errorf("expected filter to be cleared, got %d", got)
	}
}

func TestStoreChangeRefreshesSnapshot(t *testing.T) {
	m, _ := loaded(t)

	if _, err := m.deps.Cart.AddItem(context.Background(), testProducts()[1], 2); err != nil {
		t.Fatal(err)
	}
	m = deliver(t, m, waitForChange(m.changes))

	if len(m.lines) != 1 || m.lines[0].Quantity != 2 {
		t.Errorf("expected change event to refresh the cart, got %+v", m.lines)
	}
}

func TestSyncTickPicksUpOtherSessions(t *testing.T) {
	m, env := loaded(t)

	other := cart.New(storage.New(env.backend, "buyer", nil))
	if _, err := other.AddItem(context.Background(), testProducts()[2], 1); err != nil {
		t.Fatal(err)
	}
	if len(m.lines) != 0 {
		t.Fatal("no change event should cross sessions")
	}

	next, cmd := m.Update(syncTickMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Error("sync tick should reschedule itself")
	}
	if len(m.lines) != 1 || m.lines[0].ID != "p3" {
		t.Errorf("expected cart from other session, got %+v", m.lines)
	}
}

func reviewReady(t *testing.T, failProduct string) (Model, *testEnv) {
	t.Helper()
	m, env := setupTestModel(t, testProducts(), failProduct)
	m = deliver(t, m, m.loadProducts())

	m, _ = press(t, m, "a")
	m.productList.Select(1)
	m, _ = press(t, m, "a")

	m.input.Name = "Ada Lovelace"
	m.input.Email = "ada@example.com"
	m.input.Phone = "0123"
	m.input.Address = "1 Analytical Way"
	m.input.Country = "United Kingdom"
	m.input.City = "London"
	m.viewState = ViewReview
	return m, env
}

func TestPlaceOrderSuccessClearsCart(t *testing.T) {
	m, env := reviewReady(t, "")

	m, cmd := press(t, m, "p")
	if !m.submitting {
		t.Error("expected submitting state")
	}
	m = deliver(t, m, cmd)

	if m.GetViewState() != ViewResults {
		t.Fatalf("expected results view, got %v (err %v)", m.GetViewState(), m.err)
	}
	if !m.results.AllSucceeded() || env.orderCount() != 2 {
		t.Errorf("expected 2 successful orders, got %+v", m.results)
	}
	if len(m.lines) != 0 || len(m.deps.Cart.Lines(context.Background())) != 0 {
		t.Error("cart should be cleared after full success")
	}
	if !strings.Contains(m.View(), "Order placed successfully") {
		t.Error("success message expected")
	}
}

func TestPlaceOrderPartialFailureKeepsCart(t *testing.T) {
	m, env := reviewReady(t, "p1")

	m, cmd := press(t, m, "enter")
	m = deliver(t, m, cmd)

	if m.GetViewState() != ViewResults {
		t.Fatalf("expected results view, got %v", m.GetViewState())
	}
	failures := m.results.Failures()
	if len(failures) != 1 || failures[0].Index != 0 || failures[0].Err.Message != "out of stock" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if env.orderCount() != 1 {
		t.Errorf("second line should still be ordered, got %d", env.orderCount())
	}
	if len(m.lines) != 2 {
		t.Errorf("cart must be kept on partial failure, got %d lines", len(m.lines))
	}
	if !strings.Contains(m.View(), "out of stock") {
		t.Error("failure detail should be shown")
	}

	m, _ = press(t, m, "r")
	if m.GetViewState() != ViewReview {
		t.Errorf("retry should return to review, got %v", m.GetViewState())
	}
}

func TestPlaceOrderWithoutCountry(t *testing.T) {
	m, env := reviewReady(t, "")
	m.input.Country = otherCountry
	m.input.ManualCountry = "  "

	m, cmd := press(t, m, "p")
	m = deliver(t, m, cmd)

	if m.GetViewState() != ViewReview {
		t.Errorf("expected to stay on review, got %v", m.GetViewState())
	}
	if m.err == nil || env.orderCount() != 0 {
		t.Errorf("expected missing country error and no orders, got %v", m.err)
	}
}

func TestCardPaymentFlow(t *testing.T) {
	m, _ := reviewReady(t, "")
	m.input.PaymentMethod = paymentMethodCard

	m, cmd := press(t, m, "p")
	m = deliver(t, m, cmd)

	if m.GetViewState() != ViewPayment {
		t.Fatalf("expected payment view, got %v (err %v)", m.GetViewState(), m.err)
	}
	if !strings.Contains(m.View(), "https://pay.example/approve/PP-42") {
		t.Error("approval link should be shown")
	}

	m, cmd = press(t, m, "c")
	m = deliver(t, m, cmd)
	if m.captured == nil || m.captured.Status != "COMPLETED" {
		t.Fatalf("expected captured payment, got %+v (err %v)", m.captured, m.err)
	}
	if len(m.lines) != 0 {
		t.Error("cart should be cleared after capture")
	}

	m, _ = press(t, m, "enter")
	if m.GetViewState() != ViewProductList {
		t.Errorf("expected product list, got %v", m.GetViewState())
	}
}

func TestPaymentItemsConvertedToDisplayCurrency(t *testing.T) {
	m, _ := reviewReady(t, "")
	m.deps.Pricing.SetRate(decimal.RequireFromString("1.5"))

	items := m.paymentItems()
	if len(items) != 2 || items[0].Currency != "USD" {
		t.Fatalf("unexpected items %+v", items)
	}
	if !items[0].UnitPrice.Equal(decimal.NewFromInt(180)) {
		t.Errorf("expected 180 USD, got %s", items[0].UnitPrice)
	}
}

func TestCheckoutInputCountry(t *testing.T) {
	in := &checkoutInput{Country: "France"}
	if in.customer().Country != "France" {
		t.Error("selected country should be used")
	}
	in = &checkoutInput{Country: otherCountry, ManualCountry: " Atlantis "}
	if in.customer().Country != "Atlantis" {
		t.Errorf("manual country should be trimmed, got %q", in.customer().Country)
	}
}

func TestEveryViewHasHelp(t *testing.T) {
	for v := ViewProductList; v <= ViewPayment; v++ {
		if helpLine(v) == "" {
			t.Errorf("view %d has no key help", v)
		}
	}
}
