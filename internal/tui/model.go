package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/cache"
	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/checkout"
	"github.com/thomas/storefront-terminal-go/internal/fx"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ViewProductList ViewState = iota
	ViewProductDetail
	ViewLikes
	ViewCart
	ViewCheckout
	ViewReview
	ViewResults
	ViewPayment
)

const (
	// SyncInterval is how often the cart sync marker is polled for changes
	// made by other sessions of the same buyer.
	SyncInterval = 2 * time.Second

	catalogKey     = "products"
	similarPrefix  = "similar:"
	requestTimeout = 30 * time.Second
)

// Deps are the collaborators of one session's model. Catalog and Countries
// are shared between sessions; everything else is per session.
type Deps struct {
	Client    *storefront.Client
	Catalog   *cache.Cache[string, []storefront.Product]
	Countries *cache.Cache[string, []storefront.Country]

	Store     *storage.Store
	Cart      *cart.Cart
	Wishlist  *cart.Wishlist
	Pricing   *pricing.State
	Rates     *fx.Provider
	Submitter *checkout.Submitter
	Payments  *checkout.Payments

	PaymentCurrency string
	BrandName       string
	Logger          *zap.Logger
}

// Model is the main Bubble Tea model.
type Model struct {
	deps   Deps
	styles Styles

	width  int
	height int

	viewState ViewState

	// Catalog
	productList     list.Model
	searchInput     textinput.Model
	showSearch      bool
	products        []storefront.Product
	loadingProducts bool
	spinner         spinner.Model

	// Product detail
	selected       *storefront.Product
	thumbIdx       int
	similar        []storefront.Product
	similarIdx     int
	loadingSimilar bool

	// Snapshot of persisted state, refreshed on change events and sync ticks
	lines      []cart.LineItem
	likes      []cart.WishlistEntry
	cartIdx    int
	likesIdx   int
	syncMarker int64

	changes     chan storage.Change
	unsubscribe func()

	// Checkout
	countries    []storefront.Country
	input        *checkoutInput
	checkoutForm *huh.Form
	submitting   bool
	results      checkout.Results
	redirect     *checkout.Redirect
	captured     *storefront.CaptureResult

	status string
	err    error
}

// productItem implements list.Item for products.
type productItem struct {
	product storefront.Product
	price   string
	liked   bool
}

func (i productItem) Title() string {
	if i.liked {
		return "♥ " + i.product.Title
	}
	return i.product.Title
}

func (i productItem) Description() string {
	if i.product.Brand == "" {
		return i.price
	}
	return fmt.Sprintf("%s • %s", i.product.Brand, i.price)
}

func (i productItem) FilterValue() string {
	return i.product.Title + " " + i.product.Brand
}

// Messages
type (
	productsLoadedMsg struct {
		products []storefront.Product
		err      error
	}
	similarLoadedMsg struct {
		productID string
		products  []storefront.Product
	}
	pricingLoadedMsg struct {
		globalPercent decimal.Decimal
		coupons       []storefront.Coupon
		rate          decimal.Decimal
	}
	countriesLoadedMsg struct {
		countries []storefront.Country
	}
	storeChangedMsg struct {
		change storage.Change
	}
	ordersPlacedMsg struct {
		results checkout.Results
		err     error
	}
	paymentStartedMsg struct {
		redirect *checkout.Redirect
	}
	paymentCapturedMsg struct {
		result *storefront.CaptureResult
	}
	errMsg struct {
		err error
	}
)

type syncTickMsg time.Time

// NewModel creates a new TUI model and subscribes it to store changes. Call
// Close when the session ends.
func NewModel(deps Deps) Model {
	deps.Logger = logging.OrNop(deps.Logger)
	styles := DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorGold)

	ti := textinput.New()
	ti.Placeholder = "Search title or brand..."
	ti.CharLimit = 50
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(colorHighlight).
		BorderLeftForeground(colorHighlight)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(colorSlate).
		BorderLeftForeground(colorHighlight)

	productList := list.New([]list.Item{}, delegate, 0, 0)
	productList.Title = "Products"
	productList.SetShowHelp(false)
	productList.SetFilteringEnabled(false)
	productList.Styles.Title = styles.HeaderTitle

	m := Model{
		deps:            deps,
		styles:          styles,
		viewState:       ViewProductList,
		productList:     productList,
		searchInput:     ti,
		spinner:         sp,
		loadingProducts: true,
		changes:         make(chan storage.Change, 16),
		input:           newCheckoutInput(deps.Pricing),
	}

	if deps.Store != nil {
		ch := m.changes
		m.unsubscribe = deps.Store.Subscribe(func(c storage.Change) {
			select {
			case ch <- c:
			default:
			}
		})
	}
	m.refreshSnapshot()
	return m
}

// Close releases the store subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadProducts(),
		m.loadPricing(),
		m.loadCountries(),
		waitForChange(m.changes),
		syncTick(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.productList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.viewState != ViewCheckout {
			return m.handleKeyMsg(msg)
		}
		if msg.String() == "ctrl+c" || msg.String() == "esc" {
			return m.handleKeyMsg(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case productsLoadedMsg:
		m.loadingProducts = false
		if msg.err != nil {
			if len(msg.products) == 0 {
				m.err = msg.err
				return m, nil
			}
			m.status = "Showing saved catalog: " + storefront.Detail(msg.err)
		} else {
			m.err = nil
		}
		m.products = msg.products
		m.updateProductList()
		return m, nil

	case similarLoadedMsg:
		if m.selected != nil && m.selected.ID == msg.productID {
			m.loadingSimilar = false
			m.similar = msg.products
			m.similarIdx = 0
		}
		return m, nil

	case pricingLoadedMsg:
		m.deps.Pricing.SetGlobalPercent(msg.globalPercent)
		m.deps.Pricing.SetCoupons(msg.coupons)
		m.deps.Pricing.SetRate(msg.rate)
		m.updateProductList()
		return m, nil

	case countriesLoadedMsg:
		m.countries = msg.countries
		return m, nil

	case storeChangedMsg:
		m.refreshSnapshot()
		return m, waitForChange(m.changes)

	case syncTickMsg:
		if m.deps.Store != nil {
			if marker := m.deps.Store.SyncMarker(context.Background()); marker != m.syncMarker {
				m.refreshSnapshot()
			}
		}
		return m, syncTick()

	case ordersPlacedMsg:
		return m.handleOrdersPlaced(msg)

	case paymentStartedMsg:
		m.submitting = false
		m.redirect = msg.redirect
		m.captured = nil
		m.viewState = ViewPayment
		return m, nil

	case paymentCapturedMsg:
		m.submitting = false
		m.captured = msg.result
		if err := m.deps.Cart.Clear(context.Background()); err != nil {
			m.deps.Logger.Warn("clearing cart after capture", zap.Error(err))
		}
		m.refreshSnapshot()
		return m, nil

	case errMsg:
		m.err = msg.err
		m.submitting = false
		m.loadingProducts = false
		m.loadingSimilar = false
		return m, nil
	}

	if m.viewState == ViewCheckout && m.checkoutForm != nil {
		return m.updateCheckoutForm(msg)
	}

	if m.viewState == ViewProductList && !m.showSearch {
		var cmd tea.Cmd
		m.productList, cmd = m.productList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.Close()
		return m, tea.Quit
	}

	if m.viewState == ViewProductList && m.showSearch {
		return m.handleSearchKeys(msg)
	}

	for _, b := range bindingsFor(m.viewState) {
		if b.matches(key) {
			next, cmd := b.action(m)
			return next, cmd
		}
	}

	if m.viewState == ViewProductList {
		var cmd tea.Cmd
		m.productList, cmd = m.productList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.showSearch = false
		m.searchInput.Blur()
		m.updateProductList()
		return m, nil
	case "esc":
		m.showSearch = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.updateProductList()
		return m, nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// refreshSnapshot rereads the cart and wishlist from the store.
func (m *Model) refreshSnapshot() {
	ctx := context.Background()
	if m.deps.Cart != nil {
		m.lines = m.deps.Cart.Lines(ctx)
	}
	if m.deps.Wishlist != nil {
		m.likes = m.deps.Wishlist.Entries(ctx)
	}
	if m.deps.Store != nil {
		m.syncMarker = m.deps.Store.SyncMarker(ctx)
	}
	m.cartIdx = clampIndex(m.cartIdx, len(m.lines))
	m.likesIdx = clampIndex(m.likesIdx, len(m.likes))
	m.updateProductList()
}

func (m *Model) updateProductList() {
	query := strings.ToLower(strings.TrimSpace(m.searchInput.Value()))
	liked := make(map[string]bool, len(m.likes))
	for _, e := range m.likes {
		liked[e.ID] = true
	}

	items := make([]list.Item, 0, len(m.products))
	for _, p := range m.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Title+" "+p.Brand), query) {
			continue
		}
		items = append(items, productItem{
			product: p,
			price:   m.dual(p.Price),
			liked:   liked[cart.ResolveID(p)],
		})
	}
	m.productList.SetItems(items)
}

func (m Model) dual(amount decimal.Decimal) string {
	if m.deps.Pricing == nil {
		return amount.StringFixed(2)
	}
	return m.deps.Pricing.Dual(amount)
}

func (m Model) selectedListProduct() (storefront.Product, bool) {
	item, ok := m.productList.SelectedItem().(productItem)
	if !ok {
		return storefront.Product{}, false
	}
	return item.product, true
}

// findProduct looks a product up in the loaded catalog.
func (m Model) findProduct(id string) (storefront.Product, bool) {
	for _, p := range m.products {
		if cart.ResolveID(p) == id {
			return p, true
		}
	}
	return storefront.Product{}, false
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// ============================================================================
// Commands
// ============================================================================

func waitForChange(ch <-chan storage.Change) tea.Cmd {
	return func() tea.Msg {
		return storeChangedMsg{change: <-ch}
	}
}

func syncTick() tea.Cmd {
	return tea.Tick(SyncInterval, func(t time.Time) tea.Msg {
		return syncTickMsg(t)
	})
}

func (m Model) loadProducts() tea.Cmd {
	client, catalog := m.deps.Client, m.deps.Catalog
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		load := func() ([]storefront.Product, error) { return client.ListProducts(ctx) }
		if catalog == nil {
			products, err := load()
			return productsLoadedMsg{products: products, err: err}
		}
		products, err := catalog.GetOrLoad(catalogKey, load)
		return productsLoadedMsg{products: products, err: err}
	}
}

func (m Model) loadSimilar(productID string) tea.Cmd {
	client, catalog, logger := m.deps.Client, m.deps.Catalog, m.deps.Logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		load := func() ([]storefront.Product, error) { return client.SimilarProducts(ctx, productID) }
		var (
			products []storefront.Product
			err      error
		)
		if catalog != nil {
			products, err = catalog.GetOrLoad(similarPrefix+productID, load)
		} else {
			products, err = load()
		}
		if err != nil {
			logger.Debug("similar products unavailable", zap.String("product_id", productID), zap.Error(err))
		}
		return similarLoadedMsg{productID: productID, products: products}
	}
}

// loadPricing fetches the site-wide discount, the coupon catalog and the
// exchange rate. Failures fall back to no discount and no coupons.
func (m Model) loadPricing() tea.Cmd {
	client, rates, logger := m.deps.Client, m.deps.Rates, m.deps.Logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		msg := pricingLoadedMsg{globalPercent: decimal.Zero, rate: fx.DefaultRate}
		if pct, err := client.CheckoutDiscount(ctx); err != nil {
			logger.Warn("checkout discount unavailable", zap.Error(err))
		} else {
			msg.globalPercent = pct
		}
		if coupons, err := client.Coupons(ctx); err != nil {
			logger.Warn("coupons unavailable", zap.Error(err))
		} else {
			msg.coupons = coupons
		}
		if rates != nil {
			msg.rate = rates.Rate(ctx)
		}
		return msg
	}
}

func (m Model) loadCountries() tea.Cmd {
	client, countries := m.deps.Client, m.deps.Countries
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if countries == nil {
			return countriesLoadedMsg{countries: client.Countries(ctx)}
		}
		all, _ := countries.GetOrLoad("all", func() ([]storefront.Country, error) {
			return client.Countries(ctx), nil
		})
		return countriesLoadedMsg{countries: all}
	}
}

func (m Model) placeOrders() tea.Cmd {
	submitter := m.deps.Submitter
	customer := m.input.customer()
	lines := append([]cart.LineItem(nil), m.lines...)
	promo := m.deps.Pricing.PromoCode()
	delivery := m.deps.Pricing.Delivery()
	rate := m.deps.Pricing.Rate()
	return func() tea.Msg {
		// Each line is bounded inside SubmitOrders.
		results, err := submitter.SubmitOrders(context.Background(), customer, lines, promo, &delivery, rate)
		return ordersPlacedMsg{results: results, err: err}
	}
}

func (m Model) startCardPayment() tea.Cmd {
	payments := m.deps.Payments
	items := m.paymentItems()
	opts := checkout.PaymentOptions{
		Currency:  m.deps.PaymentCurrency,
		BrandName: m.deps.BrandName,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		redirect, err := payments.InitiateCardCheckout(ctx, items, opts)
		if err != nil {
			return errMsg{err: err}
		}
		return paymentStartedMsg{redirect: redirect}
	}
}

func (m Model) capturePayment() tea.Cmd {
	payments := m.deps.Payments
	customer := m.input.customer()
	orderID := ""
	if m.redirect != nil {
		orderID = m.redirect.OrderID
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		result, err := payments.Capture(ctx, orderID, customer)
		if err != nil {
			return errMsg{err: fmt.Errorf("capturing payment: %w", err)}
		}
		return paymentCapturedMsg{result: result}
	}
}

// paymentItems prices the cart in the payment currency. Unit prices are
// converted when the payment currency is the display currency.
func (m Model) paymentItems() []storefront.PaymentItem {
	currency := m.deps.PaymentCurrency
	if currency == "" {
		currency = m.deps.Pricing.DisplayCurrency()
	}
	items := checkout.ItemsFromCart(m.lines, currency)
	if currency != m.deps.Pricing.BaseCurrency() && currency == m.deps.Pricing.DisplayCurrency() {
		rate := m.deps.Pricing.Rate()
		for i := range items {
			items[i].UnitPrice = pricing.Convert(items[i].UnitPrice, rate).Round(2)
		}
	}
	return items
}

func (m Model) handleOrdersPlaced(msg ordersPlacedMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}

	m.err = nil
	m.results = msg.results
	m.viewState = ViewResults

	if !msg.results.AllSucceeded() {
		m.deps.Logger.Info("order partially failed",
			zap.Int("lines", len(msg.results)),
			zap.Int("failed", len(msg.results.Failures())))
		return m, nil
	}

	ctx := context.Background()
	m.deps.Submitter.LogAttempts(m.lines, m.input.Email, "CheckedOut")
	if err := m.deps.Cart.Clear(ctx); err != nil {
		m.deps.Logger.Warn("clearing cart after order", zap.Error(err))
	}
	m.refreshSnapshot()
	return m, nil
}

// errorText renders an error for the buyer.
func errorText(err error) string {
	var perr *checkout.PaymentProviderError
	if errors.As(err, &perr) && perr.CredentialProblem() {
		return "Card payments are not available right now (payment provider rejected the store's credentials)."
	}
	if errors.Is(err, checkout.ErrMissingApprovalLink) {
		return "The payment provider did not return an approval link. Please try again."
	}
	switch {
	case errors.Is(err, storefront.ErrTimeout):
		return "The store took too long to answer. Please try again."
	case errors.Is(err, storefront.ErrNetwork):
		return "Could not reach the store. Check your connection and try again."
	}
	return err.Error()
}

// GetViewState returns the current view state (for testing).
func (m Model) GetViewState() ViewState {
	return m.viewState
}

// GetSelectedProduct returns the product shown in the detail view (for testing).
func (m Model) GetSelectedProduct() *storefront.Product {
	return m.selected
}
