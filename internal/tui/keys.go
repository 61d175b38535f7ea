package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// binding maps keys to an action in one view. The help text is shown in the
// view's help bar.
type binding struct {
	keys   []string
	help   string
	action func(Model) (Model, tea.Cmd)
}

func (b binding) matches(key string) bool {
	for _, k := range b.keys {
		if k == key {
			return true
		}
	}
	return false
}

var productListBindings = []binding{
	{[]string{"enter"}, "enter details", Model.openSelected},
	{[]string{"a"}, "a add to cart", Model.addSelectedToCart},
	{[]string{"f"}, "f like", Model.toggleSelectedLike},
	{[]string{"/"}, "/ search", Model.startSearch},
	{[]string{"l"}, "l likes", Model.showLikes},
	{[]string{"c"}, "c cart", Model.showCart},
	{[]string{"r"}, "r refresh", Model.refreshCatalog},
	{[]string{"q"}, "q quit", Model.quit},
}

var productDetailBindings = []binding{
	{[]string{"esc", "backspace"}, "esc back", Model.showProductList},
	{[]string{"a"}, "a add to cart", Model.addDetailToCart},
	{[]string{"f"}, "f like", Model.toggleDetailLike},
	{[]string{"left", "h"}, "←/→ image", Model.prevThumbnail},
	{[]string{"right", "l"}, "", Model.nextThumbnail},
	{[]string{"up", "k"}, "↑/↓ similar", Model.similarUp},
	{[]string{"down", "j"}, "", Model.similarDown},
	{[]string{"enter"}, "enter open similar", Model.openSimilar},
	{[]string{"c"}, "c cart", Model.showCart},
}

var likesBindings = []binding{
	{[]string{"esc", "backspace"}, "esc back", Model.showProductList},
	{[]string{"up", "k"}, "↑/↓ select", Model.likesUp},
	{[]string{"down", "j"}, "", Model.likesDown},
	{[]string{"enter"}, "enter details", Model.openLiked},
	{[]string{"a"}, "a add to cart", Model.addLikedToCart},
	{[]string{"d", "delete"}, "d unlike", Model.unlikeSelected},
	{[]string{"c"}, "c cart", Model.showCart},
}

var cartBindings = []binding{
	{[]string{"esc", "backspace", "s"}, "esc continue shopping", Model.showProductList},
	{[]string{"up", "k"}, "↑/↓ select", Model.cartUp},
	{[]string{"down", "j"}, "", Model.cartDown},
	{[]string{"+", "="}, "+/- quantity", Model.incrementLine},
	{[]string{"-"}, "", Model.decrementLine},
	{[]string{"d", "delete"}, "d remove", Model.removeLine},
	{[]string{"x"}, "x empty cart", Model.emptyCart},
	{[]string{"o"}, "o checkout", Model.openCheckout},
}

var checkoutBindings = []binding{
	{[]string{"esc"}, "esc back to cart", Model.showCart},
}

var reviewBindings = []binding{
	{[]string{"esc"}, "esc edit details", Model.openCheckout},
	{[]string{"enter", "p"}, "p/enter place order", Model.placeOrder},
}

var resultsBindings = []binding{
	{[]string{"enter", "esc"}, "enter continue shopping", Model.showProductList},
	{[]string{"r"}, "r retry order", Model.retryOrder},
	{[]string{"c"}, "c cart", Model.showCart},
}

var paymentBindings = []binding{
	{[]string{"c"}, "c confirm payment", Model.confirmPayment},
	{[]string{"esc"}, "esc back", Model.leavePayment},
	{[]string{"enter"}, "enter continue shopping", Model.finishPayment},
}

func bindingsFor(v ViewState) []binding {
	switch v {
	case ViewProductList:
		return productListBindings
	case ViewProductDetail:
		return productDetailBindings
	case ViewLikes:
		return likesBindings
	case ViewCart:
		return cartBindings
	case ViewCheckout:
		return checkoutBindings
	case ViewReview:
		return reviewBindings
	case ViewResults:
		return resultsBindings
	case ViewPayment:
		return paymentBindings
	}
	return nil
}

func helpLine(v ViewState) string {
	var parts []string
	for _, b := range bindingsFor(v) {
		if b.help != "" {
			parts = append(parts, b.help)
		}
	}
	return strings.Join(parts, " • ")
}

// ============================================================================
// Navigation
// ============================================================================

func (m Model) quit() (Model, tea.Cmd) {
	m.Close()
	return m, tea.Quit
}

func (m Model) showProductList() (Model, tea.Cmd) {
	m.viewState = ViewProductList
	m.selected = nil
	m.similar = nil
	m.err = nil
	return m, nil
}

func (m Model) showLikes() (Model, tea.Cmd) {
	m.viewState = ViewLikes
	return m, nil
}

func (m Model) showCart() (Model, tea.Cmd) {
	m.viewState = ViewCart
	m.checkoutForm = nil
	m.err = nil
	return m, nil
}

func (m Model) startSearch() (Model, tea.Cmd) {
	m.showSearch = true
	m.searchInput.Focus()
	return m, nil
}

func (m Model) refreshCatalog() (Model, tea.Cmd) {
	if m.deps.Catalog != nil {
		m.deps.Catalog.Delete(catalogKey)
	}
	m.loadingProducts = true
	m.status = ""
	return m, m.loadProducts()
}

func (m Model) openProduct(p storefront.Product) (Model, tea.Cmd) {
	m.selected = &p
	m.thumbIdx = 0
	m.similar = nil
	m.similarIdx = 0
	m.viewState = ViewProductDetail
	if p.ID == "" {
		return m, nil
	}
	m.loadingSimilar = true
	return m, m.loadSimilar(p.ID)
}

func (m Model) openSelected() (Model, tea.Cmd) {
	p, ok := m.selectedListProduct()
	if !ok {
		return m, nil
	}
	return m.openProduct(p)
}

func (m Model) openSimilar() (Model, tea.Cmd) {
	if m.similarIdx >= len(m.similar) {
		return m, nil
	}
	return m.openProduct(m.similar[m.similarIdx])
}

func (m Model) openLiked() (Model, tea.Cmd) {
	if m.likesIdx >= len(m.likes) {
		return m, nil
	}
	e := m.likes[m.likesIdx]
	if p, ok := m.findProduct(e.ID); ok {
		return m.openProduct(p)
	}
	return m.openProduct(storefront.Product{
		ID:       e.ID,
		Title:    e.Title,
		Brand:    e.Brand,
		Price:    e.Price,
		ImageURL: e.ImageRef,
	})
}

// ============================================================================
// Cart and wishlist mutations
// ============================================================================

func (m Model) addToCart(p storefront.Product) (Model, tea.Cmd) {
	lines, err := m.deps.Cart.AddItem(context.Background(), p, 1)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.lines = lines
	m.status = "Added " + p.Title + " to cart"
	return m, nil
}

func (m Model) toggleLike(p storefront.Product) (Model, tea.Cmd) {
	result, err := m.deps.Wishlist.ToggleLike(context.Background(), p)
	if err != nil {
		m.err = err
		return m, nil
	}
	if result == cart.Added {
		m.status = "Liked " + p.Title
	} else {
		m.status = "Removed " + p.Title + " from likes"
	}
	m.refreshSnapshot()
	return m, nil
}

func (m Model) addSelectedToCart() (Model, tea.Cmd) {
	if p, ok := m.selectedListProduct(); ok {
		return m.addToCart(p)
	}
	return m, nil
}

func (m Model) toggleSelectedLike() (Model, tea.Cmd) {
	if p, ok := m.selectedListProduct(); ok {
		return m.toggleLike(p)
	}
	return m, nil
}

func (m Model) addDetailToCart() (Model, tea.Cmd) {
	if m.selected == nil {
		return m, nil
	}
	return m.addToCart(*m.selected)
}

func (m Model) toggleDetailLike() (Model, tea.Cmd) {
	if m.selected == nil {
		return m, nil
	}
	return m.toggleLike(*m.selected)
}

func (m Model) addLikedToCart() (Model, tea.Cmd) {
	if m.likesIdx >= len(m.likes) {
		return m, nil
	}
	e := m.likes[m.likesIdx]
	return m.addToCart(storefront.Product{
		ID:       e.ID,
		Title:    e.Title,
		Brand:    e.Brand,
		Price:    e.Price,
		ImageURL: e.ImageRef,
	})
}

func (m Model) unlikeSelected() (Model, tea.Cmd) {
	if m.likesIdx >= len(m.likes) {
		return m, nil
	}
	if err := m.deps.Wishlist.Unlike(context.Background(), m.likes[m.likesIdx].ID); err != nil {
		m.err = err
		return m, nil
	}
	m.refreshSnapshot()
	return m, nil
}

func (m Model) changeSelectedQuantity(delta int) (Model, tea.Cmd) {
	if m.cartIdx >= len(m.lines) {
		return m, nil
	}
	line := m.lines[m.cartIdx]
	lines, err := m.deps.Cart.ChangeQuantity(context.Background(), line.ID, line.Quantity+delta)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.lines = lines
	m.cartIdx = clampIndex(m.cartIdx, len(lines))
	return m, nil
}

func (m Model) incrementLine() (Model, tea.Cmd) { return m.changeSelectedQuantity(1) }

func (m Model) decrementLine() (Model, tea.Cmd) { return m.changeSelectedQuantity(-1) }

func (m Model) removeLine() (Model, tea.Cmd) {
	if m.cartIdx >= len(m.lines) {
		return m, nil
	}
	lines, err := m.deps.Cart.RemoveItem(context.Background(), m.lines[m.cartIdx].ID)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.lines = lines
	m.cartIdx = clampIndex(m.cartIdx, len(lines))
	return m, nil
}

func (m Model) emptyCart() (Model, tea.Cmd) {
	if err := m.deps.Cart.Clear(context.Background()); err != nil {
		m.err = err
		return m, nil
	}
	m.refreshSnapshot()
	return m, nil
}

// ============================================================================
// Cursor movement
// ============================================================================

func (m Model) cartUp() (Model, tea.Cmd) {
	m.cartIdx = clampIndex(m.cartIdx-1, len(m.lines))
	return m, nil
}

func (m Model) cartDown() (Model, tea.Cmd) {
	m.cartIdx = clampIndex(m.cartIdx+1, len(m.lines))
	return m, nil
}

func (m Model) likesUp() (Model, tea.Cmd) {
	m.likesIdx = clampIndex(m.likesIdx-1, len(m.likes))
	return m, nil
}

func (m Model) likesDown() (Model, tea.Cmd) {
	m.likesIdx = clampIndex(m.likesIdx+1, len(m.likes))
	return m, nil
}

func (m Model) similarUp() (Model, tea.Cmd) {
	m.similarIdx = clampIndex(m.similarIdx-1, len(m.similar))
	return m, nil
}

func (m Model) similarDown() (Model, tea.Cmd) {
	m.similarIdx = clampIndex(m.similarIdx+1, len(m.similar))
	return m, nil
}

func (m Model) prevThumbnail() (Model, tea.Cmd) {
	if m.selected != nil && m.thumbIdx > 0 {
		m.thumbIdx--
	}
	return m, nil
}

func (m Model) nextThumbnail() (Model, tea.Cmd) {
	if m.selected != nil && m.thumbIdx < len(m.selected.Thumbnails)-1 {
		m.thumbIdx++
	}
	return m, nil
}

// ============================================================================
// Checkout
// ============================================================================

func (m Model) openCheckout() (Model, tea.Cmd) {
	if len(m.lines) == 0 {
		m.status = "Your cart is empty"
		return m, nil
	}
	m.err = nil
	m.viewState = ViewCheckout
	m.checkoutForm = m.buildCheckoutForm()
	return m, m.checkoutForm.Init()
}

func (m Model) placeOrder() (Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	if len(m.lines) == 0 {
		m.status = "Your cart is empty"
		return m, nil
	}
	m.submitting = true
	m.err = nil
	if m.input.PaymentMethod == paymentMethodCard {
		m.deps.Logger.Info("starting card checkout", zap.Int("lines", len(m.lines)))
		return m, m.startCardPayment()
	}
	return m, m.placeOrders()
}

func (m Model) retryOrder() (Model, tea.Cmd) {
	if len(m.lines) == 0 {
		return m.showProductList()
	}
	m.viewState = ViewReview
	return m, nil
}

func (m Model) confirmPayment() (Model, tea.Cmd) {
	if m.submitting || m.captured != nil {
		return m, nil
	}
	m.submitting = true
	m.err = nil
	return m, m.capturePayment()
}

func (m Model) leavePayment() (Model, tea.Cmd) {
	if m.captured != nil {
		return m.showProductList()
	}
	m.viewState = ViewReview
	m.err = nil
	return m, nil
}

func (m Model) finishPayment() (Model, tea.Cmd) {
	if m.captured == nil {
		return m, nil
	}
	m.redirect = nil
	m.captured = nil
	return m.showProductList()
}
