package tui

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// View renders the current view.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string

	switch m.viewState {
	case ViewProductList:
		content = m.viewProductList()
	case ViewProductDetail:
		content = m.viewProductDetail()
	case ViewLikes:
		content = m.viewLikes()
	case ViewCart:
		content = m.viewCart()
	case ViewCheckout:
		content = m.viewCheckout()
	case ViewReview:
		content = m.viewReview()
	case ViewResults:
		content = m.viewResults()
	case ViewPayment:
		content = m.viewPayment()
	}

	return m.styles.App.Render(content)
}

func (m Model) cartBadge() string {
	count := cart.ItemCount(m.lines)
	if count == 0 {
		return ""
	}
	return m.styles.Badge.Render(fmt.Sprintf("🛒 %d", count))
}

func (m Model) footer(sb *strings.Builder) {
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Error.Render("Error: " + errorText(m.err)))
	} else if m.status != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Subtle.Render(m.status))
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render(helpLine(m.viewState)))
}

func (m Model) viewProductList() string {
	var sb strings.Builder

	header := m.styles.HeaderTitle.Render("Storefront")
	if pct := m.deps.Pricing.GlobalPercent(); pct.IsPositive() {
		header += m.styles.Discount.Render(fmt.Sprintf("  %s%% off everything", pct.String()))
	}
	if badge := m.cartBadge(); badge != "" {
		header += "  " + badge
	}
	sb.WriteString(m.styles.Header.Render(header))
	sb.WriteString("\n")

	if m.showSearch {
		sb.WriteString("Search: ")
		sb.WriteString(m.searchInput.View())
		sb.WriteString("\n\n")
	} else if q := m.searchInput.Value(); q != "" {
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("Filtered by %q (/ to change)", q)))
		sb.WriteString("\n")
	}

	switch {
	case m.loadingProducts:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading products...")
	case len(m.products) == 0 && m.err == nil:
		sb.WriteString(m.styles.Subtle.Render("No products available"))
	case len(m.products) > 0:
		sb.WriteString(m.productList.View())
	}

	m.footer(&sb)
	return sb.String()
}

func (m Model) viewProductDetail() string {
	if m.selected == nil {
		return "No product selected"
	}

	var sb strings.Builder
	p := m.selected

	title := m.styles.ProductName.Render(p.Title)
	if m.isLiked(*p) {
		title += " " + m.styles.Liked.Render("♥")
	}
	sb.WriteString(title)
	sb.WriteString("\n")
	if p.Brand != "" {
		sb.WriteString(m.styles.ProductBrand.Render(p.Brand))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.ProductPrice.Render(m.dual(p.Price)))
	sb.WriteString("\n")

	if desc := storefront.StripHTML(p.Description); desc != "" {
		sb.WriteString(m.styles.ProductDescription.Render(desc))
		sb.WriteString("\n")
	}

	if len(p.Thumbnails) > 0 {
		idx := clampIndex(m.thumbIdx, len(p.Thumbnails))
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("Image %d/%d: ", idx+1, len(p.Thumbnails))))
		sb.WriteString(m.styles.Link.Render(storefront.StaticURL(p.Thumbnails[idx])))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Subtle.Render("You may also like:"))
	sb.WriteString("\n")
	switch {
	case m.loadingSimilar:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading...\n")
	case len(m.similar) == 0:
		sb.WriteString(m.styles.Subtle.Render("  nothing similar yet"))
		sb.WriteString("\n")
	default:
		for i, s := range m.similar {
			line := fmt.Sprintf("%s  %s", s.Title, m.dual(s.Price))
			if i == m.similarIdx {
				sb.WriteString(m.styles.Highlight.Render("▸ " + line))
			} else {
				sb.WriteString("  " + line)
			}
			sb.WriteString("\n")
		}
	}

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) isLiked(p storefront.Product) bool {
	id := cart.ResolveID(p)
	for _, e := range m.likes {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (m Model) viewLikes() string {
	var sb strings.Builder

	sb.WriteString(m.styles.HeaderTitle.Render("♥ Likes"))
	sb.WriteString("\n\n")

	if len(m.likes) == 0 {
		sb.WriteString(m.styles.Subtle.Render("You haven't liked anything yet"))
		sb.WriteString("\n")
	}
	for i, e := range m.likes {
		line := e.Title
		if e.Brand != "" {
			line += " · " + e.Brand
		}
		line += "  " + m.dual(e.Price)
		if i == m.likesIdx {
			sb.WriteString(m.styles.Highlight.Render("▸ " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) viewCart() string {
	var sb strings.Builder

	sb.WriteString(m.styles.HeaderTitle.Render("🛒 Shopping Cart"))
	sb.WriteString("\n\n")

	if len(m.lines) == 0 {
		sb.WriteString(m.styles.Subtle.Render("Your cart is empty"))
		sb.WriteString("\n")
		m.footer(&sb)
		return m.styles.Box.Render(sb.String())
	}

	for i, l := range m.lines {
		line := fmt.Sprintf("%s  %s  x%d  = %s", l.Title, m.baseAmount(l.UnitPrice), l.Quantity, m.baseAmount(l.LineTotal()))
		if i == m.cartIdx {
			sb.WriteString(m.styles.Highlight.Render("▸ " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	m.writeTotals(&sb, m.deps.Pricing.Totals(m.lines))

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) baseAmount(amount decimal.Decimal) string {
	return pricing.Format(amount, m.deps.Pricing.BaseCurrency())
}

func (m Model) writeTotals(sb *strings.Builder, t pricing.Totals) {
	fmt.Fprintf(sb, "Subtotal: %s\n", m.dual(t.Subtotal))
	if t.CombinedPercent.IsPositive() {
		sb.WriteString(m.styles.Discount.Render(fmt.Sprintf("Discount (%s%%): -%s", t.CombinedPercent.String(), m.dual(t.DiscountAmount))))
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Delivery (%s): %s\n", m.deps.Pricing.Delivery().Title(), m.dual(t.DeliveryFee))
	sb.WriteString(m.styles.Total.Render(fmt.Sprintf("Total: %s", m.dual(t.GrandTotal))))
	fmt.Fprintf(sb, " (%d items)\n", t.ItemCount)
}

func (m Model) viewCheckout() string {
	var sb strings.Builder

	sb.WriteString(m.styles.HeaderTitle.Render("Checkout"))
	sb.WriteString("  ")
	sb.WriteString(m.styles.Subtle.Render("Step 1 of 2"))
	sb.WriteString("\n\n")

	if m.checkoutForm != nil {
		sb.WriteString(m.checkoutForm.View())
	}

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) viewReview() string {
	var sb strings.Builder

	sb.WriteString(m.styles.HeaderTitle.Render("Review Order"))
	sb.WriteString("  ")
	sb.WriteString(m.styles.Subtle.Render("Step 2 of 2"))
	sb.WriteString("\n\n")

	if m.submitting {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Placing order...")
		return m.styles.Box.Render(sb.String())
	}

	c := m.input.customer()
	sb.WriteString(m.styles.Subtle.Render("Ship to:"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  %s <%s> %s\n", c.Name, c.Email, c.Phone)
	fmt.Fprintf(&sb, "  %s\n", c.Address)
	fmt.Fprintf(&sb, "  %s\n\n", strings.TrimSpace(c.City+" "+c.Country))

	sb.WriteString(m.styles.Subtle.Render("Payment:"))
	fmt.Fprintf(&sb, " %s\n", c.PaymentMethod)
	if code := m.deps.Pricing.PromoCode(); code != "" {
		sb.WriteString(m.styles.Subtle.Render("Promo:"))
		fmt.Fprintf(&sb, " %s (%s%%)\n", code, m.deps.Pricing.PromoPercent().String())
	}
	sb.WriteString("\n")

	sb.WriteString(m.styles.Subtle.Render("Items:"))
	sb.WriteString("\n")
	for _, l := range m.lines {
		fmt.Fprintf(&sb, "  • %s x%d = %s\n", l.Title, l.Quantity, m.dual(l.LineTotal()))
	}
	sb.WriteString("\n")
	m.writeTotals(&sb, m.deps.Pricing.Totals(m.lines))

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) viewResults() string {
	var sb strings.Builder

	if m.results.AllSucceeded() {
		sb.WriteString(m.styles.Success.Render("✓ Order placed successfully!"))
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "%d item(s) ordered. A confirmation will be sent to %s.\n", len(m.results), m.input.Email)
	} else {
		failures := m.results.Failures()
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("%d of %d item(s) could not be ordered", len(failures), len(m.results))))
		sb.WriteString("\n\n")
		for _, r := range m.results {
			if r.OK() {
				sb.WriteString(m.styles.Success.Render(fmt.Sprintf("  ✓ %d. %s", r.Index+1, r.Title)))
			} else {
				sb.WriteString(m.styles.Error.Render(fmt.Sprintf("  ✗ %d. %s: %s", r.Index+1, r.Title, r.Err.Message)))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(m.styles.Subtle.Render("Your cart was kept. You can retry the whole order."))
		sb.WriteString("\n")
	}

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}

func (m Model) viewPayment() string {
	var sb strings.Builder

	sb.WriteString(m.styles.HeaderTitle.Render("Card Payment"))
	sb.WriteString("\n\n")

	switch {
	case m.captured != nil:
		sb.WriteString(m.styles.Success.Render("✓ Payment " + strings.ToLower(m.captured.Status)))
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Reference: %s\n", m.captured.ID)
	case m.submitting:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Confirming payment...")
		sb.WriteString("\n")
	case m.redirect != nil:
		sb.WriteString("Open this link in your browser to approve the payment:\n\n")
		sb.WriteString(m.styles.Link.Render(m.redirect.ApprovalURL))
		sb.WriteString("\n\n")
		sb.WriteString(m.styles.Subtle.Render("Press c once you have approved it."))
		sb.WriteString("\n")
	}

	m.footer(&sb)
	return m.styles.Box.Render(sb.String())
}
