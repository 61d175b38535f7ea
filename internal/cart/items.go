// Package cart implements the buyer's cart and wishlist.
//
// The list functions in this file are pure. Cart and Wishlist wrap them in a
// load, mutate, save sequence against the store.
package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// LineItem is one distinct product in the cart.
type LineItem struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Brand     string          `json:"brand"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is unit price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// WishlistEntry is a liked product.
type WishlistEntry struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Brand    string          `json:"brand"`
	Price    decimal.Decimal `json:"price"`
	ImageRef string          `json:"image"`
}

// ToggleResult reports what ToggleLike did.
type ToggleResult string

const (
	Added   ToggleResult = "added"
	Removed ToggleResult = "removed"
)

// ResolveID returns the product's id, or a fallback so the product is never
// dropped: the title with spaces replaced by underscores, else a name-based
// uuid of the remaining fields. The same product always resolves to the same id.
func ResolveID(p storefront.Product) string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	if title := strings.TrimSpace(p.Title); title != "" {
		return strings.ToLower(storefront.Slug(title))
	}
	name := strings.Join([]string{p.Brand, p.Price.String(), p.ImageURL, p.Description}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// NewLineItem converts a product into a cart line.
func NewLineItem(p storefront.Product, quantity int) LineItem {
	return LineItem{
		ID:        ResolveID(p),
		Title:     p.Title,
		Brand:     p.Brand,
		UnitPrice: p.Price,
		ImageRef:  p.ImageURL,
		Quantity:  quantity,
	}
}

// NewWishlistEntry converts a product into a wishlist entry.
func NewWishlistEntry(p storefront.Product) WishlistEntry {
	return WishlistEntry{
		ID:       ResolveID(p),
		Title:    p.Title,
		Brand:    p.Brand,
		Price:    p.Price,
		ImageRef: p.ImageURL,
	}
}

// AddLine merges item into lines. An existing line gains item.Quantity and
// keeps its descriptive fields, only filling the ones that are empty.
func AddLine(lines []LineItem, item LineItem) []LineItem {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	for i := range lines {
		if lines[i].ID != item.ID {
			continue
		}
		l := &lines[i]
		l.Quantity += item.Quantity
		if l.Title == "" {
			l.Title = item.Title
		}
		if l.Brand == "" {
			l.Brand = item.Brand
		}
		if l.ImageRef == "" {
			l.ImageRef = item.ImageRef
		}
		if l.UnitPrice.IsZero() {
			l.UnitPrice = item.UnitPrice
		}
		return lines
	}
	return append(lines, item)
}

// SetQuantity sets the quantity of id. A quantity of zero or less removes the
// line; an unknown id leaves lines unchanged.
func SetQuantity(lines []LineItem, id string, quantity int) []LineItem {
	if quantity <= 0 {
		return RemoveLine(lines, id)
	}
	for i := range lines {
		if lines[i].ID == id {
			lines[i].Quantity = quantity
			break
		}
	}
	return lines
}

// RemoveLine drops id from lines if present.
func RemoveLine(lines []LineItem, id string) []LineItem {
	out := lines[:0]
	for _, l := range lines {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}

// ItemCount sums quantities.
func ItemCount(lines []LineItem) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Subtotal sums line totals.
func Subtotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// ToggleEntry removes entry if its id is present, else inserts it first.
func ToggleEntry(entries []WishlistEntry, entry WishlistEntry) ([]WishlistEntry, ToggleResult) {
	for i, e := range entries {
		if e.ID == entry.ID {
			out := make([]WishlistEntry, 0, len(entries)-1)
			out = append(out, entries[:i]...)
			return append(out, entries[i+1:]...), Removed
		}
	}
	out := make([]WishlistEntry, 0, len(entries)+1)
	out = append(out, entry)
	return append(out, entries...), Added
}

// containsEntry reports whether id is in entries.
func containsEntry(entries []WishlistEntry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
