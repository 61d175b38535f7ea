package storefront

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PlaceholderImage is used when a product carries no usable image reference.
const PlaceholderImage = "/static/images/placeholder.png"

// ============================================
// Catalog Types
// ============================================

// Product is the canonical product shape. Upstream payloads disagree on field
// names, so UnmarshalJSON resolves the first non-empty of several keys once,
// here, and nothing downstream has to.
type Product struct {
	ID          string
	Title       string
	Brand       string
	Price       decimal.Decimal
	ImageURL    string
	Thumbnails  []string
	Description string
}

var (
	idKeys          = []string{"id", "product_id", "_id"}
	titleKeys       = []string{"title", "name", "product_title"}
	brandKeys       = []string{"brand", "brand_name"}
	priceKeys       = []string{"price", "unit_price", "amount"}
	imageKeys       = []string{"image_url", "image", "thumbnail"}
	descriptionKeys = []string{"description", "details"}
)

// UnmarshalJSON implements json.Unmarshaler.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding product: %w", err)
	}

	*p = Product{
		ID:          firstString(raw, idKeys...),
		Title:       firstString(raw, titleKeys...),
		Brand:       firstString(raw, brandKeys...),
		Price:       firstDecimal(raw, priceKeys...),
		ImageURL:    firstString(raw, imageKeys...),
		Description: firstString(raw, descriptionKeys...),
	}
	if p.Price.IsNegative() {
		p.Price = decimal.Zero
	}
	p.Thumbnails = parseThumbnails(raw["thumbnails"])
	if len(p.Thumbnails) == 0 && p.ImageURL != "" {
		p.Thumbnails = []string{p.ImageURL}
	}
	return nil
}

// MarshalJSON writes the canonical field names.
func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		Brand       string          `json:"brand,omitempty"`
		Price       decimal.Decimal `json:"price"`
		ImageURL    string          `json:"image_url,omitempty"`
		Thumbnails  []string        `json:"thumbnails,omitempty"`
		Description string          `json:"description,omitempty"`
	}{p.ID, p.Title, p.Brand, p.Price, p.ImageURL, p.Thumbnails, p.Description})
}

// Image returns the static URL of the product's main image.
func (p Product) Image() string {
	return StaticURL(p.ImageURL)
}

// StaticURL turns a stored image reference into a path the site can serve.
// Absolute URLs and rooted paths are kept; bare file names live under /static/.
func StaticURL(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return PlaceholderImage
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "/"):
		return ref
	default:
		return "/static/" + ref
	}
}

func firstString(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		// Numeric ids are common upstream.
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func firstDecimal(raw map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || string(v) == "null" || string(v) == `""` {
			continue
		}
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// parseThumbnails accepts a JSON list or a comma-joined string.
func parseThumbnails(v json.RawMessage) []string {
	if len(v) == 0 {
		return nil
	}

	var parts []string
	var list []string
	var joined string
	switch {
	case json.Unmarshal(v, &list) == nil:
		parts = list
	case json.Unmarshal(v, &joined) == nil:
		parts = strings.Split(joined, ",")
	default:
		return nil
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DiscountSetting is the site-wide automatic checkout discount.
type DiscountSetting struct {
	Percent decimal.Decimal `json:"percent"`
}

// Coupon is a promo code from the remote catalog.
type Coupon struct {
	Code          string          `json:"code"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Description   string          `json:"description,omitempty"`
}

// IsPercent reports whether the coupon takes a percentage off.
func (c Coupon) IsPercent() bool {
	return strings.EqualFold(c.DiscountType, "percent")
}

// Label is the human-readable option text for the coupon.
func (c Coupon) Label() string {
	if c.Description == "" {
		return c.Code
	}
	return fmt.Sprintf("%s (%s)", c.Code, c.Description)
}

// Country is a shipping destination.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ============================================
// Order Types
// ============================================

// OrderRequest creates one order for a single cart line.
type OrderRequest struct {
	CustomerName     string           `json:"customer_name"`
	CustomerEmail    string           `json:"customer_email"`
	CustomerPhone    string           `json:"customer_phone"`
	CustomerAddress  string           `json:"customer_address"`
	CustomerCountry  string           `json:"customer_country"`
	CustomerCity     string           `json:"customer_city,omitempty"`
	ProductID        string           `json:"product_id"`
	ProductTitle     string           `json:"product_title"`
	Quantity         int              `json:"quantity"`
	Status           string           `json:"status"`
	PaymentMethod    string           `json:"payment_method"`
	Date             string           `json:"date"`
	PromoCode        string           `json:"promo_code,omitempty"`
	DeliveryOptionID string           `json:"delivery_option_id,omitempty"`
	DeliveryProvider string           `json:"delivery_provider,omitempty"`
	DeliveryLabel    string           `json:"delivery_label,omitempty"`
	DeliveryFee      *decimal.Decimal `json:"delivery_fee,omitempty"`
}

// OrderAttempt is the analytics record sent for each line at checkout.
type OrderAttempt struct {
	Email   string `json:"email"`
	Product string `json:"product"`
	Qty     int    `json:"qty"`
	Status  string `json:"status"`
}

// ============================================
// Payment Types
// ============================================

// PaymentItem is one line as the payment provider sees it.
type PaymentItem struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Currency  string          `json:"currency"`
}

// CreatePaymentOrderRequest asks the server to open a provider order.
type CreatePaymentOrderRequest struct {
	Items     []PaymentItem `json:"items"`
	Currency  string        `json:"currency"`
	ReturnURL string        `json:"return_url,omitempty"`
	CancelURL string        `json:"cancel_url,omitempty"`
	BrandName string        `json:"brand_name,omitempty"`
}

// Link is a hypermedia reference in a provider response.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// PaymentOrder is the provider order returned by the create endpoint.
type PaymentOrder struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Links  []Link `json:"links"`
}

// LinkByRel returns the first link whose rel matches any of rels.
func (o PaymentOrder) LinkByRel(rels ...string) (Link, bool) {
	for _, l := range o.Links {
		for _, rel := range rels {
			if strings.EqualFold(l.Rel, rel) && l.Href != "" {
				return l, true
			}
		}
	}
	return Link{}, false
}

// PaymentCustomer carries the contact fields sent with a capture.
type PaymentCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// CapturePaymentRequest completes an approved provider order.
type CapturePaymentRequest struct {
	OrderID  string          `json:"orderID"`
	Customer PaymentCustomer `json:"customer"`
	Items    []PaymentItem   `json:"items"`
}

// CaptureResult is the server's answer to a capture.
type CaptureResult struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}
