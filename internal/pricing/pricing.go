// Package pricing computes cart totals in the base currency and converts them
// for display.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// MaxCombinedPercent caps the sum of the site-wide and promo discounts.
var MaxCombinedPercent = decimal.NewFromInt(95)

var hundred = decimal.NewFromInt(100)

// Totals is the breakdown of a cart in the base currency. Amounts are exact;
// round only when displaying.
type Totals struct {
	Subtotal           decimal.Decimal
	CombinedPercent    decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	DeliveryFee        decimal.Decimal
	GrandTotal         decimal.Decimal
	ItemCount          int
}

// ComputeTotals prices lines with the given discounts and delivery option.
// rate converts the base currency into the display currency and is only used
// when the delivery fee is quoted in the display currency.
func ComputeTotals(lines []cart.LineItem, globalPercent, promoPercent decimal.Decimal, delivery DeliveryOption, rate decimal.Decimal) Totals {
	subtotal := cart.Subtotal(lines)
	combined := CombinePercents(globalPercent, promoPercent)
	discount := subtotal.Mul(combined).Div(hundred)
	discounted := subtotal.Sub(discount)
	fee := delivery.FeeInBase(rate)

	return Totals{
		Subtotal:           subtotal,
		CombinedPercent:    combined,
		DiscountAmount:     discount,
		DiscountedSubtotal: discounted,
		DeliveryFee:        fee,
		GrandTotal:         discounted.Add(fee),
		ItemCount:          cart.ItemCount(lines),
	}
}

// CombinePercents adds the two discounts, clamped to [0, 95].
func CombinePercents(globalPercent, promoPercent decimal.Decimal) decimal.Decimal {
	combined := globalPercent.Add(promoPercent)
	if combined.GreaterThan(MaxCombinedPercent) {
		return MaxCombinedPercent
	}
	if combined.IsNegative() {
		return decimal.Zero
	}
	return combined
}

// PromoPercent returns the percent off for code. Codes that are unknown or
// not percentage based give zero.
func PromoPercent(coupons []storefront.Coupon, code string) decimal.Decimal {
	if code == "" {
		return decimal.Zero
	}
	for _, c := range coupons {
		if c.Code == code {
			if c.IsPercent() && c.DiscountValue.IsPositive() {
				return c.DiscountValue
			}
			return decimal.Zero
		}
	}
	return decimal.Zero
}

// Convert returns amount in the display currency. The result is not rounded.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
}

// Format renders amount with two decimals and the currency symbol.
func Format(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sign + sym + s
	}
	return fmt.Sprintf("%s%s %s", sign, s, strings.ToUpper(currency))
}

// FormatDual renders amount in base and converted display currency,
// e.g. "£25.00 ($31.25)".
func FormatDual(amount, rate decimal.Decimal, base, display string) string {
	return fmt.Sprintf("%s (%s)", Format(amount, base), Format(Convert(amount, rate), display))
}
