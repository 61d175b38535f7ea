package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryOption is a shipping choice from the static catalog.
type DeliveryOption struct {
	ID           string
	ProviderName string
	ProviderLink string
	Label        string
	Fee          decimal.Decimal
	// FeeCurrency is empty when Fee is in the base currency. Any other value
	// means Fee is quoted in the display currency.
	FeeCurrency string
}

// FeeInBase returns the fee in the base currency, converting a display-currency
// fee with rate and rounding to cents.
func (d DeliveryOption) FeeInBase(rate decimal.Decimal) decimal.Decimal {
	if d.FeeCurrency == "" || !rate.IsPositive() {
		return d.Fee
	}
	return d.Fee.Div(rate).Round(2)
}

// Title is "<provider> - <label>".
func (d DeliveryOption) Title() string {
	if d.Label == "" {
		return d.ProviderName
	}
	return d.ProviderName + " - " + d.Label
}

var deliveryCatalog = []DeliveryOption{
	{
		ID:           "royal-mail-standard",
		ProviderName: "Royal Mail",
		ProviderLink: "https://www.royalmail.com/track-your-item",
		Label:        "Standard, 3-5 working days",
		Fee:          decimal.RequireFromString("3.00"),
	},
	{
		ID:           "dpd-next-day",
		ProviderName: "DPD",
		ProviderLink: "https://www.dpd.co.uk/apps/tracking/",
		Label:        "Next working day",
		Fee:          decimal.RequireFromString("6.95"),
	},
	{
		ID:           "dhl-express-intl",
		ProviderName: "DHL Express",
		ProviderLink: "https://www.dhl.com/gb-en/home/tracking.html",
		Label:        "International express, 2-4 days",
		Fee:          decimal.RequireFromString("24.00"),
		FeeCurrency:  "USD",
	},
	{
		ID:           "collect",
		ProviderName: "Click & Collect",
		Label:        "Collect in store",
		Fee:          decimal.Zero,
	},
}

// DeliveryOptions returns a copy of the catalog. The first entry is the default.
func DeliveryOptions() []DeliveryOption {
	out := make([]DeliveryOption, len(deliveryCatalog))
	copy(out, deliveryCatalog)
	return out
}

// FindDeliveryOption looks up id, falling back to the default option.
func FindDeliveryOption(id string) DeliveryOption {
	for _, d := range deliveryCatalog {
		if strings.EqualFold(d.ID, id) {
			return d
		}
	}
	return deliveryCatalog[0]
}
