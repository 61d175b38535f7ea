package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/thomas/storefront-terminal-go/internal/checkout"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
)

const (
	otherCountry      = "OTHER"
	noPromo           = ""
	paymentMethodCard = "Card"
)

// checkoutInput holds what the buyer entered in the checkout form. The form
// binds to its fields, so it lives behind a pointer.
type checkoutInput struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	Country       string
	ManualCountry string
	City          string
	PaymentMethod string
	DeliveryID    string
	PromoCode     string
}

func newCheckoutInput(state *pricing.State) *checkoutInput {
	in := &checkoutInput{PaymentMethod: checkout.DefaultPaymentMethod}
	if state != nil {
		in.DeliveryID = state.Delivery().ID
		in.PromoCode = state.PromoCode()
	}
	return in
}

// country is the selected country, or the manually entered one when the
// buyer picked "Other".
func (in *checkoutInput) country() string {
	if in.Country == otherCountry {
		return strings.TrimSpace(in.ManualCountry)
	}
	return in.Country
}

func (in *checkoutInput) customer() checkout.Customer {
	return checkout.Customer{
		Name:          strings.TrimSpace(in.Name),
		Email:         strings.TrimSpace(in.Email),
		Phone:         strings.TrimSpace(in.Phone),
		Address:       strings.TrimSpace(in.Address),
		Country:       in.country(),
		City:          strings.TrimSpace(in.City),
		PaymentMethod: in.PaymentMethod,
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func (m Model) buildCheckoutForm() *huh.Form {
	in := m.input

	countryOptions := make([]huh.Option[string], 0, len(m.countries)+1)
	for _, c := range m.countries {
		countryOptions = append(countryOptions, huh.NewOption(c.Name, c.Name))
	}
	countryOptions = append(countryOptions, huh.NewOption("Other (enter manually)", otherCountry))

	deliveryOptions := make([]huh.Option[string], 0, len(pricing.DeliveryOptions()))
	for _, d := range pricing.DeliveryOptions() {
		label := fmt.Sprintf("%s (%s)", d.Title(), m.dual(d.FeeInBase(m.deps.Pricing.Rate())))
		deliveryOptions = append(deliveryOptions, huh.NewOption(label, d.ID))
	}

	promoOptions := []huh.Option[string]{huh.NewOption("No promo code", noPromo)}
	for _, c := range m.deps.Pricing.Coupons() {
		promoOptions = append(promoOptions, huh.NewOption(c.Label(), c.Code))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Full Name").
				Value(&in.Name).
				Validate(required("name")),
			huh.NewInput().
				Title("Email").
				Value(&in.Email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("email is required")
					}
					if !strings.Contains(s, "@") {
						return fmt.Errorf("invalid email format")
					}
					return nil
				}),
			huh.NewInput().
				Title("Phone").
				Value(&in.Phone).
				Validate(required("phone")),
			huh.NewInput().
				Title("Street Address").
				Value(&in.Address).
				Validate(required("address")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Country").
				Options(countryOptions...).
				Height(8).
				Value(&in.Country),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Country (manual)").
				Value(&in.ManualCountry).
				Validate(required("country")),
		).WithHideFunc(func() bool { return in.Country != otherCountry }),
		huh.NewGroup(
			huh.NewInput().
				Title("City").
				Value(&in.City),
			huh.NewSelect[string]().
				Title("Delivery").
				Options(deliveryOptions...).
				Value(&in.DeliveryID),
			huh.NewSelect[string]().
				Title("Promo Code").
				Options(promoOptions...).
				Value(&in.PromoCode),
			huh.NewSelect[string]().
				Title("Payment Method").
				Options(
					huh.NewOption(checkout.DefaultPaymentMethod, checkout.DefaultPaymentMethod),
					huh.NewOption("Card (PayPal)", paymentMethodCard),
				).
				Value(&in.PaymentMethod),
		),
	).WithShowHelp(true).WithShowErrors(true)
}

func (m Model) updateCheckoutForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.checkoutForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.checkoutForm = f
	}

	switch m.checkoutForm.State {
	case huh.StateCompleted:
		m.applyCheckoutChoices()
		m.checkoutForm = nil
		m.viewState = ViewReview
		return m, nil
	case huh.StateAborted:
		m.checkoutForm = nil
		m.viewState = ViewCart
		return m, nil
	}
	return m, cmd
}

// applyCheckoutChoices pushes the delivery and promo picks into the pricing
// state so the review shows final totals.
func (m Model) applyCheckoutChoices() {
	m.deps.Pricing.SelectDelivery(context.Background(), m.input.DeliveryID)
	m.deps.Pricing.SelectPromo(m.input.PromoCode)
}
