package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// ErrMissingApprovalLink means the provider order has no buyer-approval link.
var ErrMissingApprovalLink = errors.New("payment provider did not return an approval link")

// approvalRels are the link relations that mark the buyer-approval step.
var approvalRels = []string{"approve", "approval_url"}

// credentialHints appear in provider errors caused by server configuration.
var credentialHints = []string{"invalid_client", "unauthorized", "authentication", "credential", "client id", "secret"}

// PaymentProviderError is a failed call to the payment endpoints.
type PaymentProviderError struct {
	Status int
	Detail string
	Err    error
}

func (e *PaymentProviderError) Error() string {
	if e.CredentialProblem() {
		return "payment provider rejected the shop's credentials: " + e.Detail
	}
	return "payment failed: " + e.Detail
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

// CredentialProblem reports whether the failure looks like a configuration or
// authorization problem on the shop side rather than a transient error.
func (e *PaymentProviderError) CredentialProblem() bool {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	detail := strings.ToLower(e.Detail)
	for _, hint := range credentialHints {
		if strings.Contains(detail, hint) {
			return true
		}
	}
	return false
}

func newPaymentProviderError(err error) *PaymentProviderError {
	return &PaymentProviderError{
		Status: storefront.StatusCode(err),
		Detail: storefront.Detail(err),
		Err:    err,
	}
}

// PaymentClient is the subset of the storefront API used for card payments.
type PaymentClient interface {
	CreatePaymentOrder(ctx context.Context, req storefront.CreatePaymentOrderRequest) (*storefront.PaymentOrder, error)
	CapturePaymentOrder(ctx context.Context, req storefront.CapturePaymentRequest) (*storefront.CaptureResult, error)
}

// PaymentOptions configures a card checkout.
type PaymentOptions struct {
	Currency  string
	ReturnURL string
	CancelURL string
	BrandName string
}

// Redirect is where the buyer must go to approve the payment.
type Redirect struct {
	OrderID     string
	ApprovalURL string
}

// Payments drives the redirect-based card flow.
type Payments struct {
	client  PaymentClient
	store   *storage.Store
	siteURL string
	logger  *zap.Logger
}

// NewPayments creates the payment helper. siteURL is used for the default
// return and cancel pages; store keeps the pending items for the capture.
func NewPayments(client PaymentClient, store *storage.Store, siteURL string, logger *zap.Logger) *Payments {
	return &Payments{
		client:  client,
		store:   store,
		siteURL: strings.TrimRight(siteURL, "/"),
		logger:  logging.OrNop(logger),
	}
}

// ItemsFromCart converts cart lines to provider items.
func ItemsFromCart(lines []cart.LineItem, currency string) []storefront.PaymentItem {
	items := make([]storefront.PaymentItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, storefront.PaymentItem{
			ID:        l.ID,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Currency:  currency,
		})
	}
	return items
}

// InitiateCardCheckout opens a provider order and returns the approval link
// the buyer must visit. It does not retry.
func (p *Payments) InitiateCardCheckout(ctx context.Context, items []storefront.PaymentItem, opts PaymentOptions) (*Redirect, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	req := storefront.CreatePaymentOrderRequest{
		Items:     items,
		Currency:  opts.Currency,
		ReturnURL: opts.ReturnURL,
		CancelURL: opts.CancelURL,
		BrandName: opts.BrandName,
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.ReturnURL == "" {
		req.ReturnURL = p.siteURL + "/paypal/return"
	}
	if req.CancelURL == "" {
		req.CancelURL = p.siteURL + "/paypal/cancel"
	}
	if req.BrandName == "" {
		req.BrandName = "Store"
	}

	// Persisted first so the return step can capture even if this session ends.
	if err := storage.SaveList(ctx, p.store, storage.KeyPayPalItems, items); err != nil {
		p.logger.Warn("saving pending payment items", zap.Error(err))
	}

	order, err := p.client.CreatePaymentOrder(ctx, req)
	if err != nil {
		perr := newPaymentProviderError(err)
		p.logger.Error("creating payment order",
			zap.Int("status", perr.Status),
			zap.Bool("credential_problem", perr.CredentialProblem()),
			zap.Error(err))
		return nil, perr
	}

	link, ok := order.LinkByRel(approvalRels...)
	if !ok {
		p.logger.Error("payment order without approval link", zap.String("order_id", order.ID))
		return nil, ErrMissingApprovalLink
	}

	if order.ID != "" {
		if err := p.store.Save(ctx, storage.KeyPayPalOrderID, order.ID); err != nil {
			p.logger.Warn("saving payment order id", zap.Error(err))
		}
	}
	return &Redirect{OrderID: order.ID, ApprovalURL: link.Href}, nil
}

// PendingOrderID returns the order awaiting capture, if any.
func (p *Payments) PendingOrderID(ctx context.Context) string {
	var id string
	p.store.Load(ctx, storage.KeyPayPalOrderID, &id)
	return id
}

// Capture completes an approved order using the items saved when it was
// created, and clears the pending payment state on success.
func (p *Payments) Capture(ctx context.Context, orderID string, customer Customer) (*storefront.CaptureResult, error) {
	if orderID == "" {
		orderID = p.PendingOrderID(ctx)
	}
	if orderID == "" {
		return nil, errors.New("no payment awaiting capture")
	}

	items := storage.LoadList[storefront.PaymentItem](ctx, p.store, storage.KeyPayPalItems)
	result, err := p.client.CapturePaymentOrder(ctx, storefront.CapturePaymentRequest{
		OrderID: orderID,
		Customer: storefront.PaymentCustomer{
			Name:    customer.Name,
			Email:   customer.Email,
			Phone:   customer.Phone,
			Address: customer.Address,
		},
		Items: items,
	})
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", orderID, newPaymentProviderError(err))
	}

	for _, key := range []storage.Key{storage.KeyPayPalItems, storage.KeyPayPalOrderID} {
		if err := p.store.Remove(ctx, key); err != nil {
			p.logger.Warn("clearing payment state", zap.String("key", string(key)), zap.Error(err))
		}
	}
	return result, nil
}
