// Package checkout submits cart orders and drives the card payment redirect.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

const (
	// DefaultPaymentMethod is used when the buyer picks none.
	DefaultPaymentMethod = "Cash on Delivery"
	orderStatusPending   = "Pending"
	orderDateLayout      = "2006-01-02 15:04:05"
	attemptTimeout       = 15 * time.Second

	// LineTimeout bounds each order call on its own.
	LineTimeout = 15 * time.Second
)

var (
	// ErrEmptyCart blocks submission of an empty cart.
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrMissingCountry blocks submission without a shipping country.
	ErrMissingCountry = errors.New("please select a shipping country")
)

// OrderSubmissionError is the failure of a single cart line.
type OrderSubmissionError struct {
	Index     int
	ProductID string
	Message   string
	Err       error
}

func (e *OrderSubmissionError) Error() string {
	return fmt.Sprintf("item %d (%s): %s", e.Index+1, e.ProductID, e.Message)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

// Customer is the contact and shipping information entered at checkout.
type Customer struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	Country       string
	City          string
	PaymentMethod string
	// Date overrides the order timestamp; empty means now.
	Date string
}

// ItemResult is the outcome of one line's order call.
type ItemResult struct {
	Index     int
	ProductID string
	Title     string
	Err       *OrderSubmissionError
}

// OK reports whether the line was ordered.
func (r ItemResult) OK() bool { return r.Err == nil }

// Results holds one ItemResult per cart line, in cart order.
type Results []ItemResult

// AllSucceeded reports whether every line was ordered.
func (rs Results) AllSucceeded() bool {
	return len(rs) > 0 && len(rs.Failures()) == 0
}

// Failures returns the failed lines.
func (rs Results) Failures() []ItemResult {
	var out []ItemResult
	for _, r := range rs {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// OrderClient is the subset of the storefront API used to place orders.
type OrderClient interface {
	CreateOrder(ctx context.Context, req storefront.OrderRequest, idempotencyKey string) error
	LogOrderAttempt(ctx context.Context, attempt storefront.OrderAttempt) error
}

// Submitter places one order per cart line.
type Submitter struct {
	client      OrderClient
	session     *storage.Store
	logger      *zap.Logger
	nowFunc     func() time.Time
	lineTimeout time.Duration
}

// NewSubmitter creates a submitter. session is the per-session store holding
// the idempotency token.
func NewSubmitter(client OrderClient, session *storage.Store, logger *zap.Logger) *Submitter {
	return &Submitter{
		client:      client,
		session:     session,
		logger:      logging.OrNop(logger),
		nowFunc:     time.Now,
		lineTimeout: LineTimeout,
	}
}

// IdempotencyKey returns the session's token, creating it on first use.
func (s *Submitter) IdempotencyKey(ctx context.Context) string {
	var key string
	if s.session.Load(ctx, storage.KeyIdempotency, &key) && key != "" {
		return key
	}
	key = uuid.NewString()
	if err := s.session.Save(ctx, storage.KeyIdempotency, key); err != nil {
		s.logger.Warn("saving idempotency key", zap.Error(err))
	}
	return key
}

// SubmitOrders posts every line in order and returns one result per line. A
// failing line does not stop the rest. Each call gets its own LineTimeout
// under ctx. The delivery fee is sent in the base currency, converted with
// rate when the option is quoted in the display currency. The only errors
// returned are ErrEmptyCart and ErrMissingCountry, both before any request
// is made.
func (s *Submitter) SubmitOrders(ctx context.Context, customer Customer, lines []cart.LineItem, promoCode string, delivery *pricing.DeliveryOption, rate decimal.Decimal) (Results, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	country := strings.TrimSpace(customer.Country)
	if country == "" {
		return nil, ErrMissingCountry
	}

	base := storefront.OrderRequest{
		CustomerName:    strings.TrimSpace(customer.Name),
		CustomerEmail:   strings.TrimSpace(customer.Email),
		CustomerPhone:   strings.TrimSpace(customer.Phone),
		CustomerAddress: strings.TrimSpace(customer.Address),
		CustomerCountry: country,
		CustomerCity:    strings.TrimSpace(customer.City),
		Status:          orderStatusPending,
		PaymentMethod:   customer.PaymentMethod,
		Date:            customer.Date,
		PromoCode:       strings.TrimSpace(promoCode),
	}
	if base.PaymentMethod == "" {
		base.PaymentMethod = DefaultPaymentMethod
	}
	if base.Date == "" {
		base.Date = s.nowFunc().Format(orderDateLayout)
	}
	if delivery != nil {
		fee := delivery.FeeInBase(rate)
		base.DeliveryOptionID = delivery.ID
		base.DeliveryProvider = delivery.ProviderName
		base.DeliveryLabel = delivery.Label
		base.DeliveryFee = &fee
	}

	key := s.IdempotencyKey(ctx)
	results := make(Results, 0, len(lines))

	for i, line := range lines {
		req := base
		req.ProductID = line.ID
		req.ProductTitle = line.Title
		req.Quantity = line.Quantity

		result := ItemResult{Index: i, ProductID: line.ID, Title: line.Title}
		if err := s.createOrder(ctx, req, key); err != nil {
			result.Err = &OrderSubmissionError{
				Index:     i,
				ProductID: line.ID,
				Message:   storefront.Detail(err),
				Err:       err,
			}
			s.logger.Error("order line failed",
				zap.Int("index", i),
				zap.String("product_id", line.ID),
				zap.Error(err))
		}
		results = append(results, result)
	}

	s.logger.Info("orders submitted",
		zap.Int("lines", len(results)),
		zap.Int("failed", len(results.Failures())))
	return results, nil
}

func (s *Submitter) createOrder(ctx context.Context, req storefront.OrderRequest, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.lineTimeout)
	defer cancel()
	return s.client.CreateOrder(ctx, req, key)
}

// LogAttempts records one attempt per line in the background. Failures are
// logged and otherwise ignored. The returned channel closes when done.
func (s *Submitter) LogAttempts(lines []cart.LineItem, email, status string) <-chan struct{} {
	done := make(chan struct{})
	snapshot := append([]cart.LineItem(nil), lines...)

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		defer cancel()

		for _, line := range snapshot {
			attempt := storefront.OrderAttempt{
				Email:   email,
				Product: line.Title,
				Qty:     line.Quantity,
				Status:  status,
			}
			if err := s.client.LogOrderAttempt(ctx, attempt); err != nil {
				s.logger.Debug("order attempt not logged", zap.String("product_id", line.ID), zap.Error(err))
			}
		}
	}()
	return done
}
