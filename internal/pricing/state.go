package pricing

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/fx"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// State holds the pricing inputs of one session: the site-wide discount, the
// promo catalog and selection, the exchange rate and the chosen delivery
// option. It is safe for concurrent use.
type State struct {
	mu sync.RWMutex

	baseCurrency    string
	displayCurrency string

	globalPercent decimal.Decimal
	coupons       []storefront.Coupon
	promoCode     string
	rate          decimal.Decimal
	deliveryID    string

	store  *storage.Store
	logger *zap.Logger
}

// NewState creates a session pricing state. The delivery choice and the last
// cached exchange rate are restored from store; without a cached rate the
// state starts at defaultRate, or fx.DefaultRate when that is not positive.
func NewState(ctx context.Context, store *storage.Store, baseCurrency, displayCurrency string, defaultRate decimal.Decimal, logger *zap.Logger) *State {
	if !defaultRate.IsPositive() {
		defaultRate = fx.DefaultRate
	}
	s := &State{
		baseCurrency:    baseCurrency,
		displayCurrency: displayCurrency,
		rate:            defaultRate,
		deliveryID:      deliveryCatalog[0].ID,
		store:           store,
		logger:          logging.OrNop(logger),
	}

	if store == nil {
		return s
	}
	var saved string
	if store.Load(ctx, storage.KeyDeliveryOption, &saved) {
		s.deliveryID = FindDeliveryOption(saved).ID
	}
	var cached fx.CacheEntry
	if store.Load(ctx, storage.KeyFXRate, &cached) && cached.Rate.IsPositive() {
		s.rate = cached.Rate
	}
	return s
}

// BaseCurrency is the currency totals are computed in.
func (s *State) BaseCurrency() string { return s.baseCurrency }

// DisplayCurrency is the secondary currency shown next to totals.
func (s *State) DisplayCurrency() string { return s.displayCurrency }

// SetGlobalPercent records the site-wide discount.
func (s *State) SetGlobalPercent(p decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalPercent = p
}

// GlobalPercent returns the site-wide discount.
func (s *State) GlobalPercent() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalPercent
}

// SetCoupons replaces the promo catalog. A selected code that is no longer
// offered is cleared.
func (s *State) SetCoupons(coupons []storefront.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupons = append([]storefront.Coupon(nil), coupons...)
	for _, c := range s.coupons {
		if c.Code == s.promoCode {
			return
		}
	}
	s.promoCode = ""
}

// Coupons returns the promo catalog.
func (s *State) Coupons() []storefront.Coupon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storefront.Coupon(nil), s.coupons...)
}

// SelectPromo chooses a promo code; "" clears it. Unknown codes are kept so
// they are still sent with the order, but they price at zero.
func (s *State) SelectPromo(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoCode = code
}

// PromoCode returns the selected promo code.
func (s *State) PromoCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promoCode
}

// PromoPercent returns the selected promo's percent.
func (s *State) PromoPercent() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PromoPercent(s.coupons, s.promoCode)
}

// SetRate records the exchange rate. Non-positive rates are ignored.
func (s *State) SetRate(r decimal.Decimal) {
	if !r.IsPositive() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

// Rate returns the exchange rate.
func (s *State) Rate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

// SelectDelivery chooses a delivery option and remembers it for next time.
func (s *State) SelectDelivery(ctx context.Context, id string) DeliveryOption {
	opt := FindDeliveryOption(id)

	s.mu.Lock()
	s.deliveryID = opt.ID
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, storage.KeyDeliveryOption, opt.ID); err != nil {
			s.logger.Warn("saving delivery option", zap.Error(err))
		}
	}
	return opt
}

// Delivery returns the selected delivery option.
func (s *State) Delivery() DeliveryOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FindDeliveryOption(s.deliveryID)
}

// Totals prices lines with the current state.
func (s *State) Totals(lines []cart.LineItem) Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeTotals(lines, s.globalPercent, PromoPercent(s.coupons, s.promoCode), FindDeliveryOption(s.deliveryID), s.rate)
}

// Dual formats amount in both currencies.
func (s *State) Dual(amount decimal.Decimal) string {
	return FormatDual(amount, s.Rate(), s.baseCurrency, s.displayCurrency)
}
