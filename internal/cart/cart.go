package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

// Cart is the persisted cart of one buyer. Each mutation loads the list,
// changes it and saves it while holding the lock, so concurrent calls on the
// same Cart never interleave between load and save. Writes from other
// sessions sharing the store are last-write-wins.
type Cart struct {
	mu    sync.Mutex
	store *storage.Store
}

// New returns a cart persisted in store.
func New(store *storage.Store) *Cart {
	return &Cart{store: store}
}

// Lines returns the current cart contents.
func (c *Cart) Lines(ctx context.Context) []LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// AddItem adds quantity of p, merging with an existing line.
func (c *Cart) AddItem(ctx context.Context, p storefront.Product, quantity int) ([]LineItem, error) {
	return c.mutate(ctx, func(lines []LineItem) []LineItem {
		return AddLine(lines, NewLineItem(p, quantity))
	})
}

// ChangeQuantity sets the quantity of id, removing the line when quantity <= 0.
func (c *Cart) ChangeQuantity(ctx context.Context, id string, quantity int) ([]LineItem, error) {
	return c.mutate(ctx, func(lines []LineItem) []LineItem {
		return SetQuantity(lines, id, quantity)
	})
}

// RemoveItem deletes id. Removing a missing id is not an error.
func (c *Cart) RemoveItem(ctx context.Context, id string) ([]LineItem, error) {
	return c.mutate(ctx, func(lines []LineItem) []LineItem {
		return RemoveLine(lines, id)
	})
}

// Clear empties the cart.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Remove(ctx, storage.KeyCart); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func (c *Cart) mutate(ctx context.Context, fn func([]LineItem) []LineItem) ([]LineItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := fn(c.load(ctx))
	if err := storage.SaveList(ctx, c.store, storage.KeyCart, lines); err != nil {
		return lines, fmt.Errorf("saving cart: %w", err)
	}
	return lines, nil
}

func (c *Cart) load(ctx context.Context) []LineItem {
	return storage.LoadList[LineItem](ctx, c.store, storage.KeyCart)
}

// Wishlist is the persisted list of liked products, most recent first.
type Wishlist struct {
	mu    sync.Mutex
	store *storage.Store
}

// NewWishlist returns a wishlist persisted in store.
func NewWishlist(store *storage.Store) *Wishlist {
	return &Wishlist{store: store}
}

// Entries returns the liked products.
func (w *Wishlist) Entries(ctx context.Context) []WishlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load(ctx)
}

// IsLiked reports whether the product is in the wishlist.
func (w *Wishlist) IsLiked(ctx context.Context, p storefront.Product) bool {
	return containsEntry(w.Entries(ctx), ResolveID(p))
}

// ToggleLike removes p if liked, otherwise adds it at the front.
func (w *Wishlist) ToggleLike(ctx context.Context, p storefront.Product) (ToggleResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, result := ToggleEntry(w.load(ctx), NewWishlistEntry(p))
	if err := storage.SaveList(ctx, w.store, storage.KeyLikes, entries); err != nil {
		return result, fmt.Errorf("saving wishlist: %w", err)
	}
	return result, nil
}

// Unlike removes id if present.
func (w *Wishlist) Unlike(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.load(ctx)
	if !containsEntry(entries, id) {
		return nil
	}
	entries, _ = ToggleEntry(entries, WishlistEntry{ID: id})
	if err := storage.SaveList(ctx, w.store, storage.KeyLikes, entries); err != nil {
		return fmt.Errorf("saving wishlist: %w", err)
	}
	return nil
}

func (w *Wishlist) load(ctx context.Context) []WishlistEntry {
	return storage.LoadList[WishlistEntry](ctx, w.store, storage.KeyLikes)
}
