package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
)

func product(id, title string, price string) storefront.Product {
	return storefront.Product{
		ID:    id,
		Title: title,
		Brand: "Aldo",
		Price: decimal.RequireFromString(price),
	}
}

func setupCart(t *testing.T) (*Cart, *storage.Store) {
	t.Helper()
	store := storage.New(storage.NewMemoryBackend(), "buyer", nil)
	return New(store), store
}

func TestAddThenRemoveRestoresTotals(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCart(t)

	c.AddItem(ctx, product("a", "Tote", "10.00"), 2)
	c.AddItem(ctx, product("b", "Belt", "5.00"), 1)

	before := c.Lines(ctx)
	countBefore, subtotalBefore := ItemCount(before), Subtotal(before)

	c.AddItem(ctx, product("c", "Scarf", "7.25"), 3)
	lines, err := c.RemoveItem(ctx, "c")
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	if ItemCount(lines) != countBefore {
		t.Errorf("item count = %d, want %d", ItemCount(lines), countBefore)
	}
	if !Subtotal(lines).Equal(subtotalBefore) {
		t.Errorf("subtotal = %s, want %s", Subtotal(lines), subtotalBefore)
	}
}

func TestAddItemMergesQuantities(t *testing.T) {
	tests := []struct{ q1, q2 int }{
		{1, 1},
		{2, 5},
		{10, 3},
	}

	for _, tt := range tests {
		c, _ := setupCart(t)
		ctx := context.Background()

		c.AddItem(ctx, product("a", "Tote", "10"), tt.q1)
		lines, _ := c.AddItem(ctx, product("a", "Tote", "10"), tt.q2)

		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(lines))
		}
		if lines[0].Quantity != tt.q1+tt.q2 {
			t.Errorf("quantity = %d, want %d", lines[0].Quantity, tt.q1+tt.q2)
		}
	}
}

func TestAddItemFirstWriteWinsForDescriptiveFields(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCart(t)

	c.AddItem(ctx, storefront.Product{ID: "a", Title: "Speedy 30"}, 1)
	lines, _ := c.AddItem(ctx, storefront.Product{
		ID:       "a",
		Title:    "speedy",
		Brand:    "Louis Vuitton",
		Price:    decimal.NewFromInt(1500),
		ImageURL: "speedy.jpg",
	}, 1)

	l := lines[0]
	if l.Title != "Speedy 30" {
		t.Errorf("title overwritten: %q", l.Title)
	}
	if l.Brand != "Louis Vuitton" || l.ImageRef != "speedy.jpg" || !l.UnitPrice.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("empty fields not filled: %+v", l)
	}
}

func TestAddItemNonPositiveQuantityAddsOne(t *testing.T) {
	c, _ := setupCart(t)
	lines, _ := c.AddItem(context.Background(), product("a", "Tote", "1"), 0)
	if lines[0].Quantity != 1 {
		t.Errorf("expected quantity 1, got %d", lines[0].Quantity)
	}
}

func TestAddItemFallbackID(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCart(t)

	anonymous := storefront.Product{Brand: "B", Price: decimal.NewFromInt(5)}

	c.AddItem(ctx, storefront.Product{Title: "Silk Scarf"}, 1)
	c.AddItem(ctx, storefront.Product{Title: "Silk Scarf"}, 2)
	c.AddItem(ctx, anonymous, 1)
	c.AddItem(ctx, anonymous, 1)
	lines, _ := c.AddItem(ctx, storefront.Product{Brand: "C", Price: decimal.NewFromInt(5)}, 1)

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %+v", lines)
	}
	if lines[0].ID != "silk_scarf" || lines[0].Quantity != 3 {
		t.Errorf("title fallback not merged: %+v", lines[0])
	}
	if lines[1].ID == "" || lines[1].ID != ResolveID(anonymous) || lines[1].Quantity != 2 {
		t.Errorf("untitled product not merged under a stable id: %+v", lines[1])
	}
	if lines[2].ID == lines[1].ID {
		t.Errorf("different products share fallback id %q", lines[2].ID)
	}
}

func TestToggleLikeUntitledProductTwice(t *testing.T) {
	ctx := context.Background()
	_, store := setupCart(t)
	w := NewWishlist(store)
	w.ToggleLike(ctx, product("a", "Tote", "10"))

	anonymous := storefront.Product{Brand: "B", Price: decimal.NewFromInt(5)}
	first, _ := w.ToggleLike(ctx, anonymous)
	if first != Added || !w.IsLiked(ctx, anonymous) {
		t.Fatalf("first toggle: got %q, liked=%v", first, w.IsLiked(ctx, anonymous))
	}
	second, _ := w.ToggleLike(ctx, anonymous)
	if second != Removed {
		t.Fatalf("second toggle: expected removed, got %q", second)
	}

	entries := w.Entries(ctx)
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("wishlist not restored: %+v", entries)
	}
}

func TestChangeQuantity(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		quantity  int
		wantLines int
		wantQty   int
	}{
		{"set", "a", 4, 2, 4},
		{"zero removes", "a", 0, 1, 0},
		{"negative removes", "a", -1, 1, 0},
		{"missing id is a no-op", "zzz", 9, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := setupCart(t)
			c.AddItem(ctx, product("a", "Tote", "10"), 2)
			c.AddItem(ctx, product("b", "Belt", "5"), 1)

			lines, err := c.ChangeQuantity(ctx, tt.id, tt.quantity)
			if err != nil {
				t.Fatalf("ChangeQuantity failed: %v", err)
			}
			if len(lines) != tt.wantLines {
				t.Fatalf("expected %d lines, got %d", tt.wantLines, len(lines))
			}
			if tt.wantQty > 0 && lines[0].Quantity != tt.wantQty {
				t.Errorf("quantity = %d, want %d", lines[0].Quantity, tt.wantQty)
			}
			if tt.wantLines == 1 && lines[0].ID != "b" {
				t.Errorf("wrong line removed: %+v", lines)
			}
		})
	}
}

func TestRemoveMissingItemIsNoop(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCart(t)
	c.AddItem(ctx, product("a", "Tote", "10"), 1)

	lines, err := c.RemoveItem(ctx, "missing")
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("expected cart unchanged, got %+v", lines)
	}
}

func TestMutationsPersistAndNotify(t *testing.T) {
	ctx := context.Background()
	c, store := setupCart(t)

	notified := 0
	store.Subscribe(func(ch storage.Change) {
		if ch.Key == storage.KeyCart {
			notified++
		}
	})

	c.AddItem(ctx, product("a", "Tote", "10"), 1)
	c.ChangeQuantity(ctx, "a", 3)
	c.RemoveItem(ctx, "a")
	c.Clear(ctx)

	if notified != 4 {
		t.Errorf("expected 4 notifications, got %d", notified)
	}

	// A second Cart over the same store sees persisted state.
	c.AddItem(ctx, product("b", "Belt", "5"), 2)
	if got := New(store).Lines(ctx); len(got) != 1 || got[0].Quantity != 2 {
		t.Errorf("unexpected persisted lines %+v", got)
	}
}

func TestCorruptCartLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	backend.Set(ctx, "buyer:cart", []byte("{not json"))

	c := New(storage.New(backend, "buyer", nil))
	if lines := c.Lines(ctx); len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", lines)
	}

	lines, err := c.AddItem(ctx, product("a", "Tote", "10"), 1)
	if err != nil || len(lines) != 1 {
		t.Errorf("expected recovery on next write, got %+v err=%v", lines, err)
	}
}

func TestToggleLikeTwiceRestoresWishlist(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), "buyer", nil)
	w := NewWishlist(store)

	w.ToggleLike(ctx, product("a", "Tote", "10"))
	w.ToggleLike(ctx, product("b", "Belt", "5"))
	before := w.Entries(ctx)

	r1, err := w.ToggleLike(ctx, product("c", "Scarf", "7"))
	if err != nil || r1 != Added {
		t.Fatalf("first toggle = %v, %v", r1, err)
	}
	if got := w.Entries(ctx); got[0].ID != "c" {
		t.Errorf("new like should be first, got %+v", got)
	}

	r2, _ := w.ToggleLike(ctx, product("c", "Scarf", "7"))
	if r2 != Removed {
		t.Fatalf("second toggle = %v", r2)
	}

	after := w.Entries(ctx)
	if len(after) != len(before) {
		t.Fatalf("membership changed: %+v vs %+v", after, before)
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Errorf("order changed at %d: %s vs %s", i, after[i].ID, before[i].ID)
		}
	}
}

func TestToggleExistingMiddleEntry(t *testing.T) {
	ctx := context.Background()
	w := NewWishlist(storage.New(storage.NewMemoryBackend(), "", nil))

	for _, id := range []string{"a", "b", "c"} {
		w.ToggleLike(ctx, product(id, id, "1"))
	}
	// Most recent first: c, b, a.
	w.ToggleLike(ctx, product("b", "b", "1"))

	got := w.Entries(ctx)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("unexpected entries %+v", got)
	}
	if w.IsLiked(ctx, product("b", "b", "1")) {
		t.Error("b should no longer be liked")
	}
	if !w.IsLiked(ctx, product("a", "a", "1")) {
		t.Error("a should be liked")
	}
}

func TestUnlike(t *testing.T) {
	ctx := context.Background()
	w := NewWishlist(storage.New(storage.NewMemoryBackend(), "", nil))
	w.ToggleLike(ctx, product("a", "a", "1"))

	if err := w.Unlike(ctx, "missing"); err != nil {
		t.Fatalf("Unlike missing failed: %v", err)
	}
	if err := w.Unlike(ctx, "a"); err != nil {
		t.Fatalf("Unlike failed: %v", err)
	}
	if len(w.Entries(ctx)) != 0 {
		t.Error("expected empty wishlist")
	}
}
