package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type entry struct {
	ID  string `json:"id"`
	Qty int    `json:"quantity"`
}

// failingBackend returns an error for every operation.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}
func (failingBackend) Set(context.Context, string, []byte) error { return errors.New("disk on fire") }
func (failingBackend) Delete(context.Context, string) error     { return errors.New("disk on fire") }

func TestLoadListMissingKey(t *testing.T) {
	s := New(NewMemoryBackend(), "buyer", zaptest.NewLogger(t))

	list := LoadList[entry](context.Background(), s, KeyCart)
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestLoadListCorruptData(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `[{"id": "a", "quantity": `},
		{"object instead of list", `{"id":"a"}`},
		{"null", `null`},
		{"wrong element type", `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			backend.Set(ctx, "buyer:cart", []byte(tt.raw))
			s := New(backend, "buyer", zaptest.NewLogger(t))

			list := LoadList[entry](ctx, s, KeyCart)
			if len(list) != 0 {
				t.Errorf("expected empty list, got %#v", list)
			}
		})
	}
}

func TestLoadListBackendError(t *testing.T) {
	s := New(failingBackend{}, "buyer", zaptest.NewLogger(t))
	if list := LoadList[entry](context.Background(), s, KeyLikes); len(list) != 0 {
		t.Errorf("expected empty list, got %#v", list)
	}
}

func TestSaveAndLoadList(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), "buyer", nil)

	want := []entry{{ID: "a", Qty: 2}, {ID: "b", Qty: 1}}
	if err := SaveList(ctx, s, KeyCart, want); err != nil {
		t.Fatalf("SaveList failed: %v", err)
	}

	got := LoadList[entry](ctx, s, KeyCart)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestSaveNilListStoresEmptyArray(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := New(backend, "", nil)

	if err := SaveList[entry](ctx, s, KeyLikes, nil); err != nil {
		t.Fatalf("SaveList failed: %v", err)
	}
	raw, ok, _ := backend.Get(ctx, "likes")
	if !ok || string(raw) != "[]" {
		t.Errorf("expected [], got %q", raw)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	alice := New(backend, "alice", nil)
	bob := New(backend, "bob", nil)

	SaveList(ctx, alice, KeyCart, []entry{{ID: "a", Qty: 1}})

	if got := LoadList[entry](ctx, bob, KeyCart); len(got) != 0 {
		t.Errorf("bob should not see alice's cart, got %#v", got)
	}
}

func TestSaveCartAdvancesSyncMarker(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), "buyer", nil)

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	if s.SyncMarker(ctx) != 0 {
		t.Fatal("expected zero marker before any write")
	}

	SaveList(ctx, s, KeyCart, []entry{{ID: "a", Qty: 1}})
	first := s.SyncMarker(ctx)
	if first != fixed.UnixMilli() {
		t.Errorf("expected marker %d, got %d", fixed.UnixMilli(), first)
	}

	// Same clock, same content: the marker must still move.
	SaveList(ctx, s, KeyCart, []entry{{ID: "a", Qty: 1}})
	if second := s.SyncMarker(ctx); second != first+1 {
		t.Errorf("expected marker %d, got %d", first+1, second)
	}

	// Non-cart writes leave it alone.
	SaveList(ctx, s, KeyLikes, []entry{{ID: "x"}})
	if third := s.SyncMarker(ctx); third != first+1 {
		t.Errorf("likes write moved marker to %d", third)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), "buyer", nil)

	var got []Key
	unsubscribe := s.Subscribe(func(c Change) { got = append(got, c.Key) })

	SaveList(ctx, s, KeyCart, []entry{{ID: "a", Qty: 1}})
	s.Remove(ctx, KeyLikes)

	if len(got) != 2 || got[0] != KeyCart || got[1] != KeyLikes {
		t.Fatalf("unexpected changes %v", got)
	}

	unsubscribe()
	SaveList(ctx, s, KeyCart, []entry{})
	if len(got) != 2 {
		t.Errorf("unsubscribed callback still called: %v", got)
	}
}

func TestFailedSaveDoesNotNotify(t *testing.T) {
	s := New(failingBackend{}, "buyer", nil)

	called := false
	s.Subscribe(func(Change) { called = true })

	if err := SaveList(context.Background(), s, KeyCart, []entry{{ID: "a"}}); err == nil {
		t.Fatal("expected save error")
	}
	if called {
		t.Error("subscriber called for failed write")
	}
}

func TestLoadValue(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), "buyer", nil)

	var id string
	if s.Load(ctx, KeyDeliveryOption, &id) {
		t.Fatal("expected missing value")
	}

	s.Save(ctx, KeyDeliveryOption, "dpd")
	if !s.Load(ctx, KeyDeliveryOption, &id) || id != "dpd" {
		t.Errorf("expected dpd, got %q", id)
	}
}
