// Package storage persists the buyer's cart, wishlist and checkout state.
//
// Reads fail soft: a missing key, a backend error or a corrupt document all
// yield the zero value and are only logged. Every successful write raises a
// Change to subscribers of the same Store before the write call returns.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thomas/storefront-terminal-go/internal/logging"
)

// ErrStorageRead marks a persisted value that could not be read or decoded.
// It is logged, never returned from the load helpers.
var ErrStorageRead = errors.New("storage read failed")

// Key names a persisted value.
type Key string

const (
	KeyCart           Key = "cart"
	KeyLikes          Key = "likes"
	KeyFXRate         Key = "fx_rate"
	KeyCartSync       Key = "cart_sync"
	KeyIdempotency    Key = "order_idempotency_key"
	KeyDeliveryOption Key = "delivery_option"
	KeyPayPalItems    Key = "paypal_items"
	KeyPayPalOrderID  Key = "paypal_order_id"
)

// Change describes a completed write.
type Change struct {
	Key Key
}

// Store is a namespaced view over a Backend.
type Store struct {
	backend   Backend
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time

	mu     sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// New creates a store. namespace prefixes every key so several buyers can
// share one backend.
func New(backend Backend, namespace string, logger *zap.Logger) *Store {
	return &Store{
		backend:   backend,
		namespace: namespace,
		logger:    logging.OrNop(logger).With(zap.String("namespace", namespace)),
		nowFunc:   time.Now,
		subs:      make(map[int]func(Change)),
	}
}

func (s *Store) fullKey(k Key) string {
	if s.namespace == "" {
		return string(k)
	}
	return s.namespace + ":" + string(k)
}

// LoadList reads a JSON array. Anything unreadable yields an empty list.
func LoadList[T any](ctx context.Context, s *Store, key Key) []T {
	var list []T
	if !s.Load(ctx, key, &list) || list == nil {
		return []T{}
	}
	return list
}

// SaveList writes a JSON array. A nil list is stored as [].
func SaveList[T any](ctx context.Context, s *Store, key Key, list []T) error {
	if list == nil {
		list = []T{}
	}
	return s.Save(ctx, key, list)
}

// Load decodes the value stored under key into v and reports whether it did.
func (s *Store) Load(ctx context.Context, key Key, v any) bool {
	data, ok, err := s.backend.Get(ctx, s.fullKey(key))
	if err != nil {
		s.logger.Warn("storage read failed",
			zap.String("key", string(key)),
			zap.Error(fmt.Errorf("%w: %v", ErrStorageRead, err)))
		return false
	}
	if !ok || len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding corrupt stored value",
			zap.String("key", string(key)),
			zap.Error(fmt.Errorf("%w: %v", ErrStorageRead, err)))
		return false
	}
	return true
}

// Save encodes v under key. Saving the cart also advances the sync marker.
func (s *Store) Save(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, s.fullKey(key), data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}

	if key == KeyCart {
		s.touchSyncMarker(ctx)
	}
	s.notify(Change{Key: key})
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key Key) error {
	if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	if key == KeyCart {
		s.touchSyncMarker(ctx)
	}
	s.notify(Change{Key: key})
	return nil
}

// SyncMarker returns the last cart modification marker, or 0.
func (s *Store) SyncMarker(ctx context.Context) int64 {
	data, ok, err := s.backend.Get(ctx, s.fullKey(KeyCartSync))
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// touchSyncMarker stores max(now, previous+1) in milliseconds so the marker
// changes on every cart write, even when the cart bytes do not.
func (s *Store) touchSyncMarker(ctx context.Context) {
	next := s.nowFunc().UnixMilli()
	if prev := s.SyncMarker(ctx); next <= prev {
		next = prev + 1
	}
	if err := s.backend.Set(ctx, s.fullKey(KeyCartSync), []byte(strconv.FormatInt(next, 10))); err != nil {
		s.logger.Warn("updating cart sync marker", zap.Error(err))
	}
}

// Subscribe registers fn for every Change raised by this store and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
