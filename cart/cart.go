// Package cart owns the visitor's selected items and quantities. It is
// local-first: mutations never touch the network, and every accepted
// mutation is persisted synchronously before returning so a restart never
// loses cart contents. Money is held as integer cents; floating point
// appears only at presentation, so repeated mutations cannot drift.
package cart

import (
	"encoding/json"
	"sync"

	"github.com/greenplanet/storefront/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("price cannot be negative")
)

// Product is the slice of a catalog product the cart needs. The cart knows
// nothing about stock; stock gating happens in the view layer before
// AddItem is called.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	ImageRef   string
	Category   string
}

// LineItem is one product entry with its quantity. ProductID is unique
// within a cart; Quantity is always >= 1 (a decrement to zero removes the
// row instead).
type LineItem struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
	ImageRef       string `json:"imageRef,omitempty"`
	Category       string `json:"category,omitempty"`
}

// Store holds the ordered line items. Insertion order is display order.
// Exactly one Store should exist per running application.
type Store struct {
	store credentials.Store
	log   zerolog.Logger

	mu    sync.Mutex
	items []LineItem
	index map[string]int // productID -> position in items
}

// NewStore builds the cart, restoring any persisted contents.
func NewStore(store credentials.Store) (*Store, error) {
	if store == nil {
		return nil, errors.New("[cart.NewStore] credential store is required")
	}
	s := &Store{
		store: store,
		log:   log.With().Str("component", "cart").Logger(),
		index: make(map[string]int),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddItem merges quantity into an existing row for the same product, or
// appends a new row at the end. Rejects quantity < 1 and negative prices.
func (s *Store) AddItem(p Product, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if p.PriceCents < 0 {
		return ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.index[p.ID]; ok {
		s.items[pos].Quantity += quantity
	} else {
		s.index[p.ID] = len(s.items)
		s.items = append(s.items, LineItem{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       quantity,
			ImageRef:       p.ImageRef,
			Category:       p.Category,
		})
	}
	return s.persistLocked()
}

// RemoveItem deletes the matching row. Removing an absent product is a
// no-op, not an error.
func (s *Store) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[productID]
	if !ok {
		return nil
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	s.reindexLocked()
	return s.persistLocked()
}

// SetQuantity replaces a row's quantity in place, preserving its position.
// A quantity below 1 is equivalent to RemoveItem.
func (s *Store) SetQuantity(productID string, quantity int) error {
	if quantity < 1 {
		return s.RemoveItem(productID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[productID]
	if !ok {
		return nil
	}
	s.items[pos].Quantity = quantity
	return s.persistLocked()
}

// Clear empties the cart. Only checkout and the explicit clear action call
// this; logout never does.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.index = make(map[string]int)
	return s.persistLocked()
}

// Items returns a copy of the line items in display order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]LineItem, len(s.items))
	copy(items, s.items)
	return items
}

// ItemCount is the sum of all quantities, recomputed on every call.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		count += item.Quantity
	}
	return count
}

// TotalCents is the exact cart total in cents, recomputed on every call.
func (s *Store) TotalCents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	return total
}

// Total is the presentation-layer total in currency units.
func (s *Store) Total() float64 {
	return float64(s.TotalCents()) / 100
}

func (s *Store) load() error {
	payload, err := s.store.Get(credentials.KeyCart)
	if errors.Is(err, credentials.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Store.load] read persisted cart")
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		// A corrupt payload should not brick the cart; start empty.
		s.log.Warn().Err(err).Msg("discarding unreadable persisted cart")
		return nil
	}
	s.items = items
	s.reindexLocked()
	return nil
}

// persistLocked writes the full cart state before the mutation returns.
// Callers hold the lock.
func (s *Store) persistLocked() error {
	payload, err := json.Marshal(s.items)
	if err != nil {
		return errors.Wrap(err, "[Store.persistLocked] marshal cart")
	}
	if err := s.store.Set(credentials.KeyCart, string(payload)); err != nil {
		return errors.Wrap(err, "[Store.persistLocked] persist cart")
	}
	return nil
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.items))
	for pos, item := range s.items {
		s.index[item.ProductID] = pos
	}
}
