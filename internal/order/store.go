package order

import (
	"sort"
	"sync"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"
)

// Store holds one record per order, addressable by exchange order id and by
// client order id. Records are values; reads return copies.
type Store struct {
	mu         sync.RWMutex
	seq        uint64
	records    map[uint64]adapter.Order
	byOrderID  map[string]uint64
	byClientID map[string]uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:    make(map[uint64]adapter.Order),
		byOrderID:  make(map[string]uint64),
		byClientID: make(map[string]uint64),
	}
}

// Put inserts or replaces a record without any transition check.
func (s *Store) Put(o adapter.Order) error {
	if o.Key().IsEmpty() {
		return errors.Wrap(exception.ErrInvalidArgument, "put order without key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, found, err := s.locateLocked(o.Key())
	if err != nil {
		return err
	}
	if !found {
		s.seq++
		id = s.seq
	}
	s.writeLocked(id, o)
	return nil
}

func (s *Store) GetByOrderID(orderID string) (adapter.Order, bool) {
	if len(orderID) == 0 {
		return adapter.Order{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrderID[orderID]
	if !ok {
		return adapter.Order{}, false
	}
	return s.records[id], true
}

func (s *Store) GetByClientOrderID(clientOrderID string) (adapter.Order, bool) {
	if len(clientOrderID) == 0 {
		return adapter.Order{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byClientID[clientOrderID]
	if !ok {
		return adapter.Order{}, false
	}
	return s.records[id], true
}

// Get resolves key by order id first, then by client order id.
func (s *Store) Get(key adapter.OrderKey) (adapter.Order, bool) {
	if o, ok := s.GetByOrderID(key.OrderID); ok {
		return o, true
	}
	return s.GetByClientOrderID(key.ClientOrderID)
}

// UpsertMerge applies the patch to the record its keys resolve to, or
// inserts a new record. The stored record is left untouched on error.
func (s *Store) UpsertMerge(p adapter.OrderPatch) (adapter.Order, error) {
	merged, _, err := s.UpsertMergeIf(p, nil)
	return merged, err
}

// UpsertMergeIf is UpsertMerge guarded by cond, which sees the current
// record (found is false when none exists) under the store lock. When cond
// returns false nothing is written and applied is false.
func (s *Store) UpsertMergeIf(p adapter.OrderPatch, cond func(current adapter.Order, found bool) bool) (merged adapter.Order, applied bool, err error) {
	key := p.Key()
	if key.IsEmpty() {
		return adapter.Order{}, false, errors.Wrap(exception.ErrInvalidArgument, "merge order without key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, found, err := s.locateLocked(key)
	if err != nil {
		return adapter.Order{}, false, err
	}

	current := s.records[id]
	if cond != nil && !cond(current, found) {
		return current, false, nil
	}

	if !found {
		if !p.Fields.Has(adapter.FieldStatus) || !p.Status.IsAvailable() {
			return adapter.Order{}, false, errors.Wrapf(exception.ErrInvalidArgument, "insert %s without status", key)
		}
		s.seq++
		merged = p.ApplyTo(adapter.Order{})
		s.writeLocked(s.seq, merged)
		return merged, true, nil
	}

	if len(p.OrderID) != 0 && len(current.OrderID) != 0 && p.OrderID != current.OrderID {
		return current, false, &CorrelationError{Key: key, Reason: exception.ErrOrderIDConflict}
	}
	if len(p.ClientOrderID) != 0 && len(current.ClientOrderID) != 0 && p.ClientOrderID != current.ClientOrderID {
		return current, false, &CorrelationError{Key: key, Reason: exception.ErrOrderKeyConflict}
	}
	if p.Fields.Has(adapter.FieldStatus) {
		if err := checkTransition(key, current.Status, p.Status); err != nil {
			return current, false, err
		}
	}

	merged = p.ApplyTo(current)
	s.writeLocked(id, merged)
	return merged, true, nil
}

// Evict drops the record the key resolves to.
func (s *Store) Evict(key adapter.OrderKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, found, err := s.locateLocked(key)
	if err != nil || !found {
		return false
	}

	o := s.records[id]
	delete(s.records, id)
	if len(o.OrderID) != 0 {
		delete(s.byOrderID, o.OrderID)
	}
	if len(o.ClientOrderID) != 0 {
		delete(s.byClientID, o.ClientOrderID)
	}
	return true
}

// Snapshot returns every record ordered by insertion.
func (s *Store) Snapshot() []adapter.Order {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	orders := make([]adapter.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, s.records[id])
	}
	s.mu.RUnlock()

	return orders
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) locateLocked(key adapter.OrderKey) (id uint64, found bool, err error) {
	byOrder, okOrder := s.byOrderID[key.OrderID]
	byClient, okClient := s.byClientID[key.ClientOrderID]
	switch {
	case okOrder && okClient && byOrder != byClient:
		return 0, false, &CorrelationError{Key: key, Reason: exception.ErrOrderKeyConflict}
	case okOrder:
		return byOrder, true, nil
	case okClient:
		return byClient, true, nil
	default:
		return 0, false, nil
	}
}

func (s *Store) writeLocked(id uint64, o adapter.Order) {
	s.records[id] = o
	if len(o.OrderID) != 0 {
		s.byOrderID[o.OrderID] = id
	}
	if len(o.ClientOrderID) != 0 {
		s.byClientID[o.ClientOrderID] = id
	}
}
