package state

import (
	"sync"

	"cryptofutures/internal/adapter"
)

// Book keeps the latest position per symbol and balance per asset.
// Each apply replaces the previous snapshot wholesale; no history is kept.
type Book struct {
	mu        sync.RWMutex
	positions map[string]adapter.Position
	balances  map[string]adapter.Balance
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		positions: make(map[string]adapter.Position),
		balances:  make(map[string]adapter.Balance),
	}
}

// ApplyPosition replaces the position of p.Symbol.
func (b *Book) ApplyPosition(p adapter.Position) {
	b.mu.Lock()
	b.positions[p.Symbol] = p
	b.mu.Unlock()
}

// ApplyBalance replaces the balance of bal.Asset.
func (b *Book) ApplyBalance(bal adapter.Balance) {
	b.mu.Lock()
	b.balances[bal.Asset] = bal
	b.mu.Unlock()
}

// Position returns the current position for a symbol.
func (b *Book) Position(symbol string) (adapter.Position, bool) {
	b.mu.RLock()
	p, ok := b.positions[symbol]
	b.mu.RUnlock()
	return p, ok
}

// Balance returns the current balance for an asset.
func (b *Book) Balance(asset string) (adapter.Balance, bool) {
	b.mu.RLock()
	bal, ok := b.balances[asset]
	b.mu.RUnlock()
	return bal, ok
}

// Count returns the number of tracked symbols and assets.
func (b *Book) Count() (positions, balances int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions), len(b.balances)
}
