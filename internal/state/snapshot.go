package state

import (
	"sort"
	"time"

	"cryptofutures/internal/adapter"
)

// Snapshot captures positions and balances at a point in time.
type Snapshot struct {
	Timestamp int64              `json:"timestamp"`
	Positions []adapter.Position `json:"positions"`
	Balances  []adapter.Balance  `json:"balances"`
}

// Snapshot builds a snapshot sorted by symbol and asset.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	positions := make([]adapter.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, p)
	}
	balances := make([]adapter.Balance, 0, len(b.balances))
	for _, bal := range b.balances {
		balances = append(balances, bal)
	}
	b.mu.RUnlock()

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Asset < balances[j].Asset
	})

	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Positions: positions,
		Balances:  balances,
	}
}
