package order

import (
	"sync"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/obs"

	"github.com/yanun0323/logs"
)

type subscriber struct {
	id       uint64
	callback func(adapter.Update)
}

// Fanout delivers every published update to every subscriber, synchronously
// and in publish order. Callbacks must not call back into the Usecase on
// the publishing goroutine.
type Fanout struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    []subscriber
	metrics *obs.Metrics
}

func NewFanout(metrics *obs.Metrics) *Fanout {
	return &Fanout{metrics: metrics}
}

// Subscribe registers callback and returns a func that removes it.
func (f *Fanout) Subscribe(callback func(adapter.Update)) (unsubscribe func()) {
	if callback == nil {
		return func() {}
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	subs := make([]subscriber, len(f.subs), len(f.subs)+1)
	copy(subs, f.subs)
	f.subs = append(subs, subscriber{id: id, callback: callback})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(id) })
	}
}

func (f *Fanout) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := make([]subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	f.subs = subs
}

// Publish hands u to every subscriber. A panicking callback is recovered
// and does not stop delivery to the others.
func (f *Fanout) Publish(u adapter.Update) {
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()

	for _, s := range subs {
		f.dispatch(s, u)
	}
}

func (f *Fanout) dispatch(s subscriber, u adapter.Update) {
	defer func() {
		if r := recover(); r != nil {
			f.metrics.IncDispatchFailure()
			logs.Errorf("order update subscriber %d panic, update: %T, recover: %v", s.id, u, r)
		}
	}()

	s.callback(u)
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
