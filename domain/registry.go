package domain

import (
	"sync"

	promclient "depthbridge/infrastructure/prometheus"
)

type bookEntry struct {
	maintainer *OrderbookMaintainer
	supervisor *BookSupervisor
	refs       int
}

// BookRegistry maps each watched symbol to its owned {maintainer,
// supervisor} record. Records are created on the 0→1 subscriber transition
// and destroyed on 1→0, never reached through ambient global state.
type BookRegistry struct {
	mu    sync.Mutex
	books map[string]*bookEntry
}

func NewBookRegistry() *BookRegistry {
	return &BookRegistry{
		books: make(map[string]*bookEntry),
	}
}

// Acquire increments the symbol's subscriber count, building its record via
// build on the first subscriber. It reports whether this was the 0→1
// transition.
func (r *BookRegistry) Acquire(
	symbol *MarketSymbol,
	build func() (*OrderbookMaintainer, *BookSupervisor),
) (*OrderbookMaintainer, *BookSupervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbol.String()
	if entry, ok := r.books[key]; ok {
		entry.refs++
		return entry.maintainer, entry.supervisor, false
	}

	maintainer, supervisor := build()
	r.books[key] = &bookEntry{
		maintainer: maintainer,
		supervisor: supervisor,
		refs:       1,
	}
	promclient.OpenOrderBooksGauge.Set(float64(len(r.books)))
	return maintainer, supervisor, true
}

// Release decrements the symbol's subscriber count. On the 1→0 transition
// the record is removed and its supervisor returned so the caller can stop
// it outside the registry lock.
func (r *BookRegistry) Release(symbol *MarketSymbol) (*BookSupervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbol.String()
	entry, ok := r.books[key]
	if !ok {
		return nil, false
	}

	entry.refs--
	if entry.refs > 0 {
		return nil, false
	}

	delete(r.books, key)
	promclient.OpenOrderBooksGauge.Set(float64(len(r.books)))
	return entry.supervisor, true
}

func (r *BookRegistry) Lookup(symbol *MarketSymbol) (*OrderbookMaintainer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.books[symbol.String()]
	if !ok {
		return nil, false
	}
	return entry.maintainer, true
}

func (r *BookRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books)
}
