package domain

import (
	"errors"
	"sync"
)

var ErrOrderBookNotFound = errors.New("order book not found")

// OrderBookStorage keeps the latest published snapshot of every tracked
// market. Only copies are stored; the live books stay with their processors.
type OrderBookStorage struct {
	mu      sync.RWMutex
	storage map[string]*OrderBookSnapshot
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[string]*OrderBookSnapshot),
	}
}

func (o *OrderBookStorage) Add(symbol *MarketSymbol, snapshot *OrderBookSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.storage[symbol.String()] = snapshot
}

func (o *OrderBookStorage) Get(symbol *MarketSymbol) (*OrderBookSnapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snapshot, ok := o.storage[symbol.String()]
	if !ok {
		return nil, ErrOrderBookNotFound
	}

	return snapshot, nil
}

func (o *OrderBookStorage) Remove(symbol *MarketSymbol) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.storage, symbol.String())
}

func (o *OrderBookStorage) OrderBookCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.storage)
}
