package domain

import (
	"time"
)

type OrderBookSource string
type OrderBookStatus string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"

	OrderBookStatus_Uninitialized OrderBookStatus = "Uninitialized"
	OrderBookStatus_Synced        OrderBookStatus = "Synced"
)

// OrderBookSnapshot is an immutable, ordered copy of a book, safe to hand
// to other goroutines.
type OrderBookSnapshot struct {
	Source         OrderBookSource `json:"source"`
	Market         string          `json:"market"`
	Bids           [][]string      `json:"bids"`
	Asks           [][]string      `json:"asks"`
	Checksum       uint32          `json:"checksum"`
	ChecksumValid  bool            `json:"checksumValid"`
	LastUpdateTime int64           `json:"lastUpdateTime"`
}

// OrderBook holds the bid and ask sides of one market. It is not safe for
// concurrent use; a single UpdateProcessor owns it.
type OrderBook struct {
	Symbol         *MarketSymbol
	Bids           *BookSide
	Asks           *BookSide
	LastUpdateTime int64
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		Bids:   NewBookSide(SideBid),
		Asks:   NewBookSide(SideAsk),
	}
}

func (ob *OrderBook) side(side Side) *BookSide {
	if side == SideBid {
		return ob.Bids
	}
	return ob.Asks
}

func (ob *OrderBook) Reset(side Side, levels []PriceLevel) {
	ob.side(side).Reset(levels)
	ob.LastUpdateTime = time.Now().UnixMilli()
}

func (ob *OrderBook) Merge(side Side, levels []PriceLevel) {
	ob.side(side).Merge(levels)
	ob.LastUpdateTime = time.Now().UnixMilli()
}

// TakeSnapshot copies the book, best levels first, keeping at most limit
// levels per side (limit <= 0 keeps everything).
func (ob *OrderBook) TakeSnapshot(limit int) *OrderBookSnapshot {
	market := ""
	if ob.Symbol != nil {
		market = ob.Symbol.Market()
	}

	return &OrderBookSnapshot{
		Source:         OrderBookSource_LocalOrderBook,
		Market:         market,
		Bids:           serializePriceLevels(limitDepth(ob.Bids.Levels(), limit)),
		Asks:           serializePriceLevels(limitDepth(ob.Asks.Levels(), limit)),
		LastUpdateTime: ob.LastUpdateTime,
	}
}

// Limit returns a copy of the snapshot trimmed to limit levels per side.
func (s *OrderBookSnapshot) Limit(limit int) *OrderBookSnapshot {
	out := *s
	out.Bids = limitDepth(s.Bids, limit)
	out.Asks = limitDepth(s.Asks, limit)
	return &out
}

func limitDepth[T any](depth []T, limit int) []T {
	if limit > 0 && len(depth) > limit {
		return depth[:limit]
	}

	return depth
}
