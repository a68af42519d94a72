package domain

import "context"

type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
}

// ProviderStreamAPI delivers decoded depth updates for one market, in order.
type ProviderStreamAPI interface {
	DepthStream(ctx context.Context, symbol *MarketSymbol, limit int) (*Subscription[*UpdateEnvelope], error)
	SnapshotRequester
}

// SnapshotRequester asks the exchange for a fresh full depth of a market.
type SnapshotRequester interface {
	RequestSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) error
}

type ProviderSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*UpdateEnvelope, error)
}
