package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

var logger = logrus.WithField("component", "usecase")

var ErrSnapshotUnverified = errors.New("provider snapshot failed checksum verification")

type OrderBookSnapshotUseCase struct {
	connManager domain.ConnManager
	storage     *domain.OrderBookStorage
}

func NewOrderBookSnapshotUseCase(
	connManager domain.ConnManager,
	storage *domain.OrderBookStorage,
) *OrderBookSnapshotUseCase {
	return &OrderBookSnapshotUseCase{
		connManager: connManager,
		storage:     storage,
	}
}

// GetOrderBookSnapshot returns the orderbook snapshot from the runtime storage or from provider api.
// The latest published book is returned even when its checksum did not match;
// ChecksumValid tells the caller whether it was verified.
func (o *OrderBookSnapshotUseCase) GetOrderBookSnapshot(
	ctx context.Context, symbol *domain.MarketSymbol, limit int,
) (*domain.OrderBookSnapshot, error) {
	snapshot, err := o.storage.Get(symbol)
	if err == nil {
		return snapshot.Limit(limit), nil
	}

	logger.Infof("orderbook is not synced yet. provider`s snapshot returns: Symbol=%s", symbol)
	return o.providerSnapshot(ctx, symbol, limit)
}

// providerSnapshot fetches a REST depth and runs it through a fresh processor
// so the result carries the same checksum verdict as a streamed book.
func (o *OrderBookSnapshotUseCase) providerSnapshot(
	ctx context.Context, symbol *domain.MarketSymbol, limit int,
) (*domain.OrderBookSnapshot, error) {
	update, err := o.connManager.SyncAPI().OrderBookSnapshot(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider snapshot of %s: %w", symbol, err)
	}

	result, err := domain.NewUpdateProcessor(symbol).Handle(update)
	if err != nil {
		return nil, err
	}
	if !result.Processed {
		return nil, fmt.Errorf("provider returned no depth for %s", symbol)
	}

	snapshot := result.Snapshot.Limit(limit)
	snapshot.Source = domain.OrderBookSource_Provider
	if !result.ChecksumValid {
		logger.Warnf("%v: Symbol=%s computed=%d reported=%d",
			ErrSnapshotUnverified, symbol, result.ComputedChecksum, result.ReportedChecksum)
	}

	return snapshot, nil
}
