package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

// forgetter is implemented by observers that track per-market state.
type forgetter interface {
	Forget(symbol *domain.MarketSymbol)
}

// OrderBookSyncUseCase runs one OrderbookMaintainer per market and drops a
// market from the storage once its maintainer gives up.
type OrderBookSyncUseCase struct {
	connManager domain.ConnManager
	storage     *domain.OrderBookStorage
	observer    domain.MaintainerObserver
	conf        domain.MaintainerConfig

	mu          sync.Mutex
	maintainers map[string]*domain.OrderbookMaintainer
	wg          sync.WaitGroup
}

func NewOrderBookSyncUseCase(
	connManager domain.ConnManager,
	storage *domain.OrderBookStorage,
	observer domain.MaintainerObserver,
	conf domain.MaintainerConfig,
) *OrderBookSyncUseCase {
	return &OrderBookSyncUseCase{
		connManager: connManager,
		storage:     storage,
		observer:    observer,
		conf:        conf,
		maintainers: make(map[string]*domain.OrderbookMaintainer),
	}
}

// Start begins syncing every market ("BTC_USDT" form). Markets that are
// already running are skipped.
func (u *OrderBookSyncUseCase) Start(ctx context.Context, markets []string) error {
	for _, market := range markets {
		symbol, err := domain.NewMarketSymbolFromString(market)
		if err != nil {
			return err
		}

		if err := u.startMaintainer(ctx, symbol); err != nil {
			return err
		}
	}

	return nil
}

func (u *OrderBookSyncUseCase) startMaintainer(ctx context.Context, symbol *domain.MarketSymbol) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.maintainers[symbol.String()]; ok {
		return nil
	}

	m := domain.NewOrderBookMaintainer(symbol, u.connManager.StreamAPI(), u.storage, u.observer, u.conf)
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync of %s: %w", symbol, err)
	}
	u.maintainers[symbol.String()] = m

	u.wg.Add(1)
	go u.supervise(m)

	logger.Infof("orderbook sync started: Symbol=%s", symbol)
	return nil
}

func (u *OrderBookSyncUseCase) supervise(m *domain.OrderbookMaintainer) {
	defer u.wg.Done()

	<-m.Finished()
	m.Stop()

	if err := m.Err(); err != nil {
		logger.WithError(err).Errorf("orderbook sync stopped: Symbol=%s", m.Symbol())
	}

	u.storage.Remove(m.Symbol())
	if f, ok := u.observer.(forgetter); ok {
		f.Forget(m.Symbol())
	}

	u.mu.Lock()
	delete(u.maintainers, m.Symbol().String())
	u.mu.Unlock()
}

// IsSyncing reports whether a maintainer is running for the symbol.
func (u *OrderBookSyncUseCase) IsSyncing(symbol *domain.MarketSymbol) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	_, ok := u.maintainers[symbol.String()]
	return ok
}

// Stop stops all maintainers and waits for them.
func (u *OrderBookSyncUseCase) Stop() {
	u.mu.Lock()
	running := make([]*domain.OrderbookMaintainer, 0, len(u.maintainers))
	for _, m := range u.maintainers {
		running = append(running, m)
	}
	u.mu.Unlock()

	for _, m := range running {
		m.Stop()
	}
	u.wg.Wait()
}
