package coinex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

type depthParams struct {
	limit    int
	interval string
}

// CoinexStreamAPI turns depth.update pushes into per-market envelope streams.
type CoinexStreamAPI struct {
	client   *CoinexStreamClient
	interval string

	mu         sync.Mutex
	subscribed map[string]depthParams
}

func NewCoinexStreamAPI(client *CoinexStreamClient, interval string) *CoinexStreamAPI {
	if interval == "" {
		interval = "0"
	}

	return &CoinexStreamAPI{
		client:     client,
		interval:   interval,
		subscribed: make(map[string]depthParams),
	}
}

type DepthUpdateSubscription = *domain.Subscription[*domain.UpdateEnvelope]

// DepthStream subscribes the market and returns its updates in arrival order.
// The first update after subscribing is a full snapshot.
func (s *CoinexStreamAPI) DepthStream(ctx context.Context, symbol *domain.MarketSymbol, limit int) (DepthUpdateSubscription, error) {
	market := symbol.Market()
	raw := s.client.Subscribe(methodDepthUpdate)
	unhandled := s.client.Subscribe(methodUnhandled)

	s.mu.Lock()
	s.subscribed[market] = depthParams{limit: limit, interval: s.interval}
	s.mu.Unlock()

	if err := s.sendSubscribe(ctx); err != nil {
		s.forget(market)
		raw.Unsubscribe()
		unhandled.Unsubscribe()
		return nil, err
	}

	out := make(chan *domain.UpdateEnvelope)
	stop := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		defer close(out)

		for {
			var msg []byte
			var ok bool

			select {
			case <-stop:
				return
			case msg, ok = <-raw.Stream:
				if !ok {
					return
				}
			case msg, ok = <-unhandled.Stream:
				if !ok {
					return
				}
			}

			update, err := decodeDepthUpdate(msg)
			if err != nil {
				logger.WithError(err).Warnf("error unmarshaling depth message: %s", string(msg))
				continue
			}
			// unknown messages without a market go to every stream
			if update.Market != market && (update.IsRecognized() || update.Market != "") {
				continue
			}

			select {
			case out <- update:
			case <-stop:
				return
			}
		}
	}()

	return &domain.Subscription[*domain.UpdateEnvelope]{
		Stream: out,
		Unsubscribe: func() {
			stopOnce.Do(func() {
				close(stop)
				raw.Unsubscribe()
				unhandled.Unsubscribe()
				s.forget(market)

				ctx, cancel := context.WithTimeout(context.Background(), s.client.opts.RequestTimeout)
				defer cancel()
				if _, err := s.client.Request(ctx, methodDepthUnsubscribe, map[string]interface{}{
					"market_list": []string{market},
				}); err != nil {
					logger.WithError(err).Warnf("failed to unsubscribe depth of %s", market)
				}
			})
		},
		Topic: fmt.Sprintf("%s:%s", methodDepthUpdate, market),
	}, nil
}

// RequestSnapshot drops and re-adds the market's depth subscription, which
// makes the server push a full depth again.
func (s *CoinexStreamAPI) RequestSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) error {
	market := symbol.Market()

	if _, err := s.client.Request(ctx, methodDepthUnsubscribe, map[string]interface{}{
		"market_list": []string{market},
	}); err != nil {
		return fmt.Errorf("failed to unsubscribe depth of %s: %w", market, err)
	}

	s.mu.Lock()
	s.subscribed[market] = depthParams{limit: limit, interval: s.interval}
	s.mu.Unlock()

	return s.sendSubscribe(ctx)
}

// sendSubscribe always sends the complete market list so a subscribe never
// drops markets subscribed earlier.
func (s *CoinexStreamAPI) sendSubscribe(ctx context.Context) error {
	s.mu.Lock()
	markets := make([]string, 0, len(s.subscribed))
	for market := range s.subscribed {
		markets = append(markets, market)
	}
	sort.Strings(markets)

	marketList := make([][]interface{}, 0, len(markets))
	for _, market := range markets {
		p := s.subscribed[market]
		marketList = append(marketList, depthSubscription(market, p.limit, p.interval))
	}
	s.mu.Unlock()

	_, err := s.client.Request(ctx, methodDepthSubscribe, map[string]interface{}{
		"market_list": marketList,
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe depth: %w", err)
	}

	return nil
}

func (s *CoinexStreamAPI) forget(market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, market)
}
