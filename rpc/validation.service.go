package rpc

import "github.com/spooky-finn/coinex-orderbook-sync/domain"

type ValidationServiceConfig struct {
	AvailableMarkets []string
}

type ValidationService struct {
	markets []*domain.MarketSymbol
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	markets := make([]*domain.MarketSymbol, 0, len(config.AvailableMarkets))
	for _, m := range config.AvailableMarkets {
		symbol, err := domain.NewMarketSymbolFromString(m)
		if err != nil {
			logger.WithError(err).Warnf("skipping invalid market %q", m)
			continue
		}
		markets = append(markets, symbol)
	}

	return &ValidationService{
		markets: markets,
	}
}

func (s *ValidationService) IsSupportedMarket(symbol *domain.MarketSymbol) bool {
	for _, m := range s.markets {
		if m.Equal(symbol) {
			return true
		}
	}
	return false
}
