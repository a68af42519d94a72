package provider

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/config"
	"github.com/spooky-finn/coinex-orderbook-sync/domain"
	"github.com/spooky-finn/coinex-orderbook-sync/provider/coinex"
)

var logger = logrus.WithField("component", "conn-manager")

// ConnectionManager owns the CoinEx connections and hands out their APIs.
type ConnectionManager struct {
	CoinexWS        *coinex.CoinexStreamClient
	CoinexSyncAPI   *coinex.CoinexSyncAPI
	CoinexStreamAPI *coinex.CoinexStreamAPI
}

func NewConnectionManager(cfg *config.Config) *ConnectionManager {
	streamClient := coinex.NewCoinexStreamClient(cfg.WSURL, coinex.StreamClientOptionsFromConfig(cfg))

	return &ConnectionManager{
		CoinexWS:        streamClient,
		CoinexSyncAPI:   coinex.NewCoinexSyncAPI(cfg.RestURL, cfg.DepthInterval, cfg.RequestTimeout),
		CoinexStreamAPI: coinex.NewCoinexStreamAPI(streamClient, cfg.DepthInterval),
	}
}

func (cm *ConnectionManager) Init(ctx context.Context) error {
	if err := cm.CoinexWS.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to coinex ws: %w", err)
	}
	return nil
}

func (cm *ConnectionManager) StreamAPI() domain.ProviderStreamAPI {
	return cm.CoinexStreamAPI
}

func (cm *ConnectionManager) SyncAPI() domain.ProviderSyncAPI {
	return cm.CoinexSyncAPI
}

func (cm *ConnectionManager) Close() {
	if err := cm.CoinexWS.Close(); err != nil {
		logger.WithError(err).Warn("failed to close coinex ws")
	}
}
