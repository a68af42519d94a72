package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/config"
	"github.com/spooky-finn/coinex-orderbook-sync/domain"
	promclient "github.com/spooky-finn/coinex-orderbook-sync/infrastructure/prometheus"
	"github.com/spooky-finn/coinex-orderbook-sync/provider"
	"github.com/spooky-finn/coinex-orderbook-sync/rpc"
	"github.com/spooky-finn/coinex-orderbook-sync/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.ConfigureLogging(); err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := promclient.StartPromClientServer(ctx, cfg.MetricsAddr, promclient.NewRegistry()); err != nil {
			logrus.WithError(err).Error("prometheus server stopped")
		}
	}()

	connManager := provider.NewConnectionManager(cfg)
	if err := connManager.Init(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to init connections")
	}
	defer connManager.Close()

	go func() {
		select {
		case <-connManager.CoinexWS.Closed():
			logrus.Error("coinex stream connection lost, shutting down")
			stop()
		case <-ctx.Done():
		}
	}()

	storage := domain.NewOrderBookStorage()

	syncUseCase := usecase.NewOrderBookSyncUseCase(connManager, storage, promclient.NewObserver(), domain.MaintainerConfig{
		DepthLimit:               cfg.DepthLimit,
		ChecksumFailureThreshold: cfg.ChecksumFailureThreshold,
		MaxResyncs:               cfg.MaxResyncs,
	})
	if err := syncUseCase.Start(ctx, cfg.Markets); err != nil {
		logrus.WithError(err).Fatal("failed to start orderbook sync")
	}
	defer syncUseCase.Stop()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatalf("failed to listen on %s", cfg.GRPCAddr)
	}

	srv := rpc.NewServer(
		usecase.NewOrderBookSnapshotUseCase(connManager, storage),
		&rpc.ValidationServiceConfig{AvailableMarkets: cfg.Markets},
	)
	if err := srv.Serve(ctx, lis); err != nil {
		logrus.WithError(err).Error("grpc server stopped")
	}

	logrus.Info("shutting down")
}
