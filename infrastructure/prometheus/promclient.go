package promclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

var logger = logrus.WithField("component", "promclient")

var OrderBookUpdatesCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coinex_orderbook_updates_total",
		Help: "depth updates applied to local order books",
	},
	[]string{"market", "kind"},
)

var ChecksumFailuresCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coinex_orderbook_checksum_failures_total",
		Help: "applied updates whose book did not match the reported checksum",
	},
	[]string{"market"},
)

var RejectedUpdatesCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coinex_orderbook_rejected_updates_total",
		Help: "updates rejected because of malformed price levels",
	},
	[]string{"market"},
)

var ResyncRequestsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coinex_orderbook_resync_requests_total",
		Help: "fresh snapshots requested after repeated checksum failures",
	},
	[]string{"market"},
)

var SyncedOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "coinex_synced_order_books",
		Help: "order books that received at least one snapshot",
	},
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(OrderBookUpdatesCounter)
	reg.MustRegister(ChecksumFailuresCounter)
	reg.MustRegister(RejectedUpdatesCounter)
	reg.MustRegister(ResyncRequestsCounter)
	reg.MustRegister(SyncedOrderBookGauge)
	reg.MustRegister(collectors.NewGoCollector())

	return reg
}

// Observer records maintainer events into the package metrics.
type Observer struct {
	synced sync.Map
}

func NewObserver() *Observer {
	return &Observer{}
}

func (o *Observer) OnResult(symbol *domain.MarketSymbol, result *domain.ProcessResult) {
	market := symbol.Market()

	OrderBookUpdatesCounter.WithLabelValues(market, string(result.Envelope.Kind)).Inc()
	if !result.ChecksumValid {
		ChecksumFailuresCounter.WithLabelValues(market).Inc()
	}
	if _, loaded := o.synced.LoadOrStore(market, struct{}{}); !loaded {
		SyncedOrderBookGauge.Inc()
	}
}

func (o *Observer) OnRejected(symbol *domain.MarketSymbol, err error) {
	RejectedUpdatesCounter.WithLabelValues(symbol.Market()).Inc()
}

func (o *Observer) OnResync(symbol *domain.MarketSymbol) {
	ResyncRequestsCounter.WithLabelValues(symbol.Market()).Inc()
}

// Forget is called when a market stops being maintained.
func (o *Observer) Forget(symbol *domain.MarketSymbol) {
	if _, loaded := o.synced.LoadAndDelete(symbol.Market()); loaded {
		SyncedOrderBookGauge.Dec()
	}
}

// StartPromClientServer serves /metrics on addr until ctx is cancelled.
func StartPromClientServer(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("prometheus server listening at %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
