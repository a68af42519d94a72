package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/config"
)

var logger = logrus.WithField("component", "orderbook-maintainer")

var (
	ErrResyncLimitReached = errors.New("order book resync limit reached")
	ErrStreamClosed       = errors.New("depth stream closed")
)

// MaintainerObserver is notified about everything the maintainer does with an update.
type MaintainerObserver interface {
	OnResult(symbol *MarketSymbol, result *ProcessResult)
	OnRejected(symbol *MarketSymbol, err error)
	OnResync(symbol *MarketSymbol)
}

type MaintainerConfig struct {
	DepthLimit               int
	ChecksumFailureThreshold int
	// MaxResyncs bounds resyncs without a verified update in between; 0 means unbounded.
	MaxResyncs int
}

// OrderbookMaintainer keeps the book of one market in sync: it buffers the
// depth stream, feeds it to the UpdateProcessor one envelope at a time,
// publishes every result and asks for a fresh snapshot when the checksum
// keeps failing.
type OrderbookMaintainer struct {
	symbol    *MarketSymbol
	processor *UpdateProcessor
	streamAPI ProviderStreamAPI
	storage   *OrderBookStorage
	observer  MaintainerObserver
	conf      MaintainerConfig

	depthUpdateQueue deque.Deque[*UpdateEnvelope]
	mu               sync.Mutex
	notify           chan struct{}

	done         chan struct{}
	finished     chan struct{}
	streamClosed chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	sub      *Subscription[*UpdateEnvelope]

	checksumFailures int
	resyncs          int
	err              error
}

func NewOrderBookMaintainer(
	symbol *MarketSymbol,
	streamAPI ProviderStreamAPI,
	storage *OrderBookStorage,
	observer MaintainerObserver,
	conf MaintainerConfig,
) *OrderbookMaintainer {
	if conf.ChecksumFailureThreshold < 1 {
		conf.ChecksumFailureThreshold = 1
	}

	return &OrderbookMaintainer{
		symbol:    symbol,
		processor: NewUpdateProcessor(symbol),
		streamAPI: streamAPI,
		storage:   storage,
		observer:  observer,
		conf:      conf,

		depthUpdateQueue: deque.Deque[*UpdateEnvelope]{},
		notify:           make(chan struct{}, 1),
		done:             make(chan struct{}),
		finished:         make(chan struct{}),
		streamClosed:     make(chan struct{}),
	}
}

// Start subscribes to the depth stream and starts processing in the background.
func (m *OrderbookMaintainer) Start(ctx context.Context) error {
	sub, err := m.streamAPI.DepthStream(ctx, m.symbol, m.conf.DepthLimit)
	if err != nil {
		return fmt.Errorf("error while subscribing to depth stream of %s: %w", m.symbol, err)
	}
	m.sub = sub

	if config.DebugMode {
		logger.Debugf("subscribed to depth stream, Symbol=%s Topic=%s", m.symbol, sub.Topic)
	}

	m.wg.Add(2)
	go m.receive(ctx)
	go m.process(ctx)

	return nil
}

// Stop ends both goroutines and the subscription. It is safe to call more than once.
func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.sub != nil && m.sub.Unsubscribe != nil {
			m.sub.Unsubscribe()
		}
	})
	m.wg.Wait()
}

// Finished is closed once the processing loop has exited.
func (m *OrderbookMaintainer) Finished() <-chan struct{} {
	return m.finished
}

// Err returns the reason the processing loop stopped on its own, if any.
func (m *OrderbookMaintainer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *OrderbookMaintainer) Symbol() *MarketSymbol {
	return m.symbol
}

func (m *OrderbookMaintainer) receive(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case update, ok := <-m.sub.Stream:
			if !ok {
				close(m.streamClosed)
				return
			}

			m.mu.Lock()
			m.depthUpdateQueue.PushBack(update)
			m.mu.Unlock()

			select {
			case m.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (m *OrderbookMaintainer) process(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.finished)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.notify:
		case <-m.streamClosed:
			err := m.drain(ctx)
			if err == nil {
				err = fmt.Errorf("%s: %w", m.symbol, ErrStreamClosed)
			}
			m.fail(err)
			return
		}

		if err := m.drain(ctx); err != nil {
			m.fail(err)
			return
		}
	}
}

// drain handles every queued update in order.
func (m *OrderbookMaintainer) drain(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.depthUpdateQueue.Len() == 0 {
			m.mu.Unlock()
			return nil
		}
		update := m.depthUpdateQueue.PopFront()
		m.mu.Unlock()

		if err := m.handle(ctx, update); err != nil {
			return err
		}
	}
}

func (m *OrderbookMaintainer) fail(err error) {
	logger.WithError(err).Errorf("stopping maintainer of %s", m.symbol)
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *OrderbookMaintainer) handle(ctx context.Context, update *UpdateEnvelope) error {
	result, err := m.processor.Handle(update)
	if err != nil {
		logger.WithError(err).Warnf("rejected update for %s", m.symbol)
		if m.observer != nil {
			m.observer.OnRejected(m.symbol, err)
		}
		return nil
	}

	if !result.Processed {
		if !update.IsRecognized() {
			logger.Infof("unhandled message for %s: %s", m.symbol, string(update.Raw))
		} else if config.DebugMode {
			logger.Debugf("dropped %s update for %s before first snapshot", update.Kind, m.symbol)
		}
		return nil
	}

	m.storage.Add(m.symbol, result.Snapshot)
	if m.observer != nil {
		m.observer.OnResult(m.symbol, result)
	}

	if result.ChecksumValid {
		m.checksumFailures = 0
		m.resyncs = 0
		return nil
	}

	m.checksumFailures++
	logger.Warnf("checksum mismatch for %s: computed=%d reported=%d failures=%d",
		m.symbol, result.ComputedChecksum, result.ReportedChecksum, m.checksumFailures)

	if m.checksumFailures < m.conf.ChecksumFailureThreshold {
		return nil
	}

	if m.conf.MaxResyncs > 0 && m.resyncs >= m.conf.MaxResyncs {
		return fmt.Errorf("%s after %d attempts: %w", m.symbol, m.resyncs, ErrResyncLimitReached)
	}

	m.resyncs++
	m.checksumFailures = 0
	if m.observer != nil {
		m.observer.OnResync(m.symbol)
	}

	logger.Infof("requesting fresh snapshot for %s, attempt %d", m.symbol, m.resyncs)
	if err := m.streamAPI.RequestSnapshot(ctx, m.symbol, m.conf.DepthLimit); err != nil {
		logger.WithError(err).Errorf("failed to request snapshot for %s", m.symbol)
	}

	return nil
}
