package coinex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/coinex-orderbook-sync/config"
	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

var logger = logrus.WithField("component", "coinex")

var (
	ErrNotConnected  = errors.New("coinex stream is not connected")
	ErrTimeout       = errors.New("timeout error")
	ErrRequestFailed = errors.New("coinex request failed")
)

type StreamClientOptions struct {
	PingInterval   time.Duration
	RequestTimeout time.Duration
	DialAttempts   int
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

func StreamClientOptionsFromConfig(cfg *config.Config) StreamClientOptions {
	return StreamClientOptions{
		PingInterval:   cfg.PingInterval,
		RequestTimeout: cfg.RequestTimeout,
		DialAttempts:   cfg.DialAttempts,
		BackoffMin:     cfg.DialBackoffMin,
		BackoffMax:     cfg.DialBackoffMax,
	}
}

type subscriber struct {
	ch   chan []byte
	quit chan struct{}
}

type subscriberSet struct {
	subscribers map[int64]*subscriber
}

// CoinexStreamClient owns the websocket connection: it inflates frames,
// answers requests by id, keeps the session alive with server.ping and fans
// push messages out to subscribers of their method.
type CoinexStreamClient struct {
	endpoint string
	opts     StreamClientOptions
	dialer   *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	pending       map[int64]chan *ResponseMessage
	subscriptions map[string]*subscriberSet

	nextID    atomic.Int64
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewCoinexStreamClient(endpoint string, opts StreamClientOptions) *CoinexStreamClient {
	if opts.DialAttempts < 1 {
		opts.DialAttempts = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	return &CoinexStreamClient{
		endpoint: endpoint,
		opts:     opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
		pending:       make(map[int64]chan *ResponseMessage),
		subscriptions: make(map[string]*subscriberSet),
		done:          make(chan struct{}),
		closed:        make(chan struct{}),
	}
}

// Connect dials the endpoint, retrying with exponential backoff up to
// DialAttempts times, then starts the read and ping loops.
func (c *CoinexStreamClient) Connect(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    c.opts.BackoffMin,
		Max:    c.opts.BackoffMax,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.DialAttempts; attempt++ {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err == nil {
			c.conn = conn
			logger.Infof("connected to the coinex stream websocket %s", c.endpoint)

			c.wg.Add(1)
			go c.read()
			if c.opts.PingInterval > 0 {
				c.wg.Add(1)
				go c.ping()
			}
			return nil
		}

		lastErr = err
		if attempt == c.opts.DialAttempts {
			break
		}

		wait := b.Duration()
		logger.WithError(err).Warnf("dial attempt %d/%d failed, retrying in %s", attempt, c.opts.DialAttempts, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to %s after %d attempts: %w", c.endpoint, c.opts.DialAttempts, lastErr)
}

// Subscribe registers for every push message of method. The returned stream
// is closed when the connection goes away; after Unsubscribe it simply stops
// receiving.
func (c *CoinexStreamClient) Subscribe(method string) *domain.Subscription[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.subscriptions[method]
	if !ok {
		set = &subscriberSet{subscribers: make(map[int64]*subscriber)}
		c.subscriptions[method] = set
	}

	id := c.nextID.Add(1)
	ch := make(chan []byte, 64)
	set.subscribers[id] = &subscriber{ch: ch, quit: make(chan struct{})}

	return &domain.Subscription[[]byte]{
		Stream: ch,
		Unsubscribe: func() {
			c.unsubscribe(method, id)
		},
		Topic: method,
	}
}

func (c *CoinexStreamClient) unsubscribe(method string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.subscriptions[method]
	if !ok {
		return
	}

	if sub, ok := set.subscribers[id]; ok {
		close(sub.quit)
		delete(set.subscribers, id)
	}
	if len(set.subscribers) == 0 {
		delete(c.subscriptions, method)
	}
}

// Request sends method with params and waits for the matching response.
func (c *CoinexStreamClient) Request(ctx context.Context, method string, params interface{}) (*ResponseMessage, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	select {
	case <-c.closed:
		return nil, ErrNotConnected
	default:
	}

	id := c.nextID.Add(1)
	respCh := make(chan *ResponseMessage, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(RequestMessage{ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Code != 0 {
			return resp, fmt.Errorf("%w: %s code=%d message=%s", ErrRequestFailed, method, resp.Code, resp.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrNotConnected
	case <-c.closed:
		return nil, ErrNotConnected
	case <-time.After(c.opts.RequestTimeout):
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	}
}

func (c *CoinexStreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	c.wg.Wait()
	return err
}

// Closed is closed once the connection is gone, whether by Close or by the peer.
func (c *CoinexStreamClient) Closed() <-chan struct{} {
	return c.closed
}

func (c *CoinexStreamClient) read() {
	defer c.wg.Done()
	defer c.closeSubscribers()
	defer close(c.closed)

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				logger.WithError(err).Error("error while reading from connection")
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			msg, err = inflate(msg)
			if err != nil {
				logger.WithError(err).Warn("failed to inflate frame")
				continue
			}
		}

		c.dispatch(msg)
	}
}

func (c *CoinexStreamClient) dispatch(msg []byte) {
	var header frameHeader
	if err := json.Unmarshal(msg, &header); err != nil {
		logger.WithError(err).Warnf("undecodable message %s", string(msg))
		return
	}

	if header.Method != "" {
		c.mu.Lock()
		set, ok := c.subscriptions[header.Method]
		if !ok {
			set, ok = c.subscriptions[methodUnhandled]
		}
		var targets []*subscriber
		if ok {
			for _, sub := range set.subscribers {
				targets = append(targets, sub)
			}
		}
		c.mu.Unlock()

		if !ok {
			logger.Debugf("no subscribers for %s", header.Method)
			return
		}

		for _, sub := range targets {
			select {
			case sub.ch <- msg:
			case <-sub.quit:
			case <-c.done:
			}
		}
		return
	}

	if header.ID == nil {
		logger.Debugf("message without id and method: %s", string(msg))
		return
	}

	var resp ResponseMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		logger.WithError(err).Warnf("undecodable response %s", string(msg))
		return
	}

	c.mu.Lock()
	respCh, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if ok {
		respCh <- &resp
	}
}

func (c *CoinexStreamClient) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for method, set := range c.subscriptions {
		for id, sub := range set.subscribers {
			close(sub.ch)
			delete(set.subscribers, id)
		}
		delete(c.subscriptions, method)
	}
}

func (c *CoinexStreamClient) ping() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
			_, err := c.Request(ctx, methodPing, struct{}{})
			cancel()
			if err != nil {
				logger.WithError(err).Warn("ping failed")
			}
		}
	}
}

func inflate(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
