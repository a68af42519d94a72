package coinex

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

func gzipFrame(t *testing.T, v interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(v)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// fakeCoinex answers every request with code 0 and, on depth.subscribe,
// pushes a full depth followed by one delta for BTCUSDT and a state.update.
type fakeCoinex struct {
	t *testing.T

	mu       sync.Mutex
	requests []RequestMessage
}

func (f *fakeCoinex) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method)
	}
	return out
}

func (f *fakeCoinex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req RequestMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		code := 0
		if req.Method == "bad.method" {
			code = 20001
		}
		frame := gzipFrame(f.t, map[string]interface{}{"id": req.ID, "code": code, "message": "OK", "data": map[string]interface{}{}})
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}

		if req.Method != methodDepthSubscribe {
			continue
		}

		pushes := []interface{}{
			map[string]interface{}{"method": "depth.update", "data": map[string]interface{}{
				"market": "ETHUSDT", "is_full": true,
				"depth": map[string]interface{}{"bids": [][]string{{"1", "1"}}, "asks": [][]string{}, "checksum": 1},
			}},
			map[string]interface{}{"method": "depth.update", "data": map[string]interface{}{
				"market": "BTCUSDT", "is_full": true,
				"depth": map[string]interface{}{
					"bids":     [][]string{{"10.0", "1"}, {"9.5", "2"}},
					"asks":     [][]string{{"10.5", "1"}},
					"checksum": 2926105937,
				},
			}},
			map[string]interface{}{"method": "depth.update", "data": map[string]interface{}{
				"market": "BTCUSDT", "is_full": false,
				"depth": map[string]interface{}{"bids": [][]string{{"9.5", "0"}}, "checksum": 4227714253},
			}},
			map[string]interface{}{"method": "state.update", "data": map[string]interface{}{"market": "BTCUSDT"}},
		}
		for _, p := range pushes {
			if err := conn.WriteMessage(websocket.BinaryMessage, gzipFrame(f.t, p)); err != nil {
				return
			}
		}
	}
}

func newTestClient(t *testing.T) (*CoinexStreamClient, *fakeCoinex) {
	t.Helper()

	fake := &fakeCoinex{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewCoinexStreamClient("ws"+strings.TrimPrefix(srv.URL, "http"), StreamClientOptions{
		RequestTimeout: time.Second,
		DialAttempts:   1,
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	return client, fake
}

func TestCoinexStreamAPI_DepthStream(t *testing.T) {
	client, fake := newTestClient(t)
	api := NewCoinexStreamAPI(client, "0")

	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)

	sub, err := api.DepthStream(context.Background(), symbol, 10)
	require.NoError(t, err)
	assert.Equal(t, "depth.update:BTCUSDT", sub.Topic)

	var updates, others []*domain.UpdateEnvelope
	for len(updates)+len(others) < 3 {
		select {
		case u := <-sub.Stream:
			if u.IsRecognized() {
				updates = append(updates, u)
			} else {
				others = append(others, u)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for depth updates")
		}
	}
	require.Len(t, updates, 2)
	require.Len(t, others, 1)

	assert.Equal(t, domain.UpdateKindSnapshot, updates[0].Kind, "other markets should be filtered out")
	assert.Equal(t, "BTCUSDT", updates[0].Market)
	assert.Equal(t, uint32(2926105937), updates[0].Checksum)

	assert.Equal(t, domain.UpdateKindDelta, updates[1].Kind)
	assert.Equal(t, [][]string{{"9.5", "0"}}, updates[1].Bids)
	assert.Nil(t, updates[1].Asks, "absent side should stay nil")

	assert.Contains(t, string(others[0].Raw), "state.update", "pushes of other methods are passed through")

	processor := domain.NewUpdateProcessor(symbol)
	for _, u := range updates {
		result, err := processor.Handle(u)
		require.NoError(t, err)
		assert.True(t, result.ChecksumValid)
	}

	result, err := processor.Handle(others[0])
	require.NoError(t, err)
	assert.False(t, result.Processed)

	sub.Unsubscribe()
	assert.Eventually(t, func() bool {
		methods := fake.methods()
		return len(methods) > 0 && methods[len(methods)-1] == methodDepthUnsubscribe
	}, time.Second, 10*time.Millisecond)
}

func TestCoinexStreamAPI_RequestSnapshot(t *testing.T) {
	client, fake := newTestClient(t)
	api := NewCoinexStreamAPI(client, "0")

	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)

	require.NoError(t, api.RequestSnapshot(context.Background(), symbol, 20))
	assert.Equal(t, []string{methodDepthUnsubscribe, methodDepthSubscribe}, fake.methods())
}

func TestCoinexStreamClient_RequestError(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Request(context.Background(), "bad.method", struct{}{})
	assert.ErrorIs(t, err, ErrRequestFailed)

	resp, err := client.Request(context.Background(), methodPing, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)
}

func TestCoinexStreamClient_ConnectGivesUp(t *testing.T) {
	client := NewCoinexStreamClient("ws://127.0.0.1:1", StreamClientOptions{
		DialAttempts: 2,
		BackoffMin:   time.Millisecond,
		BackoffMax:   2 * time.Millisecond,
	})

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")

	_, err = client.Request(context.Background(), methodPing, struct{}{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCoinexStreamClient_PeerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	client := NewCoinexStreamClient("ws"+strings.TrimPrefix(srv.URL, "http"), StreamClientOptions{
		RequestTimeout: 5 * time.Second,
		DialAttempts:   1,
	})
	sub := client.Subscribe(methodDepthUpdate)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case <-client.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the dropped connection")
	}

	_, ok := <-sub.Stream
	assert.False(t, ok, "subscriber streams are closed with the connection")

	start := time.Now()
	_, err := client.Request(context.Background(), methodPing, struct{}{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Less(t, time.Since(start), time.Second, "requests must not wait for the timeout")
}

func TestDecodeDepthUpdate(t *testing.T) {
	update, err := decodeDepthUpdate([]byte(`{"method":"depth.update","data":{"market":"BTCUSDT","is_full":false,"depth":{"asks":[],"checksum":-1,"updated_at":1700000000000}}}`))
	require.NoError(t, err)

	assert.Equal(t, domain.UpdateKindDelta, update.Kind)
	assert.Nil(t, update.Bids, "missing key means the side is absent")
	assert.NotNil(t, update.Asks, "empty list means the side is present")
	assert.Equal(t, uint32(0xFFFFFFFF), update.Checksum, "signed checksums map onto the same CRC")
	assert.Equal(t, int64(1700000000000), update.UpdatedAt)

	raw := []byte(`{"method":"state.update","data":{"market":"BTCUSDT"}}`)
	update, err = decodeDepthUpdate(raw)
	require.NoError(t, err)
	assert.False(t, update.IsRecognized())
	assert.Equal(t, raw, update.Raw)
}
