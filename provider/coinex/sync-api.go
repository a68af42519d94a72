package coinex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spooky-finn/coinex-orderbook-sync/config"
	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

type restResponse struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// CoinexSyncAPI fetches depth snapshots over the public REST API.
type CoinexSyncAPI struct {
	endpoint string
	interval string
	cli      *http.Client
}

func NewCoinexSyncAPI(endpoint string, interval string, timeout time.Duration) *CoinexSyncAPI {
	if interval == "" {
		interval = "0"
	}

	return &CoinexSyncAPI{
		endpoint: strings.TrimRight(endpoint, "/"),
		interval: interval,
		cli:      &http.Client{Timeout: timeout},
	}
}

// OrderBookSnapshot fetches at least limit levels per side; limit <= 0 asks for the deepest book.
// The result may hold more levels than limit, callers trim it.
func (api *CoinexSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.UpdateEnvelope, error) {
	params := url.Values{}
	params.Add("market", symbol.Market())
	params.Add("limit", strconv.Itoa(depthRequestLimit(limit)))
	params.Add("interval", api.interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.endpoint+"/spot/depth?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := api.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get order book snapshot: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrRequestFailed, res.StatusCode, body)
	}

	var resp restResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %w, response: %s", err, body)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: code=%d message=%s", ErrRequestFailed, resp.Code, resp.Message)
	}

	var data DepthUpdateData
	if err = json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal depth: %w, response: %s", err, resp.Data)
	}

	// a REST depth is always a complete book
	data.IsFull = true
	snapshot := data.ToEnvelope()
	if snapshot.Bids == nil {
		snapshot.Bids = [][]string{}
	}
	if snapshot.Asks == nil {
		snapshot.Asks = [][]string{}
	}

	return snapshot, nil
}

// depthRequestLimit picks the smallest accepted depth that covers limit.
func depthRequestLimit(limit int) int {
	deepest := config.SupportedDepthLimits[len(config.SupportedDepthLimits)-1]
	if limit <= 0 {
		return deepest
	}
	for _, l := range config.SupportedDepthLimits {
		if l >= limit {
			return l
		}
	}
	return deepest
}
