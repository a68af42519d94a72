package coinex

import (
	"encoding/json"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

const (
	methodPing             = "server.ping"
	methodDepthSubscribe   = "depth.subscribe"
	methodDepthUnsubscribe = "depth.unsubscribe"
	methodDepthUpdate      = "depth.update"

	// methodUnhandled receives push messages of methods nobody subscribed to.
	methodUnhandled = "*"
)

type RequestMessage struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// ResponseMessage is the reply to a request, matched by ID.
type ResponseMessage struct {
	ID      int64           `json:"id"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// frameHeader is decoded first to route a frame to a waiting request or to
// the subscribers of a push method.
type frameHeader struct {
	ID     *int64 `json:"id"`
	Method string `json:"method"`
}

type DepthUpdateMessage struct {
	Method string          `json:"method"`
	Data   DepthUpdateData `json:"data"`
}

type DepthUpdateData struct {
	Market string     `json:"market"`
	IsFull bool       `json:"is_full"`
	Depth  DepthModel `json:"depth"`
}

// DepthModel keeps bids/asks nil when the key is missing from the message.
type DepthModel struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Last      string     `json:"last"`
	UpdatedAt int64      `json:"updated_at"`
	Checksum  int64      `json:"checksum"`
}

// ToEnvelope converts a depth payload into the processor's input.
func (d *DepthUpdateData) ToEnvelope() *domain.UpdateEnvelope {
	kind := domain.UpdateKindDelta
	if d.IsFull {
		kind = domain.UpdateKindSnapshot
	}

	return &domain.UpdateEnvelope{
		Kind:   kind,
		Market: d.Market,
		Bids:   d.Depth.Bids,
		Asks:   d.Depth.Asks,
		// the server may send the CRC as a signed 32-bit value
		Checksum:  uint32(d.Depth.Checksum),
		UpdatedAt: d.Depth.UpdatedAt,
	}
}

func decodeDepthUpdate(raw []byte) (*domain.UpdateEnvelope, error) {
	var msg DepthUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	if msg.Method != methodDepthUpdate {
		return &domain.UpdateEnvelope{Market: msg.Data.Market, Raw: raw}, nil
	}

	return msg.Data.ToEnvelope(), nil
}

// depthSubscription is one entry of depth.subscribe's market_list:
// [market, limit, interval, is_full].
func depthSubscription(market string, limit int, interval string) []interface{} {
	return []interface{}{market, limit, interval, false}
}
