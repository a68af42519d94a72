package domain

type UpdateKind string

const (
	UpdateKindSnapshot UpdateKind = "snapshot"
	UpdateKindDelta    UpdateKind = "delta"
)

// UpdateEnvelope is one decoded depth message for a market. A nil Bids or
// Asks means the side is absent from the message, which is different from
// an empty list.
type UpdateEnvelope struct {
	Kind      UpdateKind
	Market    string
	Bids      [][]string
	Asks      [][]string
	Checksum  uint32
	UpdatedAt int64

	// Raw holds the undecoded message for kinds the processor does not know.
	Raw []byte
}

func NewSnapshotUpdate(market string, bids, asks [][]string, checksum uint32) *UpdateEnvelope {
	return &UpdateEnvelope{
		Kind:     UpdateKindSnapshot,
		Market:   market,
		Bids:     bids,
		Asks:     asks,
		Checksum: checksum,
	}
}

func NewDeltaUpdate(market string, bids, asks [][]string, checksum uint32) *UpdateEnvelope {
	return &UpdateEnvelope{
		Kind:     UpdateKindDelta,
		Market:   market,
		Bids:     bids,
		Asks:     asks,
		Checksum: checksum,
	}
}

func (u *UpdateEnvelope) IsSnapshot() bool {
	return u.Kind == UpdateKindSnapshot
}

func (u *UpdateEnvelope) IsRecognized() bool {
	return u.Kind == UpdateKindSnapshot || u.Kind == UpdateKindDelta
}
