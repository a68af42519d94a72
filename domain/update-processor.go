package domain

import (
	"errors"
	"fmt"
)

var ErrNilUpdate = errors.New("nil update envelope")

// ProcessResult is what the processor hands back for every envelope.
type ProcessResult struct {
	Envelope *UpdateEnvelope

	// Processed is false for envelopes of an unknown kind and for deltas
	// dropped before the first snapshot.
	Processed bool

	Snapshot         *OrderBookSnapshot
	ChecksumValid    bool
	ComputedChecksum uint32
	ReportedChecksum uint32
}

// IntegrityViolation reports a structurally valid update whose resulting
// book does not match the server checksum.
func (r *ProcessResult) IntegrityViolation() bool {
	return r.Processed && !r.ChecksumValid
}

// UpdateProcessor drives one OrderBook through snapshots and deltas and
// verifies every resulting state against the reported checksum.
type UpdateProcessor struct {
	book   *OrderBook
	status OrderBookStatus
}

func NewUpdateProcessor(symbol *MarketSymbol) *UpdateProcessor {
	return &UpdateProcessor{
		book:   NewOrderBook(symbol),
		status: OrderBookStatus_Uninitialized,
	}
}

func (p *UpdateProcessor) Status() OrderBookStatus {
	return p.status
}

// Book exposes the live book. Callers must not touch it from another goroutine.
func (p *UpdateProcessor) Book() *OrderBook {
	return p.book
}

// Handle applies the envelope. A malformed level rejects the whole update
// and leaves the book untouched.
func (p *UpdateProcessor) Handle(update *UpdateEnvelope) (*ProcessResult, error) {
	if update == nil {
		return nil, ErrNilUpdate
	}
	if !update.IsRecognized() {
		return &ProcessResult{Envelope: update}, nil
	}

	bids, err := ParsePriceLevels(SideBid, update.Bids)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", update.Market, err)
	}
	asks, err := ParsePriceLevels(SideAsk, update.Asks)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", update.Market, err)
	}

	if update.IsSnapshot() {
		p.applySnapshot(bids, asks)
	} else {
		if p.status == OrderBookStatus_Uninitialized {
			return &ProcessResult{Envelope: update}, nil
		}
		p.applyDelta(bids, asks)
	}

	computed := Checksum(p.book)
	valid := computed == update.Checksum

	snapshot := p.book.TakeSnapshot(0)
	snapshot.Checksum = computed
	snapshot.ChecksumValid = valid

	return &ProcessResult{
		Envelope:         update,
		Processed:        true,
		Snapshot:         snapshot,
		ChecksumValid:    valid,
		ComputedChecksum: computed,
		ReportedChecksum: update.Checksum,
	}, nil
}

func (p *UpdateProcessor) applySnapshot(bids, asks []PriceLevel) {
	if bids != nil {
		p.book.Reset(SideBid, bids)
	}
	if asks != nil {
		p.book.Reset(SideAsk, asks)
	}
	p.status = OrderBookStatus_Synced
}

func (p *UpdateProcessor) applyDelta(bids, asks []PriceLevel) {
	if bids != nil {
		p.book.Merge(SideBid, bids)
	}
	if asks != nil {
		p.book.Merge(SideAsk, asks)
	}
}
