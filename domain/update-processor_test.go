package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CRC-32/IEEE of the rendered books used below.
const (
	checksumScenarioA uint32 = 2926105937 // "10.0:1:9.5:2:10.5:1"
	checksumScenarioB uint32 = 3476303603 // "10.0:1"
	checksumScenarioC uint32 = 368291297  // "10.0:1:10.5:3"
)

func scenarioA() *UpdateEnvelope {
	return NewSnapshotUpdate("BTCUSDT",
		[][]string{{"10.0", "1"}, {"9.5", "2"}},
		[][]string{{"10.5", "1"}},
		checksumScenarioA,
	)
}

func TestChecksum_ScenarioA(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))

	result, err := p.Handle(scenarioA())
	require.NoError(t, err)

	assert.Equal(t, "10.0:1:9.5:2:10.5:1", ChecksumString(p.Book()))
	assert.True(t, result.Processed)
	assert.True(t, result.ChecksumValid)
	assert.Equal(t, checksumScenarioA, result.ComputedChecksum)
	assert.Equal(t, OrderBookStatus_Synced, p.Status())
}

func TestUpdateProcessor_ScenariosBC(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(scenarioA())
	require.NoError(t, err)

	// B: remove a bid, asks untouched.
	result, err := p.Handle(NewDeltaUpdate("BTCUSDT", [][]string{{"9.5", "0"}}, nil, 0))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"10.0", "1"}}, result.Snapshot.Bids)
	assert.Equal(t, [][]string{{"10.5", "1"}}, result.Snapshot.Asks)
	assert.False(t, result.ChecksumValid, "reported checksum 0 does not match")
	assert.True(t, result.IntegrityViolation())

	// C: overwrite the ask.
	result, err = p.Handle(NewDeltaUpdate("BTCUSDT", nil, [][]string{{"10.5", "3"}}, checksumScenarioC))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"10.0", "1"}}, result.Snapshot.Bids)
	assert.Equal(t, [][]string{{"10.5", "3"}}, result.Snapshot.Asks)
	assert.Equal(t, "10.0:1:10.5:3", ChecksumString(p.Book()))
	assert.True(t, result.ChecksumValid)
	assert.True(t, result.Snapshot.ChecksumValid)
}

func TestUpdateProcessor_RejectsMalformedAtomically(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(scenarioA())
	require.NoError(t, err)
	before := p.Book().TakeSnapshot(0)

	// D: the valid bid must not be applied when the ask is broken.
	_, err = p.Handle(NewDeltaUpdate("BTCUSDT",
		[][]string{{"9.5", "0"}},
		[][]string{{"10.5", "abc"}},
		0,
	))
	require.ErrorIs(t, err, ErrMalformedInput)

	after := p.Book().TakeSnapshot(0)
	assert.Equal(t, before.Bids, after.Bids)
	assert.Equal(t, before.Asks, after.Asks)
	assert.Equal(t, checksumScenarioA, Checksum(p.Book()))
}

func TestUpdateProcessor_RejectsNegativeSize(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(scenarioA())
	require.NoError(t, err)
	before := p.Book().TakeSnapshot(0)

	_, err = p.Handle(NewDeltaUpdate("BTCUSDT", [][]string{{"9.0", "-3"}}, nil, 0))
	require.ErrorIs(t, err, ErrMalformedInput)

	after := p.Book().TakeSnapshot(0)
	assert.Equal(t, before.Bids, after.Bids)
	assert.Equal(t, before.Asks, after.Asks)
	for _, level := range p.Book().Bids.Levels() {
		assert.True(t, level.Size.IsPositive(), "resting size must be positive: %s", level.SizeText)
	}
}

func TestUpdateProcessor_NilUpdate(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))

	_, err := p.Handle(nil)
	assert.ErrorIs(t, err, ErrNilUpdate)
	assert.Equal(t, OrderBookStatus_Uninitialized, p.Status())
}

func TestUpdateProcessor_DeltaBeforeSnapshot(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))

	result, err := p.Handle(NewDeltaUpdate("BTCUSDT",
		[][]string{{"10", "1"}},
		[][]string{{"11", "1"}},
		0,
	))
	require.NoError(t, err)

	assert.False(t, result.Processed)
	assert.True(t, p.Book().Bids.IsEmpty())
	assert.True(t, p.Book().Asks.IsEmpty())
	assert.Equal(t, OrderBookStatus_Uninitialized, p.Status())
}

func TestUpdateProcessor_IdempotentSnapshot(t *testing.T) {
	once := NewUpdateProcessor(testSymbol(t))
	_, err := once.Handle(scenarioA())
	require.NoError(t, err)

	twice := NewUpdateProcessor(testSymbol(t))
	_, err = twice.Handle(scenarioA())
	require.NoError(t, err)
	_, err = twice.Handle(scenarioA())
	require.NoError(t, err)

	assert.Equal(t, ChecksumString(once.Book()), ChecksumString(twice.Book()))
	assert.Equal(t, once.Book().TakeSnapshot(0).Bids, twice.Book().TakeSnapshot(0).Bids)
	assert.Equal(t, once.Book().TakeSnapshot(0).Asks, twice.Book().TakeSnapshot(0).Asks)
}

func TestUpdateProcessor_SnapshotReplacesOnlyPresentSides(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(scenarioA())
	require.NoError(t, err)

	result, err := p.Handle(NewSnapshotUpdate("BTCUSDT", [][]string{{"10.0", "1"}}, nil, checksumScenarioB))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"10.0", "1"}}, result.Snapshot.Bids)
	assert.Equal(t, [][]string{{"10.5", "1"}}, result.Snapshot.Asks, "absent asks are left untouched")
}

func TestUpdateProcessor_EmptySideSnapshotClears(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(scenarioA())
	require.NoError(t, err)

	result, err := p.Handle(NewSnapshotUpdate("BTCUSDT", [][]string{{"10.0", "1"}}, [][]string{}, checksumScenarioB))
	require.NoError(t, err)

	assert.Empty(t, result.Snapshot.Asks, "an empty list is a present side")
	assert.True(t, result.ChecksumValid)
}

func TestUpdateProcessor_UnknownKindPassesThrough(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	raw := []byte(`{"method":"state.update"}`)

	result, err := p.Handle(&UpdateEnvelope{Kind: "state", Raw: raw})
	require.NoError(t, err)

	assert.False(t, result.Processed)
	assert.Equal(t, raw, result.Envelope.Raw)
	assert.Nil(t, result.Snapshot)
}

func TestChecksum_Deterministic(t *testing.T) {
	p := NewUpdateProcessor(testSymbol(t))
	_, err := p.Handle(NewSnapshotUpdate("BTCUSDT",
		[][]string{{"9.9", "1"}, {"9.10", "2"}, {"10", "4"}},
		[][]string{},
		0,
	))
	require.NoError(t, err)

	assert.Equal(t, "10:4:9.9:1:9.10:2", ChecksumString(p.Book()))
	assert.Equal(t, Checksum(p.Book()), Checksum(p.Book()))
	assert.True(t, VerifyChecksum(p.Book(), Checksum(p.Book())))
}

func TestChecksum_EmptyBook(t *testing.T) {
	ob := NewOrderBook(testSymbol(t))

	assert.Equal(t, "", ChecksumString(ob))
	assert.Equal(t, uint32(0), Checksum(ob))
}
