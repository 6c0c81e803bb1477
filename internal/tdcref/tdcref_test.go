package tdcref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

func TestLearnsPeriodFromTwoEdges(t *testing.T) {
	r := NewPeriodic(wire.TdcOneFalling)
	assert.Equal(t, Learning, r.State)

	require.NoError(t, r.Update(wire.CoarseTick(1000), false))
	assert.Equal(t, Learning, r.State)

	require.NoError(t, r.Update(wire.CoarseTick(9000), false))
	assert.Equal(t, Locked, r.State)
	assert.Equal(t, wire.CoarseTick(8000), r.Period)
}

func TestLockedRejectsNoisyEdge(t *testing.T) {
	r := NewPeriodic(wire.TdcOneFalling)
	require.NoError(t, r.Update(wire.CoarseTick(1000), false))
	require.NoError(t, r.Update(wire.CoarseTick(9000), false))
	require.Equal(t, Locked, r.State)

	// period is 8000; a delta of 40000 (> 4*period) is noise.
	err := r.Update(wire.CoarseTick(49000), false)
	assert.ErrorIs(t, err, ErrNoisyEdge)
	// rejected edge must not move LastTime.
	assert.Equal(t, wire.CoarseTick(9000), r.LastTime)
}

func TestLockedAcceptsEdgeNearEstimate(t *testing.T) {
	r := NewPeriodic(wire.TdcOneFalling)
	require.NoError(t, r.Update(wire.CoarseTick(1000), false))
	require.NoError(t, r.Update(wire.CoarseTick(9000), false))

	require.NoError(t, r.Update(wire.CoarseTick(17000), false))
	assert.Equal(t, wire.CoarseTick(17000), r.LastTime)
	assert.Equal(t, uint64(3), r.Counter)
}

func TestOverflowWrapKeepsTimeMonotone(t *testing.T) {
	r := NewNonPeriodic(wire.TdcTwoRising)

	near := wire.TDCOverflowTicks - wire.CoarseTick(10)
	r.Update(near)
	first := r.LastTime

	// raw time wraps back to a small value; corrected time must still
	// exceed the previous corrected time.
	r.Update(wire.CoarseTick(5))
	assert.Greater(t, int64(r.LastTime), int64(first))
}
