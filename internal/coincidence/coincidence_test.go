package coincidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSingleMatchWithinWindow(t *testing.T) {
	// electron t=1_000_000, photon t=6_000_624 (p.t/6 = 1_000_104),
	// delay=104, width=40 -> match, rel_time ~= 0.
	e := NewEngine(104, 40)
	electrons := []ElectronEvent{{Time: 1_000_000, X: 1, Y: 2, SpimIndex: NoSpimIndex}}
	photons := []PhotonEvent{{Time: 6_000_624, Channel: 3}}

	matches := e.Match(electrons, photons)
	require.Len(t, matches, 1)
	assert.Equal(t, int16(0), matches[0].RelTime)
	assert.Equal(t, uint8(3), matches[0].Channel)
}

func TestNoMatchOutsideWindow(t *testing.T) {
	e := NewEngine(0, 10)
	electrons := []ElectronEvent{{Time: 1_000_000}}
	photons := []PhotonEvent{{Time: 6 * 1_100_000}}
	matches := e.Match(electrons, photons)
	assert.Empty(t, matches)
}

func TestSecondPhotonGoesToDoubleHistogram(t *testing.T) {
	e := NewEngine(0, 100)
	electrons := []ElectronEvent{{Time: 1_000_000}}
	photons := []PhotonEvent{
		{Time: 6 * 1_000_010},
		{Time: 6 * 1_000_020},
	}
	matches := e.Match(electrons, photons)
	require.Len(t, matches, 2)
	require.Len(t, e.DoubleHist, 1)
	assert.Equal(t, int16(10), e.DoubleHist[0].RelTime1)
	assert.Equal(t, int16(20), e.DoubleHist[0].RelTime2)
}

func TestThirdPhotonOnlyAddsMatchNotDoubleHistogram(t *testing.T) {
	e := NewEngine(0, 100)
	electrons := []ElectronEvent{{Time: 1_000_000}}
	photons := []PhotonEvent{
		{Time: 6 * 1_000_010},
		{Time: 6 * 1_000_020},
		{Time: 6 * 1_000_030},
	}
	matches := e.Match(electrons, photons)
	require.Len(t, matches, 3)
	require.Len(t, e.DoubleHist, 1)
}

func TestMinIndexAdvancesAmortized(t *testing.T) {
	// One electron whose first coincident photon is the 11th in the
	// window (0-based index 10): index_to_increase = 10, so MinIndex
	// advances by 10/PHOTON_LIST_STEP = 1.
	e := NewEngine(0, 1)
	photons := make([]PhotonEvent, 11)
	for i := 0; i < 10; i++ {
		photons[i] = PhotonEvent{Time: 6 * 1050} // within slack, outside the width=1 match window
	}
	photons[10] = PhotonEvent{Time: 6 * 1000} // exact match

	matches := e.Match([]ElectronEvent{{Time: 1000}}, photons)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, e.MinIndex)
}

// TestMatchWindowInvariant checks that for every output tuple (e,p),
// |e.t + delay - p.t/6| <= width.
func TestMatchWindowInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		delay := rapid.Int64Range(-1000, 1000).Draw(rt, "delay")
		width := rapid.Int64Range(1, 500).Draw(rt, "width")
		eTime := rapid.Int64Range(0, 1_000_000).Draw(rt, "eTime")
		pTime := rapid.Int64Range(0, 6_000_000).Draw(rt, "pTime")

		e := NewEngine(delay, width)
		matches := e.Match(
			[]ElectronEvent{{Time: eTime}},
			[]PhotonEvent{{Time: pTime}},
		)
		for _, m := range matches {
			diff := (eTime + delay) - pTime/6
			if diff < 0 {
				diff = -diff
			}
			assert.LessOrEqual(rt, diff, width)
			_ = m
		}
	})
}
