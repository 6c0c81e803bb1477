// Package gating implements the laser-trigger time-gate predicate shared
// by the time-resolved spectrum modes and the time-gated spim variant:
// walk back in units of period from the last TDC edge, returning the
// back-count if electron_time is within [edge+delay, edge+delay+width).
package gating

import "github.com/wb2osz-labs/tpx3stream/internal/wire"

// TrCheckIfIn reports whether electronTime falls within a laser-trigger
// gate anchored at lastEdge, recurring every period, delayed by delay and
// open for width. It returns the number of periods walked back to find the
// matching gate. A width of zero always reports false: no hits are
// accepted regardless of delay.
//
// The candidate edge is located by exact integer division rather than a
// bounded loop, then checked against its immediate neighbor to absorb
// floor-division boundary cases; arithmetic never touches floating point.
func TrCheckIfIn(electronTime, lastEdge, period, delay, width wire.Tick) (backCount int, ok bool) {
	if width <= 0 || period <= 0 {
		return 0, false
	}

	delta := int64(lastEdge - electronTime)
	p := int64(period)
	n := floorDiv(delta, p)

	if back, matched := tryEdge(electronTime, lastEdge, period, delay, width, n); matched {
		return back, true
	}
	if back, matched := tryEdge(electronTime, lastEdge, period, delay, width, n+1); matched {
		return back, true
	}
	return 0, false
}

func tryEdge(electronTime, lastEdge, period, delay, width wire.Tick, n int64) (int, bool) {
	edge := lastEdge - wire.Tick(n)*period
	lo := edge + delay
	hi := lo + width
	if electronTime >= lo && electronTime < hi {
		return int(n), true
	}
	return 0, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
