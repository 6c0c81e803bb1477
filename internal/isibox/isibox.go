// Package isibox synchronizes the external IsiBox photon counter's 26-bit,
// 120 ps-tick clock against the detector's TP3 line-sync TDC.
package isibox

import (
	"errors"
	"fmt"
	"sort"
)

// Channel16 is the IsiBox line-sync channel used to discover and repair
// the scan's line_time.
const Channel16 = 16

// overflowPeriod is the wrap period of the IsiBox's 26-bit tick counter.
const overflowPeriod = int64(1) << 26

// ErrCouldNotSync is returned when line-sync repair and re-pairing fail to
// converge across more than half of the file's line edges.
var ErrCouldNotSync = errors.New("isibox: could not synchronize with TP3 line reference")

// Event is one IsiBox channel edge, time in 120 ps ticks (pre-overflow
// correction when read directly off the wire).
type Event struct {
	Time    int64
	Channel uint8
}

// CorrectOverflow unifies a time-sorted-by-arrival (not necessarily
// monotone) IsiBox event stream into monotone time by counting wraps of
// the 26-bit field.
func CorrectOverflow(events []Event) []Event {
	out := make([]Event, len(events))
	var wraps int64
	var last int64
	for i, e := range events {
		if e.Time < last {
			wraps++
		}
		last = e.Time
		out[i] = Event{Time: e.Time + wraps*overflowPeriod, Channel: e.Channel}
	}
	return out
}

// DetectLineTime scans channel-16 edges (assumed already overflow-corrected
// and time-sorted) for the minimal stable delta between consecutive edges.
func DetectLineTime(events []Event) (int64, error) {
	var deltas []int64
	var lastT int64
	have := false
	for _, e := range events {
		if e.Channel != Channel16 {
			continue
		}
		if have {
			deltas = append(deltas, e.Time-lastT)
		}
		lastT = e.Time
		have = true
	}
	if len(deltas) == 0 {
		return 0, fmt.Errorf("isibox: no channel-16 edges to determine line_time")
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return deltas[0], nil
}

// RepairScanReference inserts synthetic channel-16 events, spaced by
// lineTime, wherever an observed delta exceeds lineTime by more than 1000
// ticks, so a dropped line pulse doesn't desynchronize the scan reference.
// A channel-16 edge whose delta falls short of lineTime by more than 1000
// ticks is dropped and becomes the anchor for the next delta; no synthetic
// event is inserted in that case.
func RepairScanReference(events []Event, lineTime int64) []Event {
	const tolerance = 1000

	var out []Event
	var lastT int64
	have := false

	for _, e := range events {
		if e.Channel != Channel16 {
			out = append(out, e)
			continue
		}
		if !have {
			out = append(out, e)
			lastT = e.Time
			have = true
			continue
		}

		delta := e.Time - lastT
		switch {
		case delta > lineTime+tolerance:
			// one or more missing pulses: insert synthetic edges spaced
			// by lineTime until within tolerance of the real one.
			t := lastT + lineTime
			for e.Time-t > tolerance {
				out = append(out, Event{Time: t, Channel: Channel16})
				t += lineTime
			}
			out = append(out, e)
		case delta < lineTime-tolerance:
			// spurious extra pulse: drop it rather than emit a synthetic
			// one, but keep the real-world timestamp as the new anchor.
		default:
			out = append(out, e)
		}
		lastT = e.Time
	}
	return out
}

// Pair is one TP3-line-edge / IsiBox-channel-16-edge correspondence, with
// the offset to apply to IsiBox events in that interval.
type Pair struct {
	Tp3Time int64
	IsiTime int64
	Offset  int64 // Tp3Time - IsiTime
}

// isiTp3MaxDif is the maximum tolerated jump in offset between adjacent
// pairs before it's treated as a loss of synchronization.
const isiTp3MaxDif = 1000

// Synchronize pairs each TP3 line edge, in order, with the next unpaired
// IsiBox channel-16 edge and computes the offset to propagate to IsiBox
// events since the previous pair. If the offset jumps by more than isiTp3MaxDif between adjacent
// pairs it is treated as sync loss; failing to recover across more than
// half the line edges aborts with ErrCouldNotSync. Retrying with a
// one-edge skip is the caller's responsibility — Synchronize only reports
// the failure.
func Synchronize(tp3LineEdges []int64, isiCh16Edges []Event) ([]Pair, error) {
	pairs := make([]Pair, 0, len(tp3LineEdges))
	isiIdx := 0
	var lastOffset int64
	haveLastOffset := false
	lostCount := 0

	for _, tp3t := range tp3LineEdges {
		if isiIdx >= len(isiCh16Edges) {
			break
		}
		isiT := isiCh16Edges[isiIdx].Time
		offset := tp3t - isiT

		if haveLastOffset {
			diff := offset - lastOffset
			if diff < 0 {
				diff = -diff
			}
			if diff > isiTp3MaxDif {
				lostCount++
			}
		}
		lastOffset = offset
		haveLastOffset = true

		pairs = append(pairs, Pair{Tp3Time: tp3t, IsiTime: isiT, Offset: offset})
		isiIdx++
	}

	if len(tp3LineEdges) > 0 && lostCount*2 > len(tp3LineEdges) {
		return pairs, ErrCouldNotSync
	}
	return pairs, nil
}

// CorrectVector applies each pair's offset to the IsiBox events observed
// since the previous pair, returning corrected absolute times in the TP3
// time base.
func CorrectVector(events []Event, pairs []Pair) []int64 {
	out := make([]int64, len(events))
	pairIdx := 0
	for i, e := range events {
		for pairIdx+1 < len(pairs) && pairs[pairIdx].IsiTime < e.Time {
			pairIdx++
		}
		offset := int64(0)
		if len(pairs) > 0 {
			offset = pairs[pairIdx].Offset
		}
		out[i] = e.Time + offset
	}
	return out
}
