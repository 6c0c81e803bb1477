// Package tdcref implements the periodic and non-periodic TDC reference
// state machines: tracking a scan-line or trigger clock from a stream of
// TDC edges, including 26-bit-style overflow unification into a monotone
// 64-bit time.
//
// The reference carries no concurrency primitives of its own: it is
// mutated from exactly one goroutine, the decode worker, and read by
// value copy elsewhere, so the state machine is a plain struct.
package tdcref

import (
	"errors"
	"fmt"

	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// ErrNoisyEdge is returned by Update when an edge's delta from the last
// matching edge falls outside [period/4, period*4] during Locked state; the
// edge is rejected and not applied.
var ErrNoisyEdge = errors.New("tdcref: edge delta outside noise bounds")

// State is the PeriodicTdcRef lifecycle state.
type State int

const (
	Learning State = iota
	Locked
)

// PeriodicTdcRef tracks a periodic TDC channel (line-sync, flyback, laser
// trigger) and recovers a monotone absolute time across 26-bit-style
// hardware wraps.
type PeriodicTdcRef struct {
	ID      wire.TdcType
	State   State
	Period  wire.Tick // 0 until Locked
	LowTime wire.Tick // active-fraction duration, from the falling-edge pairing

	BeginFrame wire.Tick
	LastTime   wire.Tick // overflow-corrected
	Counter    uint64

	learnFirst    wire.Tick
	haveFirst     bool
	rawLast       wire.Tick // last raw (pre-correction) time, for wrap detection
	wrapCount     uint64
	fallingSeen   bool
	fallingAtTime wire.Tick
}

// NewPeriodic constructs a reference for the given TDC channel, in the
// Learning state.
func NewPeriodic(id wire.TdcType) *PeriodicTdcRef {
	return &PeriodicTdcRef{ID: id}
}

// EstimatedNext returns the predicted time of the next edge once Locked;
// before that it returns LastTime unchanged.
func (r *PeriodicTdcRef) EstimatedNext() wire.Tick {
	if r.State != Locked {
		return r.LastTime
	}
	return r.LastTime + r.Period
}

// EstimateTime projects forward from the last locked edge by
// (nowCounter - Counter) whole periods, for callers needing a future prediction (used by overflow
// estimation elsewhere).
func (r *PeriodicTdcRef) EstimateTime(nowCounter uint64) wire.Tick {
	if r.State != Locked || nowCounter < r.Counter {
		return r.LastTime
	}
	return r.LastTime + wire.Tick(nowCounter-r.Counter)*r.Period
}

// Update feeds a newly decoded edge of this reference's type into the state
// machine. isFallingEdge marks a falling edge, from which LowTime is taken
// while learning. Hardware wraps are detected from the raw time alone (see
// correctOverflow).
func (r *PeriodicTdcRef) Update(raw wire.Tick, isFallingEdge bool) error {
	corrected := r.correctOverflow(raw)

	switch r.State {
	case Learning:
		if !r.haveFirst {
			r.learnFirst = corrected
			r.haveFirst = true
			r.LastTime = corrected
			r.Counter++
			if isFallingEdge {
				r.fallingSeen = true
				r.fallingAtTime = corrected
			}
			return nil
		}
		if corrected <= r.learnFirst {
			// Not yet ascending; keep waiting without disturbing state.
			return nil
		}
		r.Period = corrected - r.learnFirst
		if r.fallingSeen {
			r.LowTime = r.fallingAtTime - r.learnFirst
		} else if isFallingEdge {
			r.LowTime = corrected - r.learnFirst
		}
		r.State = Locked
		r.LastTime = corrected
		r.BeginFrame = r.learnFirst
		r.Counter++
		return nil

	case Locked:
		delta := corrected - r.LastTime
		if r.Period > 0 && (delta > 4*r.Period || delta*4 < r.Period) {
			return fmt.Errorf("%w: delta=%d period=%d", ErrNoisyEdge, delta, r.Period)
		}
		r.LastTime = corrected
		r.Counter++
		return nil

	default:
		return fmt.Errorf("tdcref: unknown state %d", r.State)
	}
}

// correctOverflow unifies the raw (possibly wrapped) edge time into a
// monotone sequence: a raw time smaller than the last raw time observed
// indicates the hardware's overflow counter wrapped, so the running
// wrap-period offset is added.
func (r *PeriodicTdcRef) correctOverflow(raw wire.Tick) wire.Tick {
	if raw < r.rawLast {
		r.wrapCount++
	}
	r.rawLast = raw
	return raw + wire.Tick(r.wrapCount)*wire.TDCOverflowTicks
}

// NonPeriodicTdcRef tracks a non-periodic TDC channel (e.g. the photon
// stream) without period estimation: every edge simply updates LastTime and
// increments Counter.
type NonPeriodicTdcRef struct {
	ID       wire.TdcType
	LastTime wire.Tick
	Counter  uint64

	rawLast   wire.Tick
	wrapCount uint64
}

func NewNonPeriodic(id wire.TdcType) *NonPeriodicTdcRef {
	return &NonPeriodicTdcRef{ID: id}
}

func (r *NonPeriodicTdcRef) Update(raw wire.Tick) {
	if raw < r.rawLast {
		r.wrapCount++
	}
	r.rawLast = raw
	r.LastTime = raw + wire.Tick(r.wrapCount)*wire.TDCOverflowTicks
	r.Counter++
}

// Ref is a closed sum type over the two reference kinds, rather than an
// interface, so the hot spim/spectrum path never allocates or goes
// through an interface call to read the active reference.
type Ref struct {
	Periodic    *PeriodicTdcRef // non-nil iff Kind == RefPeriodic
	NonPeriodic *NonPeriodicTdcRef
}

type RefKind int

const (
	RefPeriodic RefKind = iota
	RefNonPeriodic
)

func (r Ref) Kind() RefKind {
	if r.Periodic != nil {
		return RefPeriodic
	}
	return RefNonPeriodic
}

// LastTime returns the last recorded time regardless of kind.
func (r Ref) LastTime() wire.Tick {
	if r.Periodic != nil {
		return r.Periodic.LastTime
	}
	return r.NonPeriodic.LastTime
}
