// Package spim maps electron-arrival times into scan-synchronized
// hyperspectral image indices: the spim-detector algorithm, its
// time-gated variant, run-length-encoded frame output, and the
// cluster-suppressed index variant.
package spim

import (
	"github.com/wb2osz-labs/tpx3stream/internal/gating"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// Builder accumulates flat spim indices for one scan frame (or line,
// depending on the caller's flush cadence) and produces run-length-encoded
// output on demand.
type Builder struct {
	XSpim, YSpim      int
	SpimOverscanY     int
	EnergyChannels    int
	ForwardOnly       bool // when true, flyback hits are discarded rather than routed to ReturnSpectra

	indices       []uint32
	returnSpectra []uint32
}

// New constructs a Builder. energyChannels is the size of the energy axis
// folded into each (line, column) bucket.
func New(xspim, yspim, spimOverscanY, energyChannels int, forwardOnly bool) *Builder {
	return &Builder{
		XSpim:          xspim,
		YSpim:          yspim,
		SpimOverscanY:  spimOverscanY,
		EnergyChannels: energyChannels,
		ForwardOnly:    forwardOnly,
	}
}

// Detect runs the spim-detector algorithm: given the hit time t, the
// current line's begin time, its period and low time (active-fraction
// duration), it returns the (line, column) the hit maps to, or ok=false
// if the hit falls in flyback/return.
func Detect(t, begin, period, lowTime wire.Tick, xspim, yspim, spimOverscanY int) (line, column int, ok bool) {
	if period <= 0 {
		return 0, 0, false
	}

	ratioNum := int64(t - begin)
	periodTicks := int64(period)

	flo := floorDiv(ratioNum, periodTicks)
	fracNum := ratioNum - flo*periodTicks // in [0, periodTicks)

	if ratioNum < 0 || fracNum > int64(lowTime) {
		return 0, 0, false
	}

	overscanY := int64(spimOverscanY)
	if overscanY < 1 {
		overscanY = 1
	}
	yspimI := int64(yspim)
	if yspimI < 1 {
		yspimI = 1
	}
	// flo >= 0 here (ratioNum < 0 already rejected above), so plain
	// integer division and modulo are exact floor operations.
	line = int((flo / overscanY) % yspimI)

	column = 0
	if lowTime > 0 {
		column = int(int64(xspim) * fracNum / int64(lowTime))
		if column >= xspim {
			column = xspim - 1
		}
	}

	return line, column, true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Index computes the flat spim index:
// (line*xspim + column)*energyChannels + energy_channel.
func (b *Builder) Index(line, column, energyChannel int) uint32 {
	return uint32((line*b.XSpim+column)*b.EnergyChannels + energyChannel)
}

// Accept maps one electron hit and records its flat index, or routes it to
// ReturnSpectra (if enabled) when it falls in flyback.
func (b *Builder) Accept(t, begin, period, lowTime wire.Tick, energyChannel int) {
	line, column, ok := Detect(t, begin, period, lowTime, b.XSpim, b.YSpim, b.SpimOverscanY)
	if !ok {
		if !b.ForwardOnly {
			b.returnSpectra = append(b.returnSpectra, b.Index(0, 0, energyChannel))
		}
		return
	}
	b.indices = append(b.indices, b.Index(line, column, energyChannel))
}

// AcceptGated is the time-gated variant: in addition to the scan gate
// above, the hit must also pass the laser-trigger predicate shared via
// the gating package.
func (b *Builder) AcceptGated(t, begin, period, lowTime wire.Tick, energyChannel int, laserLast, laserPeriod, delay, width wire.Tick) {
	if _, ok := gating.TrCheckIfIn(t, laserLast, laserPeriod, delay, width); !ok {
		return
	}
	b.Accept(t, begin, period, lowTime, energyChannel)
}

// ReturnSpectra exposes the flyback-routed indices, if enabled.
func (b *Builder) ReturnSpectra() []uint32 { return b.returnSpectra }

// Reset clears accumulated indices for the next line/frame.
func (b *Builder) Reset() {
	b.indices = b.indices[:0]
	b.returnSpectra = b.returnSpectra[:0]
}

// Len reports how many raw hits are currently accumulated.
func (b *Builder) Len() int { return len(b.indices) }

// Indices exposes the raw (unsorted) accumulated indices, primarily for
// tests.
func (b *Builder) Indices() []uint32 { return b.indices }
