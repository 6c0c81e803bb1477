// Package spectrum accumulates the 1D/2D histogram ("spectrum") frame and
// emits header+payload frames on each TDC period.
package spectrum

import (
	"github.com/wb2osz-labs/tpx3stream/internal/gating"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// Variant selects which of the four spectrum modes a Builder runs.
type Variant int

const (
	Live1D Variant = iota
	Live2D
	LiveTR1D
	LiveTR2D
)

// incrementFunc increments one bytedepth-wide little-endian saturating
// counter at buf[idx*width : idx*width+width]. Choosing this once at
// construction (see newIncrementer) rather than switching on ByteDepth
// inside the per-hit loop keeps the hot path branch-free without
// codegen'ing four copies of Builder.
type incrementFunc func(buf []byte, idx int)

func newIncrementer(byteDepth int) incrementFunc {
	switch byteDepth {
	case 1:
		return func(buf []byte, idx int) {
			if buf[idx] != 0xFF {
				buf[idx]++
			}
		}
	case 2:
		return func(buf []byte, idx int) {
			o := idx * 2
			if buf[o] != 0xFF {
				buf[o]++
				return
			}
			if buf[o+1] != 0xFF {
				buf[o] = 0
				buf[o+1]++
				return
			}
			// saturate: leave at 0xFFFF
		}
	case 4:
		return func(buf []byte, idx int) {
			o := idx * 4
			for k := 0; k < 4; k++ {
				if buf[o+k] != 0xFF {
					buf[o+k]++
					for j := 0; j < k; j++ {
						buf[o+j] = 0
					}
					return
				}
			}
			// saturate: leave at 0xFFFFFFFF
		}
	case 8:
		return func(buf []byte, idx int) {
			o := idx * 8
			for k := 0; k < 8; k++ {
				if buf[o+k] != 0xFF {
					buf[o+k]++
					for j := 0; j < k; j++ {
						buf[o+j] = 0
					}
					return
				}
			}
			// saturate.
		}
	default:
		return func(buf []byte, idx int) {}
	}
}

// Builder accumulates one spectrum frame. It is not safe for concurrent
// use; the decode worker that owns it has exclusive access.
type Builder struct {
	variant   Variant
	bin       bool
	cumul     bool
	byteDepth int
	width     int
	height    int

	measurementID string
	frameNumber   uint64

	buf       []byte
	increment incrementFunc

	// time-resolved gate parameters; zero-valued and unused for Live1D/Live2D.
	delay, periodWidth wire.Tick
}

// New constructs a Builder. width/height are the frame dimensions; for a
// binned (1D) variant height is always reported as 1 in the header, though
// the backing buffer is still width-only.
func New(variant Variant, bin, cumul bool, byteDepth, width, height int, delay, periodWidth wire.Tick) *Builder {
	h := height
	if bin {
		h = 1
	}
	cells := width * h
	return &Builder{
		variant:       variant,
		bin:           bin,
		cumul:         cumul,
		byteDepth:     byteDepth,
		width:         width,
		height:        h,
		buf:           make([]byte, cells*byteDepth),
		increment:     newIncrementer(byteDepth),
		delay:         delay,
		periodWidth:   periodWidth,
		measurementID: "Null",
	}
}

// cellIndex resolves the histogram bin: bin ? x : x + W·y.
func (b *Builder) cellIndex(x, y int) int {
	if b.bin {
		return x
	}
	return x + b.width*y
}

// Accept records one electron hit at (x, y). For the time-resolved
// variants, refTime/refPeriod identify the active laser-trigger TDC edge
// and period; Accept silently drops the hit if it falls outside the gate.
func (b *Builder) Accept(x, y int, electronTime, refTime, refPeriod wire.Tick) {
	switch b.variant {
	case LiveTR1D, LiveTR2D:
		if _, ok := gating.TrCheckIfIn(electronTime, refTime, refPeriod, b.delay, b.periodWidth); !ok {
			return
		}
	}
	idx := b.cellIndex(x, y)
	if idx < 0 || idx >= b.width*b.height {
		return
	}
	b.increment(b.buf, idx)
}

// Build emits the current frame and, if Cumul is false, clears the
// accumulator for the next one. frameCounter is the TDC's own counter.
func (b *Builder) Build(timeAtFrame wire.Tick, frameCounter uint64) Frame {
	payload := make([]byte, len(b.buf))
	copy(payload, b.buf)

	header := HeaderLine(timeAtFrame.Seconds(), frameCounter, len(payload), b.byteDepth*8, b.width, b.height)

	if !b.cumul {
		clear(b.buf)
	}

	b.frameNumber = frameCounter
	return Frame{Header: header, Payload: payload}
}

// Width and Height expose the configured dimensions (for tests/callers).
func (b *Builder) Width() int  { return b.width }
func (b *Builder) Height() int { return b.height }
func (b *Builder) ByteDepth() int { return b.byteDepth }
