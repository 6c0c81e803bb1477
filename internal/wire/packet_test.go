package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeChipHeaderThenPixel(t *testing.T) {
	d := NewDecoder(EELSStrip1x4)

	header := [PacketSize]byte{0x54, 0x50, 0x58, 0x33, 0x02, 0x00, 0x00, 0x00}
	ev, err := d.Decode(header)
	require.NoError(t, err)
	assert.Equal(t, EventChipHeader, ev.Kind)
	assert.Equal(t, uint8(2), ev.Header.Chip)
	assert.Equal(t, uint8(2), d.ActiveChip())

	pixelWord := EncodePixelHit(PixelHit{LocalX: 5, Y: 10, ToA: 0, FineToA: 0, ToT: 1, SPIDR: 0})
	ev, err = d.Decode(pixelWord)
	require.NoError(t, err)
	require.Equal(t, EventPixelHit, ev.Kind)
	assert.Equal(t, uint8(5), ev.Pixel.LocalX)
	assert.Equal(t, uint8(10), ev.Pixel.Y)
	assert.Equal(t, uint8(2), ev.Pixel.Chip)
	// chip 2 is not flipped in the default mosaic table.
	assert.Equal(t, 2*ChipWidth+5, ev.Pixel.X)
}

func TestDecodeTdcEdgeRoundTrip(t *testing.T) {
	edge := TdcEdge{Type: TdcOneFalling, Coarse: 123456789, Fine: 5, Counter: 999}
	word := EncodeTdcEdge(edge)

	d := NewDecoder(SingleChip)
	ev, err := d.Decode(word)
	require.NoError(t, err)
	require.Equal(t, EventTdcEdge, ev.Kind)
	assert.Equal(t, edge.Type, ev.Tdc.Type)
	assert.Equal(t, edge.Coarse, ev.Tdc.Coarse)
	assert.Equal(t, edge.Fine, ev.Tdc.Fine)
	assert.Equal(t, edge.Counter, ev.Tdc.Counter)
}

func TestPacketsRejectsMisalignedBuffer(t *testing.T) {
	_, err := Packets(make([]byte, 13))
	assert.ErrorIs(t, err, ErrDecodeAlignment)
}

func TestChipHeaderThenPixelHitEndToEnd(t *testing.T) {
	// header chip 0, pixel x=5,y=10,toa=0,ftoa=0,tot=1,spidr=0.
	d := NewDecoder(SingleChip)
	_, err := d.Decode([PacketSize]byte{0x54, 0x50, 0x58, 0x33, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	ev, err := d.Decode(EncodePixelHit(PixelHit{LocalX: 5, Y: 10, ToT: 1}))
	require.NoError(t, err)
	require.Equal(t, EventPixelHit, ev.Kind)
	assert.Equal(t, 5, ev.Pixel.X)
	assert.Equal(t, uint8(10), ev.Pixel.Y)
	assert.Equal(t, uint16(1), ev.Pixel.ToT)
}

// TestPixelHitRoundTrip checks that decoding then re-encoding a pixel
// packet yields the original 8 bytes, against adversarial field
// combinations via rapid.
func TestPixelHitRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		localX := uint8(rapid.IntRange(0, 255).Draw(rt, "localX"))
		y := uint8(rapid.IntRange(0, 255).Draw(rt, "y"))
		toa := uint16(rapid.IntRange(0, 0x3FFF).Draw(rt, "toa"))
		tot := uint16(rapid.IntRange(0, 0x3FF).Draw(rt, "tot"))
		fToA := uint8(rapid.IntRange(0, 0xF).Draw(rt, "fToA"))
		spidr := uint16(rapid.IntRange(0, 0xFFFF).Draw(rt, "spidr"))

		original := EncodePixelHit(PixelHit{LocalX: localX, Y: y, ToA: toa, FineToA: fToA, ToT: tot, SPIDR: spidr})

		d := NewDecoder(SingleChip)
		ev, err := d.Decode(original)
		require.NoError(rt, err)
		require.Equal(rt, EventPixelHit, ev.Kind)

		roundTripped := EncodePixelHit(ev.Pixel)
		assert.Equal(rt, original, roundTripped)
	})
}

// TestTdcEdgeRoundTrip is the same property for TDC edges.
func TestTdcEdgeRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		types := []TdcType{TdcOneRising, TdcOneFalling, TdcTwoRising, TdcTwoFalling}
		tdcType := types[rapid.IntRange(0, len(types)-1).Draw(rt, "type")]
		coarse := uint64(rapid.Int64Range(0, (1<<35)-1).Draw(rt, "coarse"))
		fine := uint8(rapid.IntRange(0, 7).Draw(rt, "fine"))
		counter := uint16(rapid.IntRange(0, 0xFFF).Draw(rt, "counter"))

		original := EncodeTdcEdge(TdcEdge{Type: tdcType, Coarse: coarse, Fine: fine, Counter: counter})

		d := NewDecoder(SingleChip)
		ev, err := d.Decode(original)
		require.NoError(rt, err)
		require.Equal(rt, EventTdcEdge, ev.Kind)

		roundTripped := EncodeTdcEdge(ev.Tdc)
		assert.Equal(rt, original, roundTripped)
	})
}

// TestPixelTimeMonotoneWithinSPIDR checks that absolute time is
// non-decreasing as the combined ToA/fine-ToA/SPIDR field grows, before
// any overflow correction is applied.
func TestPixelTimeMonotoneWithinSPIDR(t *testing.T) {
	d := NewDecoder(SingleChip)
	var prev Tick
	first := true
	for spidr := 0; spidr < 3; spidr++ {
		for toa := 0; toa < 0x3FFF; toa += 997 {
			word := EncodePixelHit(PixelHit{ToA: uint16(toa), SPIDR: uint16(spidr)})
			ev, err := d.Decode(word)
			require.NoError(t, err)
			if !first {
				assert.GreaterOrEqual(t, int64(ev.Pixel.Time), int64(prev))
			}
			prev = ev.Pixel.Time
			first = false
		}
	}
}
