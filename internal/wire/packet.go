package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketSize is the fixed wire size of one Timepix3 event word.
const PacketSize = 8

// ErrDecodeAlignment is returned when a buffer handed to Packets is not a
// multiple of PacketSize bytes.
var ErrDecodeAlignment = errors.New("wire: buffer length not a multiple of 8")

// chipHeaderMagic is the literal "TPX3" ASCII marker that opens a
// chip-header word: 0x54 0x50 0x58 0x33 <chip> 0x00 0x00 0x00.
var chipHeaderMagic = [4]byte{'T', 'P', 'X', '3'}

// TdcType identifies which of the four logical TDC channels produced an
// edge. Values match the Timepix3 TDC trigger-type nibble.
type TdcType uint8

const (
	TdcOneRising  TdcType = 0xF
	TdcOneFalling TdcType = 0xA
	TdcTwoRising  TdcType = 0xE
	TdcTwoFalling TdcType = 0xB
)

func (t TdcType) String() string {
	switch t {
	case TdcOneRising:
		return "tdc1-rising"
	case TdcOneFalling:
		return "tdc1-falling"
	case TdcTwoRising:
		return "tdc2-rising"
	case TdcTwoFalling:
		return "tdc2-falling"
	default:
		return fmt.Sprintf("tdc-unknown(%#x)", uint8(t))
	}
}

// PixelHit is one decoded electron hit.
type PixelHit struct {
	Chip    uint8
	LocalX  uint8
	X       int // global x after mosaic mapping
	Y       uint8
	ToA     uint16 // 14 bits
	FineToA uint8  // 4 bits
	ToT     uint16 // 10 bits
	SPIDR   uint16
	Time    Tick // absolute time, half-picoseconds, pre-overflow-correction
}

// TdcEdge is one decoded TDC rising/falling edge.
type TdcEdge struct {
	Type    TdcType
	Coarse  uint64 // 35 bits @ 320 MHz
	Fine    uint8  // 3 bits @ 260 ps
	Counter uint16 // 12-bit TDC counter
	Time    Tick   // half-picoseconds, pre-overflow-correction
}

// ChipHeader is a sticky chip-select marker word.
type ChipHeader struct {
	Chip uint8
}

// EventKind tags which field of Event is populated.
type EventKind int

const (
	EventPixelHit EventKind = iota
	EventTdcEdge
	EventChipHeader
	EventOther
)

// Event is a decoded packet, tagged by Kind.
type Event struct {
	Kind   EventKind
	Pixel  PixelHit
	Tdc    TdcEdge
	Header ChipHeader
}

// Decoder decodes a stream of 8-byte packets, tracking the sticky chip
// index carried by chip-header words and mapping pixel-local x to a global
// x via the configured mosaic table.
type Decoder struct {
	mosaic     MosaicTable
	activeChip uint8
}

// NewDecoder constructs a Decoder for the given detector geometry. The
// sticky chip index starts at 0, matching the convention that a pixel
// stream always opens with a chip-header word before any hit.
func NewDecoder(mosaic MosaicTable) *Decoder {
	return &Decoder{mosaic: mosaic}
}

// ActiveChip returns the most recently selected chip index.
func (d *Decoder) ActiveChip() uint8 { return d.activeChip }

// Decode decodes a single 8-byte packet. Unknown ids are reported as
// EventOther and are not an error; only mis-sized input (handled by
// Packets, not Decode) is an alignment error.
func (d *Decoder) Decode(p [PacketSize]byte) (Event, error) {
	if p[0] == chipHeaderMagic[0] && p[1] == chipHeaderMagic[1] &&
		p[2] == chipHeaderMagic[2] && p[3] == chipHeaderMagic[3] {
		d.activeChip = p[4]
		return Event{Kind: EventChipHeader, Header: ChipHeader{Chip: p[4]}}, nil
	}

	word := binary.LittleEndian.Uint64(p[:])
	id := byte(word >> 60 & 0xF)

	switch id {
	case 0xB:
		pixaddr := uint16(word >> 44 & 0xFFFF)
		toa := uint16(word >> 30 & 0x3FFF)
		tot := uint16(word >> 20 & 0x3FF)
		fToA := uint8(word >> 16 & 0xF)
		spidr := uint16(word & 0xFFFF)

		localX, y := decodePixelAddress(pixaddr)
		globalX, err := d.mosaic.GlobalX(d.activeChip, localX)
		if err != nil {
			return Event{}, err
		}

		combined := uint32(toa)<<4 | uint32(^fToA&0xF)
		native := uint64(spidr)<<18 | uint64(combined)

		return Event{
			Kind: EventPixelHit,
			Pixel: PixelHit{
				Chip:    d.activeChip,
				LocalX:  localX,
				X:       globalX,
				Y:       y,
				ToA:     toa,
				FineToA: fToA,
				ToT:     tot,
				SPIDR:   spidr,
				Time:    Tick(native * pixelNativeHalfPs),
			},
		}, nil

	case 0x6:
		tdcType := TdcType(word >> 56 & 0xF)
		coarse := word >> 21 & 0x7FFFFFFFF // 35 bits
		fine := uint8(word >> 18 & 0x7)
		counter := uint16(word >> 6 & 0xFFF)

		return Event{
			Kind: EventTdcEdge,
			Tdc: TdcEdge{
				Type:    tdcType,
				Coarse:  coarse,
				Fine:    fine,
				Counter: counter,
				Time:    Tick(int64(coarse)*tdcCoarseHalfPs + int64(fine)*tdcFineHalfPs),
			},
		}, nil

	default:
		return Event{Kind: EventOther}, nil
	}
}

// decodePixelAddress unscrambles the 16-bit Timepix3 pixel address into a
// chip-local (x, y) pair via the standard column/super-pixel/sub-pixel
// layout: dcol (bits 15:9), spix (bits 8:3), pix (bits 2:0).
func decodePixelAddress(pixaddr uint16) (x uint8, y uint8) {
	dcol := (pixaddr & 0xFE00) >> 8
	spix := (pixaddr & 0x01F8) >> 1
	pix := pixaddr & 0x0007

	x = uint8(dcol + pix>>2)
	y = uint8(spix + pix&0x3)
	return x, y
}

// encodePixelAddress is the inverse of decodePixelAddress, used by
// EncodePixelHit to reproduce the original wire bytes.
func encodePixelAddress(x, y uint8) uint16 {
	pix := uint16((x&0x1)<<2 | (y & 0x3))
	dcol := uint16(x &^ 0x1)
	spix := uint16(y &^ 0x3)
	return dcol<<8 | spix<<1 | pix
}

// EncodePixelHit re-serializes a decoded pixel hit into its original 8
// bytes: decode then encode must reproduce the original wire bytes
// bit-for-bit.
func EncodePixelHit(h PixelHit) [PacketSize]byte {
	pixaddr := encodePixelAddress(h.LocalX, h.Y)
	var word uint64
	word |= uint64(0xB) << 60
	word |= uint64(pixaddr) << 44
	word |= uint64(h.ToA&0x3FFF) << 30
	word |= uint64(h.ToT&0x3FF) << 20
	word |= uint64(h.FineToA&0xF) << 16
	word |= uint64(h.SPIDR)

	var out [PacketSize]byte
	binary.LittleEndian.PutUint64(out[:], word)
	return out
}

// EncodeTdcEdge re-serializes a decoded TDC edge into its original 8 bytes.
func EncodeTdcEdge(e TdcEdge) [PacketSize]byte {
	var word uint64
	word |= uint64(0x6) << 60
	word |= uint64(e.Type) << 56
	word |= (e.Coarse & 0x7FFFFFFFF) << 21
	word |= uint64(e.Fine&0x7) << 18
	word |= uint64(e.Counter&0xFFF) << 6

	var out [PacketSize]byte
	binary.LittleEndian.PutUint64(out[:], word)
	return out
}

// EncodeChipHeader re-serializes a chip-header word.
func EncodeChipHeader(h ChipHeader) [PacketSize]byte {
	return [PacketSize]byte{
		chipHeaderMagic[0], chipHeaderMagic[1], chipHeaderMagic[2], chipHeaderMagic[3],
		h.Chip, 0, 0, 0,
	}
}

// Packets slices buf into PacketSize-byte chunks, returning ErrDecodeAlignment
// if buf is not an exact multiple of PacketSize. It does not decode.
func Packets(buf []byte) ([][PacketSize]byte, error) {
	if len(buf)%PacketSize != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrDecodeAlignment, len(buf))
	}
	out := make([][PacketSize]byte, len(buf)/PacketSize)
	for i := range out {
		copy(out[i][:], buf[i*PacketSize:(i+1)*PacketSize])
	}
	return out, nil
}
