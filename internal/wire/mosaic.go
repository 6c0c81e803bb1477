package wire

import "fmt"

// MosaicTable selects the fixed, compile-time chip layout used to turn a
// chip-local x coordinate into a global x coordinate. Timepix3 detectors in
// this family ship in exactly one of two geometries: a 1x4 EELS strip, or
// a single diffraction chip.
type MosaicTable int

const (
	// EELSStrip1x4 lays four 256-pixel-wide chips side by side. Chips are
	// wired to the readout in alternating orientation, so odd chips read
	// out mirrored relative to the global x axis.
	EELSStrip1x4 MosaicTable = iota
	// SingleChip is the single-chip diffraction detector: chip 0 only,
	// identity mapping.
	SingleChip
)

// ChipWidth is the number of columns on one Timepix3 chip.
const ChipWidth = 256

var eelsOffsets = [4]int{0, ChipWidth, 2 * ChipWidth, 3 * ChipWidth}
var eelsFlip = [4]bool{false, true, false, true}

// GlobalX maps a chip index and chip-local x coordinate to a global x
// coordinate for the mosaic. It returns an error if chip is out of range
// for the table.
func (m MosaicTable) GlobalX(chip uint8, localX uint8) (int, error) {
	switch m {
	case SingleChip:
		if chip != 0 {
			return 0, fmt.Errorf("wire: chip %d invalid for single-chip mosaic", chip)
		}
		return int(localX), nil
	case EELSStrip1x4:
		if chip > 3 {
			return 0, fmt.Errorf("wire: chip %d out of range for 1x4 mosaic", chip)
		}
		if eelsFlip[chip] {
			return eelsOffsets[chip] + (ChipWidth - 1 - int(localX)), nil
		}
		return eelsOffsets[chip] + int(localX), nil
	default:
		return 0, fmt.Errorf("wire: unknown mosaic table %d", int(m))
	}
}

// Width returns the total global width spanned by the mosaic.
func (m MosaicTable) Width() int {
	switch m {
	case SingleChip:
		return ChipWidth
	case EELSStrip1x4:
		return 4 * ChipWidth
	default:
		return 0
	}
}
