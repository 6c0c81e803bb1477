// Package settings parses the fixed-length acquisition configuration blob
// sent by the client before any detector data flows: a table of small
// enumerated fields, each validated independently, each with its own named
// error, all before any of the parsed values are trusted.
package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Mode is the acquisition mode byte (blob byte index 3).
type Mode uint8

const (
	ModeLiveSpectrum       Mode = 0
	ModeTimeResolvedSpectrum Mode = 1
	ModeSpim               Mode = 2
	ModeFastChrono         Mode = 6
	ModeChrono             Mode = 7
	ModeLocalSaveIsiBox    Mode = 8
)

func (m Mode) String() string {
	switch m {
	case ModeLiveSpectrum:
		return "live-spectrum"
	case ModeTimeResolvedSpectrum:
		return "time-resolved-spectrum"
	case ModeSpim:
		return "spim"
	case ModeFastChrono:
		return "fast-chrono"
	case ModeChrono:
		return "chrono"
	case ModeLocalSaveIsiBox:
		return "local-save-isibox"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Error kinds, one per validated field: each bad byte is reported
// distinctly and is fatal to the whole blob (no partial settings).
var (
	ErrSetBin            = errors.New("settings: invalid bin byte")
	ErrSetByteDepth      = errors.New("settings: invalid bytedepth byte")
	ErrSetCumul          = errors.New("settings: invalid cumul byte")
	ErrModeNotImplemented = errors.New("settings: mode not implemented")
	ErrSetSaveLocally    = errors.New("settings: invalid save_locally byte")
	ErrBlobSize          = errors.New("settings: blob must be 16 or 20 bytes")
)

// Settings is the immutable, fully-validated acquisition configuration for
// one run.
type Settings struct {
	Bin          bool
	ByteDepth    int // 1, 2, 4, or 8
	Cumul        bool
	Mode         Mode
	XSpim, YSpim uint16
	XScan, YScan uint16
	PixelTime    uint16 // units of 1.5625 ns
	TimeDelay    uint16
	TimeWidth    uint16
	SaveLocally  bool

	// SpimOverscanX/Y = XScan/XSpim, YScan/YSpim, each coerced to at
	// least 1 (see the "Open Question" decision in SPEC_FULL.md for the
	// YScan < YSpim case).
	SpimOverscanX, SpimOverscanY int
}

// Parse validates and decodes a 16- or 20-byte configuration blob. It
// returns the first validation error encountered; callers must not act on
// a partially-populated Settings.
func Parse(blob []byte) (Settings, error) {
	if len(blob) != 16 && len(blob) != 20 {
		return Settings{}, fmt.Errorf("%w: got %d", ErrBlobSize, len(blob))
	}

	var s Settings

	switch blob[0] {
	case 0:
		s.Bin = false
	case 1:
		s.Bin = true
	default:
		return Settings{}, fmt.Errorf("%w: byte=%d", ErrSetBin, blob[0])
	}

	switch blob[1] {
	case 0:
		s.ByteDepth = 1
	case 1:
		s.ByteDepth = 2
	case 2:
		s.ByteDepth = 4
	case 4:
		s.ByteDepth = 8
	default:
		return Settings{}, fmt.Errorf("%w: byte=%d", ErrSetByteDepth, blob[1])
	}

	switch blob[2] {
	case 0:
		s.Cumul = false
	case 1:
		s.Cumul = true
	default:
		return Settings{}, fmt.Errorf("%w: byte=%d", ErrSetCumul, blob[2])
	}

	mode := Mode(blob[3])
	switch mode {
	case ModeLiveSpectrum, ModeTimeResolvedSpectrum, ModeSpim,
		ModeFastChrono, ModeChrono, ModeLocalSaveIsiBox:
		s.Mode = mode
	default:
		return Settings{}, fmt.Errorf("%w: byte=%d", ErrModeNotImplemented, blob[3])
	}

	s.XSpim = binary.BigEndian.Uint16(blob[4:6])
	s.YSpim = binary.BigEndian.Uint16(blob[6:8])
	s.XScan = binary.BigEndian.Uint16(blob[8:10])
	s.YScan = binary.BigEndian.Uint16(blob[10:12])
	s.PixelTime = binary.BigEndian.Uint16(blob[12:14])
	s.TimeDelay = binary.BigEndian.Uint16(blob[14:16])

	if len(blob) == 20 {
		s.TimeWidth = binary.BigEndian.Uint16(blob[16:18])
		switch blob[18] {
		case 0:
			s.SaveLocally = false
		case 1:
			s.SaveLocally = true
		default:
			return Settings{}, fmt.Errorf("%w: byte=%d", ErrSetSaveLocally, blob[18])
		}
	}

	if err := validateGeometry(s); err != nil {
		return Settings{}, err
	}

	s.SpimOverscanX = overscanRatio(s.XScan, s.XSpim)
	s.SpimOverscanY = overscanRatio(s.YScan, s.YSpim)

	return s, nil
}

func validateGeometry(s Settings) error {
	if s.XSpim == 0 {
		return fmt.Errorf("settings: xspim must be > 0")
	}
	if s.YSpim == 0 {
		return fmt.Errorf("settings: yspim must be > 0")
	}
	framePixels := uint64(s.XSpim) * uint64(s.YSpim)
	if uint64(s.ByteDepth)*framePixels > (1 << 40) {
		return fmt.Errorf("settings: bytedepth*frame_pixels overflow risk")
	}
	return nil
}

// overscanRatio computes scan/spim, coercing a non-positive ratio to 1.
// See SPEC_FULL.md for the "yscan < yspim" open-question decision: this
// happens when the scan dimension is configured smaller than the spim
// dimension, which would otherwise make spim indices degenerate.
func overscanRatio(scan, spim uint16) int {
	if spim == 0 {
		return 1
	}
	ratio := int(scan) / int(spim)
	if ratio < 1 {
		return 1
	}
	return ratio
}
