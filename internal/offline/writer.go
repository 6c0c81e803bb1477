package offline

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// FieldWriter appends raw little-endian values to one of the per-field
// output files (tH.txt, tabsH.txt, channel.txt, ...). Each field is its
// own file of concatenated fixed-width values, the same "one file per
// stream, no framing" shape as the offline file input.
type FieldWriter struct {
	f *os.File
	w *bufio.Writer
}

// OpenField creates (truncating) name under dir for appending.
func OpenField(dir, name string) (*FieldWriter, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("offline: opening %s: %w", name, err)
	}
	return &FieldWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (fw *FieldWriter) WriteI16(v int16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	_, err := fw.w.Write(b[:])
	return err
}

func (fw *FieldWriter) WriteU16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := fw.w.Write(b[:])
	return err
}

func (fw *FieldWriter) WriteU8(v uint8) error {
	return fw.w.WriteByte(v)
}

func (fw *FieldWriter) WriteU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := fw.w.Write(b[:])
	return err
}

func (fw *FieldWriter) WriteU64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := fw.w.Write(b[:])
	return err
}

// WriteCSVLine writes a single ASCII comma-separated line of unsigned
// counts, the format used for spec.txt/cspec.txt.
func (fw *FieldWriter) WriteCSVLine(counts []uint64) error {
	for i, c := range counts {
		if i > 0 {
			if _, err := fw.w.WriteString(","); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(fw.w, "%d", c); err != nil {
			return err
		}
	}
	_, err := fw.w.WriteString("\n")
	return err
}

// Close flushes and closes the underlying file.
func (fw *FieldWriter) Close() error {
	if err := fw.w.Flush(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}

// OutputFiles collects a Close-all-at-once handle to every per-field file
// written for one offline run.
type OutputFiles struct {
	TH       *FieldWriter // i16 Δt
	TAbsH    *FieldWriter // u64 absolute time
	Channel  *FieldWriter // u8
	XH       *FieldWriter // u16
	YH       *FieldWriter // u16
	ToT      *FieldWriter // u16
	CS       *FieldWriter // u16 cluster size
	SI       *FieldWriter // u32 spim index
	G2TH     *FieldWriter // i16, or -5000 sentinel
	Spec     *FieldWriter // ASCII CSV usize, x histogram of all electrons
	CSpec    *FieldWriter // ASCII CSV usize, x histogram of coincidence-matched electrons
	DoubleTH *FieldWriter // i16 pairs
}

// OpenOutputFiles opens every per-field file under dir, using the fixed
// filename set for one offline run.
func OpenOutputFiles(dir string) (*OutputFiles, error) {
	of := &OutputFiles{}
	specs := []struct {
		field *(*FieldWriter)
		name  string
	}{
		{&of.TH, "tH.txt"},
		{&of.TAbsH, "tabsH.txt"},
		{&of.Channel, "channel.txt"},
		{&of.XH, "xH.txt"},
		{&of.YH, "yH.txt"},
		{&of.ToT, "tot.txt"},
		{&of.CS, "cs.txt"},
		{&of.SI, "si.txt"},
		{&of.G2TH, "g2tH.txt"},
		{&of.Spec, "spec.txt"},
		{&of.CSpec, "cspec.txt"},
		{&of.DoubleTH, "double_tH.txt"},
	}
	for _, s := range specs {
		fw, err := OpenField(dir, s.name)
		if err != nil {
			of.Close()
			return nil, err
		}
		*s.field = fw
	}
	return of, nil
}

// Close closes every opened file, collecting (but not stopping on) the
// first error encountered.
func (of *OutputFiles) Close() error {
	var firstErr error
	for _, fw := range []*FieldWriter{
		of.TH, of.TAbsH, of.Channel, of.XH, of.YH, of.ToT,
		of.CS, of.SI, of.G2TH, of.Spec, of.CSpec, of.DoubleTH,
	} {
		if fw == nil {
			continue
		}
		if err := fw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
