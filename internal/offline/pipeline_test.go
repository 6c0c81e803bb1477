package offline

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

func writePacketFile(t *testing.T, packets ...[wire.PacketSize]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.dat")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, p := range packets {
		_, err := f.Write(p[:])
		require.NoError(t, err)
	}
	return path
}

func TestRunProducesAllOutputFiles(t *testing.T) {
	header := wire.EncodeChipHeader(wire.ChipHeader{Chip: 0})
	hit1 := wire.EncodePixelHit(wire.PixelHit{LocalX: 5, Y: 10, ToA: 100, ToT: 50})
	hit2 := wire.EncodePixelHit(wire.PixelHit{LocalX: 6, Y: 10, ToA: 200, ToT: 60})

	path := writePacketFile(t, header, hit1, hit2)
	outDir := t.TempDir()

	err := Run(Options{
		InputPath: path,
		OutputDir: outDir,
		Mosaic:    wire.EELSStrip1x4,
	})
	require.NoError(t, err)

	for _, name := range []string{
		"tH.txt", "tabsH.txt", "channel.txt", "xH.txt", "yH.txt",
		"tot.txt", "cs.txt", "si.txt", "g2tH.txt", "spec.txt", "cspec.txt", "double_tH.txt",
	} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, "expected %s to exist", name)
	}
}

func TestRunWritesSpectrumCSV(t *testing.T) {
	header := wire.EncodeChipHeader(wire.ChipHeader{Chip: 0})
	hit := wire.EncodePixelHit(wire.PixelHit{LocalX: 5, Y: 10, ToA: 100, ToT: 50})

	path := writePacketFile(t, header, hit)
	outDir := t.TempDir()

	err := Run(Options{
		InputPath: path,
		OutputDir: outDir,
		Mosaic:    wire.EELSStrip1x4,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "spec.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1")
}

func TestRunHandlesTrailingPartialPacket(t *testing.T) {
	header := wire.EncodeChipHeader(wire.ChipHeader{Chip: 0})
	path := writePacketFile(t, header)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3}) // 3 trailing bytes, not a full packet
	require.NoError(t, err)
	f.Close()

	outDir := t.TempDir()
	err = Run(Options{InputPath: path, OutputDir: outDir, Mosaic: wire.EELSStrip1x4})
	assert.NoError(t, err)
}

func TestRunWithSpimAfterLockWritesSpimIndexFile(t *testing.T) {
	header := wire.EncodeChipHeader(wire.ChipHeader{Chip: 0})

	// Two line-TDC edges to lock the periodic reference, then a hit.
	edge1 := wire.EncodeTdcEdge(wire.TdcEdge{Type: wire.TdcOneRising, Coarse: 0})
	edge2 := wire.EncodeTdcEdge(wire.TdcEdge{Type: wire.TdcOneRising, Coarse: 1_000_000})
	hit := wire.EncodePixelHit(wire.PixelHit{LocalX: 5, Y: 10})

	path := writePacketFile(t, header, edge1, edge2, hit)
	outDir := t.TempDir()

	err := Run(Options{
		InputPath: path,
		OutputDir: outDir,
		IsSpim:    true,
		XSpim:     10,
		YSpim:     1,
		Mosaic:    wire.EELSStrip1x4,
	})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(outDir, "si.txt"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(0))
}

func TestFieldWriterRoundTripsU32(t *testing.T) {
	dir := t.TempDir()
	fw, err := OpenField(dir, "si.txt")
	require.NoError(t, err)
	require.NoError(t, fw.WriteU32(123456))
	require.NoError(t, fw.Close())

	data, err := os.ReadFile(filepath.Join(dir, "si.txt"))
	require.NoError(t, err)
	require.Len(t, data, 4)
	assert.Equal(t, uint32(123456), binary.LittleEndian.Uint32(data))
}
