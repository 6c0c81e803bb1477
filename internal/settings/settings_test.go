package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blob16(bin, byteDepth, cumul, mode byte, xspim, yspim, xscan, yscan, pixelTime, delay uint16) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = bin, byteDepth, cumul, mode
	put16 := func(off int, v uint16) {
		b[off] = byte(v >> 8)
		b[off+1] = byte(v)
	}
	put16(4, xspim)
	put16(6, yspim)
	put16(8, xscan)
	put16(10, yscan)
	put16(12, pixelTime)
	put16(14, delay)
	return b
}

func TestLiveDefaultsFromMinimalBlob(t *testing.T) {
	// blob [0,1,0,0,...] -> bin=false, bytedepth=2, cumul=false,
	// mode=Live2D.
	b := blob16(0, 1, 0, 0, 1024, 256, 1024, 256, 0, 0)
	s, err := Parse(b)
	require.NoError(t, err)
	assert.False(t, s.Bin)
	assert.Equal(t, 2, s.ByteDepth)
	assert.False(t, s.Cumul)
	assert.Equal(t, ModeLiveSpectrum, s.Mode)
}

func TestBadByteDepthReturnsSetByteDepthError(t *testing.T) {
	// byte[1]=9 -> SetByteDepth, nothing else read.
	b := blob16(0, 9, 0, 0, 1024, 256, 1024, 256, 0, 0)
	_, err := Parse(b)
	assert.ErrorIs(t, err, ErrSetByteDepth)
}

func TestRejectsBadBlobSize(t *testing.T) {
	_, err := Parse(make([]byte, 17))
	assert.ErrorIs(t, err, ErrBlobSize)
}

func TestRejectsZeroSpimDimension(t *testing.T) {
	b := blob16(0, 0, 0, 2, 0, 10, 10, 10, 0, 0)
	_, err := Parse(b)
	assert.Error(t, err)
}

func TestOverscanCoercedToOneWhenScanSmaller(t *testing.T) {
	b := blob16(0, 0, 0, 2, 10, 10, 5, 3, 0, 0)
	s, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, 1, s.SpimOverscanX)
	assert.Equal(t, 1, s.SpimOverscanY)
}

func TestParses20ByteBlobWithSaveLocally(t *testing.T) {
	b := blob16(1, 2, 1, 2, 10, 10, 100, 100, 5, 7)
	b = append(b, 0, 11, 1, 0) // time_width hi/lo, save_locally, padding to 20 bytes
	s, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(11), s.TimeWidth)
	assert.True(t, s.SaveLocally)
	assert.Equal(t, 10, s.SpimOverscanX)
}
