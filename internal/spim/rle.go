package spim

import (
	"encoding/binary"
	"sort"
)

// startUniqueMarker and startIndexesMarker are the literal ASCII markers
// that open each run-length-encoded stream.
var (
	startUniqueMarker  = []byte("{StartUnique}")
	startIndexesMarker = []byte("{StartIndexes}")
)

// Output is the run-length-encoded frame/line output: sorted unique
// indices, each with its run length. sum(UniqueCounts) always equals the
// number of raw hits fed in, and len(Indexes) == len(UniqueCounts).
type Output struct {
	UniqueCounts []byte   // one byte per run (saturates at 255; see BuildOutput)
	Indexes      []uint32 // one big-endian-encoded value per run, same length as UniqueCounts
}

// BuildOutput sorts the accumulated raw indices and collapses runs of
// identical values into (index, count) pairs. A run longer than 255 is
// split into multiple runs so each count byte stays in range — the sum of
// unique counts still equals the original index count across the split
// runs.
func BuildOutput(rawIndices []uint32) Output {
	if len(rawIndices) == 0 {
		return Output{}
	}

	sorted := make([]uint32, len(rawIndices))
	copy(sorted, rawIndices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out Output
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		remaining := j - i
		for remaining > 0 {
			n := remaining
			if n > 255 {
				n = 255
			}
			out.UniqueCounts = append(out.UniqueCounts, byte(n))
			out.Indexes = append(out.Indexes, sorted[i])
			remaining -= n
		}
		i = j
	}

	return out
}

// Bytes renders the Output as the wire format: marker, counts, marker,
// big-endian u32 indexes.
func (o Output) Bytes() []byte {
	buf := make([]byte, 0, len(startUniqueMarker)+len(o.UniqueCounts)+len(startIndexesMarker)+4*len(o.Indexes))
	buf = append(buf, startUniqueMarker...)
	buf = append(buf, o.UniqueCounts...)
	buf = append(buf, startIndexesMarker...)
	for _, idx := range o.Indexes {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], idx)
		buf = append(buf, b[:]...)
	}
	return buf
}
