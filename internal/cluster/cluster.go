// Package cluster collapses spatially and temporally adjacent electron
// hits into single centroid events.
package cluster

import (
	"sort"

	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// Electron is one reconstructed hit, before or after cluster collapse.
type Electron struct {
	Time        wire.Tick
	X, Y        int
	Tot         uint16
	ClusterSize int
}

// Correction is the clustering policy: two consecutive hits (in time order)
// belong to the same cluster iff their deltas are all within these bounds.
type Correction struct {
	MaxDeltaT wire.Tick
	MaxDeltaX int
	MaxDeltaY int
}

// ClusterDet is the 50 ns time-coincidence bound, expressed in
// half-picosecond Ticks (50 ns = 50000 ps = 100000 half-ps).
const ClusterDet = wire.Tick(100_000)

// DefaultCorrection is the default clustering policy: 50 ns, ±2 pixels in
// x and y.
var DefaultCorrection = Correction{MaxDeltaT: ClusterDet, MaxDeltaX: 2, MaxDeltaY: 2}

func sameCluster(a, b Electron, c Correction) bool {
	dt := b.Time - a.Time
	if dt < 0 {
		dt = -dt
	}
	dx := b.X - a.X
	if dx < 0 {
		dx = -dx
	}
	dy := b.Y - a.Y
	if dy < 0 {
		dy = -dy
	}
	return dt <= c.MaxDeltaT && dx <= c.MaxDeltaX && dy <= c.MaxDeltaY
}

// TryClean sorts electrons by time (if not already) and collapses chains of
// mutually-adjacent hits (per Correction) into centroids. It returns the
// cleaned slice and whether any collapsing actually happened — false for an
// already-clean or too-short (<2) input, so a caller can skip redundant
// downstream work.
func TryClean(electrons []Electron, c Correction) ([]Electron, bool) {
	if len(electrons) < 2 {
		return electrons, false
	}

	sort.SliceStable(electrons, func(i, j int) bool {
		return electrons[i].Time < electrons[j].Time
	})

	out := make([]Electron, 0, len(electrons))
	changed := false

	i := 0
	for i < len(electrons) {
		j := i + 1
		for j < len(electrons) && sameCluster(electrons[j-1], electrons[j], c) {
			j++
		}
		group := electrons[i:j]
		if len(group) > 1 {
			changed = true
			out = append(out, centroid(group))
		} else {
			out = append(out, group[0])
		}
		i = j
	}

	return out, changed
}

// centroid computes the integer arithmetic-mean centroid of a cluster
// member group; cluster size is the member count. Integer (not
// floating-point) averaging keeps positions and times exact ticks.
func centroid(members []Electron) Electron {
	n := len(members)
	var sumT int64
	var sumX, sumY, sumTot int
	for _, m := range members {
		sumT += int64(m.Time)
		sumX += m.X
		sumY += m.Y
		sumTot += int(m.Tot)
	}
	return Electron{
		Time:        wire.Tick(sumT / int64(n)),
		X:           sumX / n,
		Y:           sumY / n,
		Tot:         uint16(sumTot / n),
		ClusterSize: n,
	}
}
