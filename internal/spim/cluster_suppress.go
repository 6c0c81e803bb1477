package spim

import "github.com/wb2osz-labs/tpx3stream/internal/wire"

// clusterSuppressDet is the 50 ns time bound for the cluster-suppressed
// variant, in half-picosecond Ticks.
const clusterSuppressDet = wire.Tick(100_000)

// clusterSuppressDx is the 2-pixel x bound for the same variant.
const clusterSuppressDx = 2

// TaggedHit is one input event to the cluster-suppressed variant:
// (time, x, index, id). id == tdcEdgeID marks a TDC-reference hit, which
// flushes the current group regardless of its time/x proximity.
type TaggedHit struct {
	Time  wire.Tick
	X     int
	Index uint32
	ID    uint8
}

// tdcEdgeID is the TDC-edge packet id that forces a flush.
const tdcEdgeID = 6

// ClusterSuppressor groups consecutive TaggedHits where |Δtime| <= 50ns and
// |Δx| <= 2px into a single recorded index, flushing early on a TDC-
// reference hit.
type ClusterSuppressor struct {
	Recorded []uint32

	open    bool
	lastT   wire.Tick
	lastX   int
	current uint32
}

// Push feeds one tagged hit through the suppressor.
func (c *ClusterSuppressor) Push(h TaggedHit) {
	if h.ID == tdcEdgeID {
		c.flush()
		return
	}

	if c.open {
		dt := h.Time - c.lastT
		if dt < 0 {
			dt = -dt
		}
		dx := h.X - c.lastX
		if dx < 0 {
			dx = -dx
		}
		if dt <= clusterSuppressDet && dx <= clusterSuppressDx {
			c.lastT, c.lastX = h.Time, h.X
			return // already represented by c.current
		}
		c.flush()
	}

	c.open = true
	c.lastT, c.lastX = h.Time, h.X
	c.current = h.Index
}

func (c *ClusterSuppressor) flush() {
	if c.open {
		c.Recorded = append(c.Recorded, c.current)
		c.open = false
	}
}

// Flush forces any open group to close, e.g. at end of acquisition.
func (c *ClusterSuppressor) Flush() { c.flush() }
