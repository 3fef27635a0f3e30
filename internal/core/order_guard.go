package core

import "fmt"

// OrderVerdict classifies a delivered block number against the expected
// next block for a monitor.
type OrderVerdict int

const (
	// OrderNext is the normal case: the block is the expected next one.
	OrderNext OrderVerdict = iota
	// OrderStale marks a block at or below the last applied one, i.e. a
	// replay after resume. Stale blocks are skipped, not reapplied.
	OrderStale
	// OrderGap marks a block beyond the expected next one. Events for a
	// monitor must arrive in non-decreasing order without holes, so a
	// gap means the source lost a block and processing must stop.
	OrderGap
)

// BlockOrderGuard enforces per-monitor block ordering ahead of the store
// round trip. Not safe for concurrent use — each monitor runner owns one.
type BlockOrderGuard struct {
	expectedNext uint64

	stale int64
	gaps  int64
}

// NewBlockOrderGuard creates a guard expecting lastApplied+1 next.
func NewBlockOrderGuard(lastApplied uint64) *BlockOrderGuard {
	return &BlockOrderGuard{expectedNext: lastApplied + 1}
}

// Validate classifies a block number. Only OrderNext advances the guard;
// the caller must Reset on failure if it intends to continue.
func (g *BlockOrderGuard) Validate(block uint64) OrderVerdict {
	switch {
	case block < g.expectedNext:
		g.stale++
		return OrderStale
	case block == g.expectedNext:
		g.expectedNext = block + 1
		return OrderNext
	default:
		g.gaps++
		return OrderGap
	}
}

// ExpectedNext returns the block number the guard will accept.
func (g *BlockOrderGuard) ExpectedNext() uint64 {
	return g.expectedNext
}

// Reset repositions the guard after recovery.
func (g *BlockOrderGuard) Reset(lastApplied uint64) {
	g.expectedNext = lastApplied + 1
}

// Stats returns stale and gap counts observed so far.
func (g *BlockOrderGuard) Stats() (stale, gaps int64) {
	return g.stale, g.gaps
}

// GapError builds the hard error for an out-of-order delivery.
func (g *BlockOrderGuard) GapError(monitor string, block uint64) error {
	return fmt.Errorf("block gap for monitor %s: expected %d, got %d",
		monitor, g.expectedNext, block)
}
