package buffer

import (
	"github.com/google/btree"

	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
)

// entry is one buffered event keyed by its HLC timestamp. outOfOrder marks
// entries that arrived behind the buffer's running maximum; the flush path
// uses the flags to compute the reorder ratio of a delivered batch.
type entry struct {
	key        hlc.Timestamp
	ev         *event.Event
	outOfOrder bool
}

func entryLess(a, b entry) bool {
	return hlc.Compare(a.key, b.key) == hlc.Lower
}

// btreeDegree matches the small working sets typical of a single window's
// worth of events.
const btreeDegree = 8

// sortedBuffer holds buffered entries in HLC order, so in-order iteration
// equals causal delivery order.
type sortedBuffer struct {
	tree *btree.BTreeG[entry]
}

func newSortedBuffer() *sortedBuffer {
	return &sortedBuffer{tree: btree.NewG(btreeDegree, entryLess)}
}

func (b *sortedBuffer) len() int { return b.tree.Len() }

// insert adds an event and reports whether it arrived out of order, i.e.
// behind the largest key already buffered.
func (b *sortedBuffer) insert(ev *event.Event) bool {
	e := entry{key: ev.Timestamp, ev: ev}
	if max, ok := b.tree.Max(); ok && hlc.Compare(e.key, max.key) == hlc.Lower {
		e.outOfOrder = true
	}
	b.tree.ReplaceOrInsert(e)
	return e.outOfOrder
}

// popReady removes and returns, in order, every entry whose physical time
// is at or before cutoffMs.
func (b *sortedBuffer) popReady(cutoffMs uint64) []entry {
	var ready []entry
	for {
		min, ok := b.tree.Min()
		if !ok || min.key.Physical > cutoffMs {
			break
		}
		b.tree.DeleteMin()
		ready = append(ready, min)
	}
	return ready
}

// drain removes and returns every entry in order.
func (b *sortedBuffer) drain() []entry {
	all := make([]entry, 0, b.tree.Len())
	for {
		min, ok := b.tree.DeleteMin()
		if !ok {
			break
		}
		all = append(all, min)
	}
	return all
}
