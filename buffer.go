package nodelog

import (
	"fmt"
	"sync"
	"time"
)

// LineOverhead approximates the per-record memory overhead the buffer
// accounts for, added to len(record) for every entry (SPEC_FULL.md §3).
const LineOverhead = 60

// BoundedLogBuffer is a multi-producer, single-consumer bounded queue of
// preformatted log records with two capacity limits (record count and
// accounted bytes) and explicit, marker-producing drop-on-overflow
// semantics. Producers never block beyond acquiring mu; all loss happens
// inside Enqueue (SPEC_FULL.md §4.6).
type BoundedLogBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue [][]byte
	bytes int64

	maxCount       int
	maxBytes       int64
	writeThreshold int64

	closed         bool
	closedFinished bool
}

// NewBoundedLogBuffer returns an empty buffer with the given capacity
// limits.
func NewBoundedLogBuffer(maxCount int, maxBytes int64) *BoundedLogBuffer {
	b := &BoundedLogBuffer{
		maxCount: maxCount,
		maxBytes: maxBytes,
	}
	b.writeThreshold = maxBytes / 4
	b.cond = sync.NewCond(&b.mu)
	return b
}

func recordCost(record []byte) int64 {
	return int64(len(record)) + LineOverhead
}

// Enqueue appends record to the buffer, applying the two-phase drop policy
// on overflow (SPEC_FULL.md §4.6). It never blocks beyond acquiring mu and
// never returns an error: loss is reported in-band via a synthetic marker
// record, not to the caller.
func (b *BoundedLogBuffer) Enqueue(record []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasEmpty := len(b.queue) == 0

	if len(b.queue) < b.maxCount {
		b.push(record)
	} else {
		// Count saturated: drop the two oldest, announce it, then push.
		// makeRoom(1) guards the final push even at degenerate capacities
		// (maxCount < 2), where popFront(2) and pushIfRoom's own eviction
		// can still leave no room for record.
		b.popFront(2)
		marker := []byte(fmt.Sprintf(
			"GRRR: ERROR: Logging too fast, chopped 2 entries, %d bytes in memory\n",
			b.bytes))
		b.pushIfRoom(marker)
		b.makeRoom(1)
		b.push(record)
	}

	b.evictIfOverBytes()

	if wasEmpty && len(b.queue) > 0 {
		b.cond.Broadcast()
	}
}

// push unconditionally appends record and accounts its bytes. Caller holds
// mu.
func (b *BoundedLogBuffer) push(record []byte) {
	b.queue = append(b.queue, record)
	b.bytes += recordCost(record)
}

// pushIfRoom appends record, first dropping the two oldest records again if
// the queue is still at maxCount; used for marker records, which must not
// themselves recursively trigger the count-saturation branch. Caller holds
// mu.
func (b *BoundedLogBuffer) pushIfRoom(record []byte) {
	if len(b.queue) >= b.maxCount {
		b.popFront(2)
	}
	b.push(record)
}

// makeRoom evicts from the front of the queue until at least n more
// records can be pushed without exceeding maxCount. Caller holds mu.
func (b *BoundedLogBuffer) makeRoom(n int) {
	for len(b.queue) > 0 && len(b.queue)+n > b.maxCount {
		r := b.queue[0]
		b.queue = b.queue[1:]
		b.bytes -= recordCost(r)
	}
}

// popFront removes up to n records from the front of the queue,
// decrementing bytes by each one's accounted cost, and returns how many
// were actually removed.
func (b *BoundedLogBuffer) popFront(n int) int {
	removed := 0
	for removed < n && len(b.queue) > 0 {
		r := b.queue[0]
		b.queue = b.queue[1:]
		b.bytes -= recordCost(r)
		removed++
	}
	return removed
}

// evictIfOverBytes implements SPEC_FULL.md §4.6 step 4: if bytes exceeds
// maxBytes, evict oldest records until both count and bytes are at or
// below 90% of their limits, then push a marker reporting how many were
// evicted. The marker's own push may trigger one further round of
// eviction, but no more. The record just enqueued is never evicted here
// (nor, on the further round, the marker), so an oversized record is kept
// alone with its marker.
func (b *BoundedLogBuffer) evictIfOverBytes() {
	if b.bytes <= b.maxBytes {
		return
	}

	countCeil := int(float64(b.maxCount) * 0.9)
	byteCeil := int64(float64(b.maxBytes) * 0.9)

	evicted := b.evictUntil(countCeil, byteCeil, 1)
	if evicted == 0 {
		return
	}

	marker := []byte(fmt.Sprintf(
		"GRRR: ERROR: Logging too fast, chopped %d entries, %d bytes in memory\n",
		evicted, b.bytes))
	b.push(marker)

	// One retry: the marker itself may have pushed bytes back over the
	// ceiling.
	if b.bytes > b.maxBytes {
		b.evictUntil(countCeil, byteCeil, 2)
	}
}

// evictUntil pops the oldest records until both ceilings hold, never
// popping the newest keep records. Caller holds mu.
func (b *BoundedLogBuffer) evictUntil(countCeil int, byteCeil int64, keep int) int {
	evicted := 0
	for len(b.queue) > keep && (len(b.queue) > countCeil || b.bytes > byteCeil) {
		r := b.queue[0]
		b.queue = b.queue[1:]
		b.bytes -= recordCost(r)
		evicted++
	}
	return evicted
}

// drain pops one record for the writer goroutine. Caller holds mu (it's
// only ever called from inside the wait protocol in writer.go).
func (b *BoundedLogBuffer) drain() ([]byte, bool) {
	if len(b.queue) == 0 {
		return nil, false
	}
	r := b.queue[0]
	b.queue = b.queue[1:]
	b.bytes -= recordCost(r)
	return r, true
}

// Bytes returns the current accounted byte total.
func (b *BoundedLogBuffer) Bytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// Count returns the current record count.
func (b *BoundedLogBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// SetMaxBytes updates the byte quota (and derived write threshold) from
// any goroutine.
func (b *BoundedLogBuffer) SetMaxBytes(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxBytes = n
	b.writeThreshold = n / 4
}

// SetMaxCount updates the record-count quota from any goroutine.
func (b *BoundedLogBuffer) SetMaxCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxCount = n
}

// waitWithTimeout waits on cond for at most timeout, using a timer
// goroutine to force a spurious-looking wakeup. sync.Cond has no built-in
// timed wait; this is the standard Go idiom for bounding one. The caller
// must hold cond.L (as with any Cond.Wait).
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
