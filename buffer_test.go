package nodelog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BoundedLogBuffer_EnqueueDrain(t *testing.T) {
	b := NewBoundedLogBuffer(10, 10000)
	b.Enqueue([]byte("one"))
	b.Enqueue([]byte("two"))

	assert.Equal(t, 2, b.Count())
	assert.Equal(t, recordCost([]byte("one"))+recordCost([]byte("two")), b.Bytes())

	r, ok := b.drain()
	require.True(t, ok)
	assert.Equal(t, []byte("one"), r)

	r, ok = b.drain()
	require.True(t, ok)
	assert.Equal(t, []byte("two"), r)

	_, ok = b.drain()
	assert.False(t, ok)
	assert.Zero(t, b.Bytes())
}

func Test_BoundedLogBuffer_CountOverflowDropsTwoAndMarks(t *testing.T) {
	b := NewBoundedLogBuffer(3, 1<<30)
	b.Enqueue([]byte("a"))
	b.Enqueue([]byte("b"))
	b.Enqueue([]byte("c"))

	// buffer is at maxCount; this push drops the two oldest, inserts a
	// marker, then the new record, leaving c, marker, d.
	b.Enqueue([]byte("d"))

	assert.Equal(t, 3, b.Count())

	r, ok := b.drain()
	require.True(t, ok)
	assert.Equal(t, []byte("c"), r)

	r, ok = b.drain()
	require.True(t, ok)
	assert.Contains(t, string(r), "GRRR: ERROR: Logging too fast, chopped 2 entries")

	r, ok = b.drain()
	require.True(t, ok)
	assert.Equal(t, []byte("d"), r)
}

func Test_BoundedLogBuffer_MaxCountOneNeverExceedsCeiling(t *testing.T) {
	b := NewBoundedLogBuffer(1, 1<<30)
	b.Enqueue([]byte("a"))
	assert.LessOrEqual(t, b.Count(), 1)

	b.Enqueue([]byte("b"))
	assert.LessOrEqual(t, b.Count(), 1)

	b.Enqueue([]byte("c"))
	assert.LessOrEqual(t, b.Count(), 1)
}

func Test_BoundedLogBuffer_ByteOverflowEvictsToNinetyPercent(t *testing.T) {
	b := NewBoundedLogBuffer(1000, 1000)

	record := make([]byte, 100) // cost 160 with LineOverhead
	for i := 0; i < 6; i++ {
		b.Enqueue(record)
	}
	require.Equal(t, 6*recordCost(record), b.Bytes()) // 960: still within maxBytes

	// one more enqueue triggers the byte-based eviction pass
	b.Enqueue(record)

	ninetyPctBytes := int64(float64(1000) * 0.9)
	assert.LessOrEqual(t, b.Bytes(), ninetyPctBytes+recordCost(record))
}

func Test_BoundedLogBuffer_OversizedRecordEvictsEverythingElse(t *testing.T) {
	b := NewBoundedLogBuffer(1000, 100)
	b.Enqueue([]byte("small"))

	huge := make([]byte, 1000)
	b.Enqueue(huge)

	// the oversized record itself always survives, even though bytes
	// transiently exceeds maxBytes by its own accounted size.
	found := false
	for {
		r, ok := b.drain()
		if !ok {
			break
		}
		if len(r) == len(huge) {
			found = true
		}
	}
	assert.True(t, found, "oversized record should not be evicted")
}

func Test_BoundedLogBuffer_SetMaxBytesAndCount(t *testing.T) {
	b := NewBoundedLogBuffer(10, 1000)
	b.SetMaxBytes(2000)
	b.SetMaxCount(20)
	assert.Equal(t, int64(2000), b.maxBytes)
	assert.Equal(t, 20, b.maxCount)
}

func Test_BoundedLogBuffer_ConcurrentEnqueue(t *testing.T) {
	b := NewBoundedLogBuffer(10000, 10_000_000)
	const producers = 8
	const perProducer = 200

	done := make(chan struct{}, producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			for i := 0; i < perProducer; i++ {
				b.Enqueue([]byte(fmt.Sprintf("producer-%d-record-%d", p, i)))
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < producers; i++ {
		<-done
	}

	assert.LessOrEqual(t, b.Count(), producers*perProducer)
}
