package buffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	buf, err := NewRing[int](4)
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	v, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = buf.Read()
	assert.False(t, ok)
}

func TestDropOldestEviction(t *testing.T) {
	capacity := 5
	buf, err := NewRing[int](capacity)
	require.NoError(t, err)

	// Push capacity+1 items: oldest evicted, newest retained
	for i := 0; i < capacity+1; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, capacity, buf.Size())

	snap := buf.Snapshot()
	require.Len(t, snap, capacity)
	assert.Equal(t, 1, snap[0], "oldest item should be evicted")
	assert.Equal(t, capacity, snap[capacity-1], "newest item should be retained")

	assert.Equal(t, int64(1), buf.Stats().Drops())
}

func TestDropNewestPolicy(t *testing.T) {
	buf, err := NewRing[int](2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // dropped

	snap := buf.Snapshot()
	assert.Equal(t, []int{1, 2}, snap)
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	buf, err := NewRing[string](8)
	require.NoError(t, err)

	require.NoError(t, buf.Write("a"))
	require.NoError(t, buf.Write("b"))

	first := buf.Snapshot()
	second := buf.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, 2, buf.Size())
}

func TestSnapshotOrderAfterWraparound(t *testing.T) {
	buf, err := NewRing[int](3)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{4, 5, 6}, buf.Snapshot())
}

func TestReadBatch(t *testing.T) {
	buf, err := NewRing[int](10)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, buf.Write(i))
	}

	batch := buf.ReadBatch(4)
	assert.Equal(t, []int{0, 1, 2, 3}, batch)
	assert.Equal(t, 2, buf.Size())

	// Request more than available
	batch = buf.ReadBatch(100)
	assert.Equal(t, []int{4, 5}, batch)
	assert.True(t, buf.IsEmpty())

	assert.Nil(t, buf.ReadBatch(0))
}

func TestClear(t *testing.T) {
	buf, err := NewRing[int](4)
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	buf.Clear()

	assert.True(t, buf.IsEmpty())
	assert.Empty(t, buf.Snapshot())

	// Buffer is reusable after Clear
	require.NoError(t, buf.Write(9))
	v, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestWriteAfterClose(t *testing.T) {
	buf, err := NewRing[int](4)
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	assert.Error(t, buf.Write(1))
}

func TestDropCallback(t *testing.T) {
	var mu sync.Mutex
	var dropped []int

	buf, err := NewRing[int](2, WithDropCallback[int](func(item int) {
		mu.Lock()
		dropped = append(dropped, item)
		mu.Unlock()
	}))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, buf.Write(i))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, dropped)
}

func TestConcurrentWriters(t *testing.T) {
	buf, err := NewRing[int](100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = buf.Write(base*1000 + i)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 100, buf.Size())
	assert.Equal(t, int64(400), buf.Stats().Writes())
}

func TestMinimumCapacity(t *testing.T) {
	buf, err := NewRing[int](0)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Capacity())
}

func ExampleNewRing() {
	buf, _ := NewRing[int](3)
	for i := 1; i <= 4; i++ {
		_ = buf.Write(i)
	}
	fmt.Println(buf.Snapshot())
	// Output: [2 3 4]
}
