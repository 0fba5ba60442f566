package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatchat/internal/models"
)

func TestEnqueueFIFOOrder(t *testing.T) {
	m := NewManager()
	base := time.Now()

	assert.Equal(t, 1, m.Enqueue("s1", base))
	assert.Equal(t, 2, m.Enqueue("s2", base.Add(time.Second)))
	assert.Equal(t, 3, m.Enqueue("s3", base.Add(2*time.Second)))

	entry, err := m.PopHead()
	require.NoError(t, err)
	assert.Equal(t, "s1", entry.SessionID)

	entry, err = m.PopHead()
	require.NoError(t, err)
	assert.Equal(t, "s2", entry.SessionID)
}

func TestEnqueuePreservedTimestampInsertsInOrder(t *testing.T) {
	m := NewManager()
	base := time.Now()

	m.Enqueue("s1", base)
	m.Enqueue("s3", base.Add(10*time.Second))

	// A transferred session keeps its original wait clock and therefore
	// lands between the two.
	pos := m.Enqueue("s2", base.Add(5*time.Second))
	assert.Equal(t, 2, pos)
	assert.Equal(t, 3, m.Position("s3"))
}

func TestEnqueueDuplicateReturnsCurrentPosition(t *testing.T) {
	m := NewManager()
	base := time.Now()

	m.Enqueue("s1", base)
	pos := m.Enqueue("s1", base.Add(time.Minute))
	assert.Equal(t, 1, pos)
	assert.Equal(t, 1, m.Len())
}

func TestPopHeadEmpty(t *testing.T) {
	m := NewManager()
	_, err := m.PopHead()
	assert.True(t, errors.Is(err, models.ErrQueueEmpty))
}

func TestConcurrentPopSingleWinnerPerEntry(t *testing.T) {
	m := NewManager()
	base := time.Now()
	const entries = 10
	const claimers = 50

	for i := 0; i < entries; i++ {
		m.Enqueue(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := m.PopHead()
			if err != nil {
				return
			}
			mu.Lock()
			claimed[entry.SessionID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, entries)
	for id, n := range claimed {
		assert.Equalf(t, 1, n, "entry %s claimed %d times", id, n)
	}
	assert.Equal(t, 0, m.Len())
}

func TestRemoveAndPosition(t *testing.T) {
	m := NewManager()
	base := time.Now()

	m.Enqueue("s1", base)
	m.Enqueue("s2", base.Add(time.Second))
	m.Enqueue("s3", base.Add(2*time.Second))

	assert.True(t, m.Remove("s2"))
	assert.False(t, m.Remove("s2"))
	assert.Equal(t, 2, m.Position("s3"))
	assert.Equal(t, 0, m.Position("s2"))
}

func TestRequeueRestoresPosition(t *testing.T) {
	m := NewManager()
	base := time.Now()

	m.Enqueue("s1", base)
	m.Enqueue("s2", base.Add(time.Second))

	entry, err := m.PopHead()
	require.NoError(t, err)
	require.Equal(t, "s1", entry.SessionID)

	m.Requeue(entry)
	assert.Equal(t, 1, m.Position("s1"))
	assert.Equal(t, 2, m.Position("s2"))
}

func TestSnapshotIsCopy(t *testing.T) {
	m := NewManager()
	m.Enqueue("s1", time.Now())

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	snap[0].SessionID = "mutated"

	again := m.Snapshot()
	assert.Equal(t, "s1", again[0].SessionID)
}
