package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireExcludesConcurrentHolders(t *testing.T) {
	var idx Index
	unlock := idx.Acquire("a")

	_, ok := idx.TryAcquire("a")
	assert.False(t, ok, "a held key must not be acquirable")

	unlock()
	unlock2, ok := idx.TryAcquire("a")
	assert.True(t, ok, "once released, the key must be acquirable again")
	unlock2()
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	var idx Index
	unlockA := idx.Acquire("a")
	unlockB, ok := idx.TryAcquire("b")
	assert.True(t, ok, "distinct keys must not block each other")
	unlockA()
	unlockB()
}

func TestEntryRemovedFromMapWhenRefcountHitsZero(t *testing.T) {
	var idx Index
	unlock := idx.Acquire("a")
	unlock()

	idx.mu.Lock()
	_, present := idx.entries["a"]
	idx.mu.Unlock()
	assert.False(t, present, "a released key with no remaining holders must be pruned from the map")
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	var idx Index
	unlock := idx.Acquire("a")

	acquired := make(chan struct{})
	go func() {
		u := idx.Acquire("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire must block while another goroutine holds the key")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire should have proceeded after release")
	}
}

func TestConcurrentAcquireReleaseOnSameKeyIsSafe(t *testing.T) {
	var idx Index
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := idx.Acquire("shared")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
