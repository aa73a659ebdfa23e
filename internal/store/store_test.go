package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := New()

	_, ok := s.Get("a")
	require.False(t, ok)

	s.Put("a", "1")
	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	s.Put("a", "2")
	v, ok = s.Get("a")
	require.True(t, ok)
	require.Equal(t, "2", v)
}

func TestSnapshotIsAConsistentCopy(t *testing.T) {
	s := New()
	s.Put("a", "1")
	s.Put("b", "2")

	snap := s.Snapshot()
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, snap)

	// Mutating the snapshot must not affect the store.
	snap["a"] = "mutated"
	v, _ := s.Get("a")
	require.Equal(t, "1", v)
}

func TestSize(t *testing.T) {
	s := New()
	require.Equal(t, 0, s.Size())
	s.Put("a", "1")
	s.Put("b", "2")
	require.Equal(t, 2, s.Size())
	s.Put("a", "3") // overwrite, not a new key
	require.Equal(t, 2, s.Size())
}

func TestConcurrentPutsDoNotCorruptTheMap(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put("k", "v")
			_, _ = s.Snapshot(), s.Size()
		}(i)
	}
	wg.Wait()
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
