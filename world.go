package polar

import (
	"fmt"
	"sort"
	"sync"
)

// World is a decoded archive. Chunks are kept in a store guarded by a single
// reader/writer lock; each call locks on its own, so updates to several
// chunks are not atomic as a group.
type World struct {
	// Version is the revision the world was read from. Write ignores it.
	Version     int16
	Compression Compression
	MinSection  int8
	MaxSection  int8

	mu     sync.RWMutex
	chunks map[int64]*Chunk
}

// NewWorld creates an empty world at the latest revision.
func NewWorld(minSection, maxSection int8) (*World, error) {
	if minSection >= maxSection {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidSectionRange, minSection, maxSection)
	}
	return &World{
		Version:     LatestVersion,
		Compression: DefaultCompression,
		MinSection:  minSection,
		MaxSection:  maxSection,
		chunks:      make(map[int64]*Chunk),
	}, nil
}

// SectionCount is the number of sections in every chunk of the world.
func (w *World) SectionCount() int {
	return int(w.MaxSection) - int(w.MinSection) + 1
}

// ChunkIndex packs chunk coordinates into the store key.
func ChunkIndex(x, z int32) int64 {
	return int64(x)<<32 | int64(uint32(z))
}

func (w *World) ChunkAt(x, z int32) (*Chunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	chunk, ok := w.chunks[ChunkIndex(x, z)]
	return chunk, ok
}

// UpdateChunkAt stores chunk under (x, z), replacing any chunk already there.
// Write rejects a nil chunk or one whose own coordinates are not (x, z).
func (w *World) UpdateChunkAt(x, z int32, chunk *Chunk) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chunks == nil {
		w.chunks = make(map[int64]*Chunk)
	}
	w.chunks[ChunkIndex(x, z)] = chunk
}

// Chunks returns a snapshot of the stored chunks ordered by ChunkIndex.
// Later updates to the world do not show up in the returned slice.
func (w *World) Chunks() []*Chunk {
	_, chunks := w.snapshot()
	return chunks
}

func (w *World) snapshot() (keys []int64, chunks []*Chunk) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys = make([]int64, 0, len(w.chunks))
	for key := range w.chunks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	chunks = make([]*Chunk, len(keys))
	for i, key := range keys {
		chunks[i] = w.chunks[key]
	}
	return
}

func (w *World) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}
