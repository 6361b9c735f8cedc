// Package tree implements the engine's B-tree table handle: the
// modified bit, role, in-memory dirty-page overlay, and the flush
// pipeline the checkpoint orchestrator drives against it.
package tree

import (
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/pagestore/pagestore/kv"
)

// Role distinguishes writable trees from read-only checkpoint-view handles.
type Role int

const (
	// Regular trees participate fully in checkpoints: they can be dirty,
	// flushed, and have their snapshot list extended.
	Regular Role = iota
	// SnapshotView trees are read-only handles opened against a named
	// checkpoint, the way a backup process pins one. They never write
	// and the checkpoint pipeline skips them outright.
	SnapshotView
)

// pageID identifies a page within a tree; 0 is always the root.
type pageID uint64

const rootPage pageID = 0

// Tree is a handle to one on-disk B-tree table.
type Tree struct {
	Name string
	Role Role

	modified int32 // atomic; set by writers, cleared by TreeCheckpoint

	mu    sync.Mutex
	dirty map[pageID][]byte // in-memory dirty overlay, cleared on flush
	gen   uint64            // write-generation, bumped on every flush that writes

	store kv.Store          // page storage backend
	cache *fastcache.Cache  // clean-page cache, consulted before store reads
}

// New creates a tree handle backed by store, with a modest clean-page
// cache — pages here are small and numerous compared to the blob-sized
// values a larger cache budget would be sized for.
func New(name string, role Role, store kv.Store) *Tree {
	return &Tree{
		Name:  name,
		Role:  role,
		dirty: make(map[pageID][]byte),
		store: store,
		cache: fastcache.New(32 * 1024 * 1024),
	}
}

// Modified reports whether the tree has unflushed writes.
func (t *Tree) Modified() bool {
	return atomic.LoadInt32(&t.modified) != 0
}

// MarkModified is called by writers on every mutation.
func (t *Tree) MarkModified() {
	atomic.StoreInt32(&t.modified, 1)
}

// ClearModified clears the modified bit using a full memory barrier:
// Go's atomic operations are sequentially consistent, so this StoreInt32
// happens-before any later atomic load a concurrent writer performs when
// re-setting the bit. That ordering matters because the pipeline clears
// the bit immediately before invoking the flusher — a writer that sneaks
// in between the two must see the bit as already clear and re-set it,
// not have its write silently folded into this flush with the bit still
// reading "clean" afterward.
func (t *Tree) ClearModified() {
	atomic.StoreInt32(&t.modified, 0)
}

// ForceRootDirty unconditionally dirties the root page so a flush always
// has at least one page to reconcile, even against a tree with no other
// pending writes.
func (t *Tree) ForceRootDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.dirty[rootPage]; !ok {
		t.dirty[rootPage] = t.readPageLocked(rootPage)
	}
}

// Put stages a page write, marking the tree modified. Used by tests and by
// any real write path that would sit above this package.
func (t *Tree) Put(id uint64, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty[pageID(id)] = data
	atomic.StoreInt32(&t.modified, 1)
}

func (t *Tree) readPageLocked(id pageID) []byte {
	if v, ok := t.dirty[id]; ok {
		return v
	}
	key := pageKey(t.Name, uint64(id))
	if buf, ok := t.cache.HasGet(nil, key); ok {
		return buf
	}
	v, err := t.store.Get(key)
	if err != nil {
		return nil
	}
	t.cache.Set(key, v)
	return v
}

func pageKey(treeName string, id uint64) []byte {
	k := make([]byte, 0, len(treeName)+9)
	k = append(k, 'p', '-')
	k = append(k, treeName...)
	k = append(k, '-')
	k = appendUint64(k, id)
	return k
}

func appendUint64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	return append(dst, tmp[:]...)
}
