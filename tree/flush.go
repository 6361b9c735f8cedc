package tree

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/pagestore/pagestore/internal/log"
	"github.com/pagestore/pagestore/internal/metrics"
	"github.com/pagestore/pagestore/kv"
)

// Mode selects how Flush reconciles the tree.
type Mode int

const (
	// Sync reconciles and writes dirty pages, keeping the tree open.
	Sync Mode = iota
	// SyncDiscard reconciles and writes dirty pages, then discards the
	// in-memory cache — used when a handle is closing but must still
	// produce a durable checkpoint.
	SyncDiscard
	// SyncDiscardNoWrite discards the in-memory cache without writing
	// anything — the dead-tree / read-only / clean-close early-outs.
	SyncDiscardNoWrite
)

var (
	flushWriteMeter = metrics.NewRegisteredMeter("tree/flush/write", nil)
	flushSkipMeter  = metrics.NewRegisteredMeter("tree/flush/skip", nil)
)

// Ref is the opaque reference payload this package hands to the metadata
// layer via meta.Entry.Ref. It's serialized by this package; meta carries
// it through verbatim, and checkpoint reads it only through DecodeRef, to
// find the page range a deleted entry frees.
type Ref struct {
	RootPage   uint64
	PageCount  uint64
	Generation uint64
	WrittenAt  int64 // unix nanos
}

// Encode serializes r for storage as a meta.Entry's opaque Ref payload.
func (r Ref) Encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, r)
	return buf.Bytes()
}

// DecodeRef parses a Ref previously produced by Encode.
func DecodeRef(b []byte) (Ref, error) {
	var r Ref
	err := binary.Read(bytes.NewReader(b), binary.BigEndian, &r)
	return r, err
}

// Flush reconciles the tree's dirty pages according to mode: batch
// writes, flush early once the batch crosses kv.IdealBatchSize, then one
// final write for the remainder.
//
// On Sync/SyncDiscard it returns the Ref to store in the new checkpoint
// entry. On SyncDiscardNoWrite it returns a zero Ref and performs no I/O
// beyond discarding memory.
func (t *Tree) Flush(mode Mode) (Ref, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == SyncDiscardNoWrite {
		flushSkipMeter.Mark(1)
		t.discardLocked()
		return Ref{}, nil
	}

	batch := t.store.NewBatch()
	for id, data := range t.dirty {
		key := pageKey(t.Name, uint64(id))
		if len(data) == 0 {
			if err := batch.Delete(key); err != nil {
				return Ref{}, err
			}
			t.cache.Del(key)
			continue
		}
		if err := batch.Put(key, data); err != nil {
			return Ref{}, err
		}
		t.cache.Set(key, data)
		if batch.ValueSize() > kv.IdealBatchSize {
			if err := batch.Write(); err != nil {
				log.Crit("failed to write tree pages", "tree", t.Name, "err", err)
			}
			batch.Reset()
		}
	}
	if err := batch.Write(); err != nil {
		return Ref{}, err
	}
	flushWriteMeter.Mark(int64(len(t.dirty)))

	t.gen++
	ref := Ref{
		RootPage:   uint64(rootPage),
		PageCount:  uint64(len(t.dirty)),
		Generation: t.gen,
		WrittenAt:  time.Now().UnixNano(),
	}

	if mode == SyncDiscard {
		t.discardLocked()
	} else {
		t.dirty = make(map[pageID][]byte)
	}
	return ref, nil
}

func (t *Tree) discardLocked() {
	t.dirty = make(map[pageID][]byte)
	t.cache.Reset()
}
