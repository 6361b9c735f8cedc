package tree

import (
	"testing"

	"github.com/pagestore/pagestore/kv/memorydb"
)

func TestFlushSyncWritesDirtyPages(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	tr.Put(1, []byte("a"))
	tr.Put(2, []byte("b"))

	ref, err := tr.Flush(Sync)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ref.PageCount != 2 {
		t.Fatalf("ref.PageCount = %d, want 2", ref.PageCount)
	}
	if ref.Generation != 1 {
		t.Fatalf("ref.Generation = %d, want 1", ref.Generation)
	}
	if len(tr.dirty) != 0 {
		t.Fatalf("dirty set not cleared after Sync flush")
	}
	if has, _ := store.Has(pageKey("t", 1)); !has {
		t.Fatalf("page 1 was not written to the store")
	}
}

func TestFlushSyncDiscardResetsCache(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	tr.Put(1, []byte("a"))

	if _, err := tr.Flush(SyncDiscard); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if has, _ := store.Has(pageKey("t", 1)); !has {
		t.Fatalf("page 1 was not written before discard")
	}
	if _, ok := tr.cache.HasGet(nil, pageKey("t", 1)); ok {
		t.Fatalf("clean-page cache still holds page 1 after SyncDiscard")
	}
}

func TestFlushSyncDiscardNoWriteTouchesNothing(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	tr.Put(1, []byte("a"))

	ref, err := tr.Flush(SyncDiscardNoWrite)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ref != (Ref{}) {
		t.Fatalf("SyncDiscardNoWrite returned non-zero ref: %+v", ref)
	}
	if has, _ := store.Has(pageKey("t", 1)); has {
		t.Fatalf("SyncDiscardNoWrite wrote a page to the store")
	}
}

func TestRefEncodeDecodeRoundTrip(t *testing.T) {
	ref := Ref{RootPage: 1, PageCount: 4, Generation: 9, WrittenAt: 12345}
	got, err := DecodeRef(ref.Encode())
	if err != nil {
		t.Fatalf("DecodeRef: %v", err)
	}
	if got != ref {
		t.Fatalf("DecodeRef(Encode()) = %+v, want %+v", got, ref)
	}
}
