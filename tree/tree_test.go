package tree

import (
	"testing"

	"github.com/pagestore/pagestore/kv/memorydb"
)

func TestMarkModifiedAndClear(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	if tr.Modified() {
		t.Fatalf("fresh tree reports modified")
	}
	tr.MarkModified()
	if !tr.Modified() {
		t.Fatalf("Modified() false after MarkModified")
	}
	tr.ClearModified()
	if tr.Modified() {
		t.Fatalf("Modified() true after ClearModified")
	}
}

func TestPutMarksModified(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	tr.Put(3, []byte("v"))
	if !tr.Modified() {
		t.Fatalf("Put did not mark the tree modified")
	}
}

func TestForceRootDirtyIsIdempotent(t *testing.T) {
	store := memorydb.New()
	tr := New("t", Regular, store)
	tr.ForceRootDirty()
	tr.ForceRootDirty()
	if len(tr.dirty) != 1 {
		t.Fatalf("dirty set = %v, want exactly the root page", tr.dirty)
	}
}
