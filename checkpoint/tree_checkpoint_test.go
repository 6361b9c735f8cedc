package checkpoint

import (
	"testing"

	"github.com/pagestore/pagestore/blockmgr"
	"github.com/pagestore/pagestore/kv"
	"github.com/pagestore/pagestore/kv/memorydb"
	"github.com/pagestore/pagestore/meta"
	"github.com/pagestore/pagestore/tree"
	"github.com/pagestore/pagestore/txn"
)

func newSession(t *testing.T) (*txn.Engine, *txn.Session) {
	t.Helper()
	engine := txn.NewEngine(64)
	session := txn.NewSession(engine)
	if err := session.BeginSnapshot(); err != nil {
		t.Fatalf("BeginSnapshot: %v", err)
	}
	return engine, session
}

// TestIdlePeriodicIsNoOp verifies a periodic checkpoint against a tree
// with no pending writes touches no metadata.
func TestIdlePeriodicIsNoOp(t *testing.T) {
	store := memorydb.New()
	if err := meta.Set(store, &meta.List{TreeName: "t", Entries: []meta.Entry{{Name: "ckpt_A"}}}); err != nil {
		t.Fatalf("seed Set: %v", err)
	}
	before, err := store.Get([]byte("ckptlist-t"))
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}

	tr := tree.New("t", tree.Regular, store)
	engine, session := newSession(t)

	if err := checkpointTree(tr, store, session, engine, nil, nil, ModeCheckpoint, TreeConfig{Name: "ckpt_A"}); err != nil {
		t.Fatalf("checkpointTree: %v", err)
	}

	after, err := store.Get([]byte("ckptlist-t"))
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("metadata changed on idle periodic checkpoint")
	}
}

// TestNamedRotation verifies a named checkpoint retires the existing entry
// with the same name and appends the new one at the tail, leaving the
// other entries in place.
func TestNamedRotation(t *testing.T) {
	store := memorydb.New()
	if err := meta.Set(store, &meta.List{TreeName: "t", Entries: []meta.Entry{
		{Name: "ckpt_A"}, {Name: "ckpt_B"},
	}}); err != nil {
		t.Fatalf("seed Set: %v", err)
	}

	tr := tree.New("t", tree.Regular, store)
	tr.Put(7, []byte("payload"))
	engine, session := newSession(t)

	if err := checkpointTree(tr, store, session, engine, nil, nil, ModeCheckpoint, TreeConfig{Name: "ckpt_B"}); err != nil {
		t.Fatalf("checkpointTree: %v", err)
	}

	got, err := meta.Get(store, "t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("final entries = %+v, want 2 entries", got.Entries)
	}
	if got.Entries[0].Name != "ckpt_A" || got.Entries[1].Name != "ckpt_B" {
		t.Fatalf("final entries = %+v, want [ckpt_A ckpt_B]", got.Entries)
	}
	if len(got.Entries[1].Ref) == 0 {
		t.Fatalf("rotated entry has no Ref payload")
	}
}

// TestReservedPrefixUnderBackup verifies an open backup cursor blocks a
// checkpoint that would drop an application snapshot, even though the
// reserved-prefix entry itself is squelched from the lock check.
func TestReservedPrefixUnderBackup(t *testing.T) {
	store := memorydb.New()
	if err := meta.Set(store, &meta.List{TreeName: "t", Entries: []meta.Entry{
		{Name: ReservedPrefix + ".1"}, {Name: "app_snap"},
	}}); err != nil {
		t.Fatalf("seed Set: %v", err)
	}

	tr := tree.New("t", tree.Regular, store)
	tr.Put(1, []byte("x"))
	engine, session := newSession(t)
	engine.SetBackupOpen(true)

	tracker := NewTracker(engine, nil)
	err := checkpointTree(tr, store, session, engine, tracker, nil, ModeCheckpoint, TreeConfig{
		Drop: []DropDirective{Named("app_snap")},
	})
	if err != txn.ErrBusy {
		t.Fatalf("checkpointTree under open backup = %v, want txn.ErrBusy", err)
	}
}

// TestNoTrackerResolvesImmediately covers the no-tracker branch of free-list
// resolution: the metadata tree's own checkpoint always runs with a nil
// tracker, so a named rotation that retires a stale entry must hand its
// freed range straight to the block manager rather than silently dropping
// it.
func TestNoTrackerResolvesImmediately(t *testing.T) {
	dir := t.TempDir()
	bm, err := blockmgr.Open(dir + "/SUPERBLOCK")
	if err != nil {
		t.Fatalf("blockmgr.Open: %v", err)
	}
	defer bm.Close()

	store := memorydb.New()
	staleRef := tree.Ref{RootPage: 42, PageCount: 3, Generation: 1}
	seeded := &meta.List{TreeName: "t", Entries: []meta.Entry{
		{Name: "ckpt_X", Ref: staleRef.Encode()},
	}}
	if err := meta.Set(store, seeded); err != nil {
		t.Fatalf("seed Set: %v", err)
	}

	tr := tree.New("t", tree.Regular, store)
	tr.Put(2, []byte("y"))
	engine, session := newSession(t)

	if err := checkpointTree(tr, store, session, engine, nil, bm, ModeCheckpoint, TreeConfig{Name: "ckpt_X"}); err != nil {
		t.Fatalf("checkpointTree: %v", err)
	}
	if got := bm.Ranges(); len(got) != 1 || got[0].Start != staleRef.RootPage || got[0].Count != staleRef.PageCount {
		t.Fatalf("Ranges() = %+v, want the retired entry's range resolved", got)
	}
}

// TestCloseTreeUnmodifiedIsNoOp covers the ModeClose early-out: a handle
// that was never modified just flushes-and-discards without touching
// metadata or the block manager at all.
func TestCloseTreeUnmodifiedIsNoOp(t *testing.T) {
	dir := t.TempDir()
	bm, err := blockmgr.Open(dir + "/SUPERBLOCK")
	if err != nil {
		t.Fatalf("blockmgr.Open: %v", err)
	}
	defer bm.Close()

	store := memorydb.New()
	if err := meta.Set(store, &meta.List{TreeName: "t"}); err != nil {
		t.Fatalf("seed Set: %v", err)
	}
	tr := tree.New("t", tree.Regular, store)
	engine, session := newSession(t)

	if err := CloseTree(tr, store, session, engine, bm); err != nil {
		t.Fatalf("CloseTree: %v", err)
	}
	if len(bm.Ranges()) != 0 {
		t.Fatalf("unmodified close touched the block manager")
	}
}

// TestDeadTreeIsNoOp verifies a tree absent from metadata is skipped
// entirely rather than treated as an error.
func TestDeadTreeIsNoOp(t *testing.T) {
	store := memorydb.New()
	tr := tree.New("ghost", tree.Regular, store)
	engine, session := newSession(t)

	if err := checkpointTree(tr, store, session, engine, nil, nil, ModeCheckpoint, TreeConfig{}); err != nil {
		t.Fatalf("checkpointTree on dead tree: %v", err)
	}
	if _, err := store.Get([]byte("ckptlist-ghost")); err != kv.ErrNotFound {
		t.Fatalf("dead tree checkpoint wrote metadata")
	}
}
