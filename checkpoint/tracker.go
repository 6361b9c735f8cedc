package checkpoint

import (
	"sync"

	"github.com/pagestore/pagestore/blockmgr"
	"github.com/pagestore/pagestore/txn"
)

// Tracker is the scoped recorder of a checkpoint run's deferred side
// effects: installed once per Database.Checkpoint call, it defers
// block-manager free-list updates until the checkpoint's outer scope
// decides to apply or unroll.
type Tracker interface {
	// TrackResolve defers a free-list update for ranges vacated by
	// deleted snapshots until Commit/Unroll.
	TrackResolve(freed []blockmgr.Range)
	// TrackLock records a snapshot-lock name to release at scope exit.
	TrackLock(name string)
	// Commit applies every deferred action.
	Commit() error
	// Unroll ends the scope after a failed run. Free-list resolves cannot
	// be reversed, so it does the same thing Commit does (see finish).
	Unroll() error
}

// dbTracker is the only Tracker implementation; it's unexported because
// nothing outside this package constructs one directly. Database.Checkpoint
// owns the only instance per call.
type dbTracker struct {
	engine *txn.Engine
	bm     *blockmgr.Manager

	mu     sync.Mutex
	freed  []blockmgr.Range
	locked []string
}

// NewTracker installs a tracker against engine and bm. Exported so
// callers outside Database.Checkpoint (tests, for instance) can wire one up without
// reaching into this package's internals.
func NewTracker(engine *txn.Engine, bm *blockmgr.Manager) Tracker {
	return &dbTracker{engine: engine, bm: bm}
}

func (t *dbTracker) TrackResolve(freed []blockmgr.Range) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.freed = append(t.freed, freed...)
}

func (t *dbTracker) TrackLock(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = append(t.locked, name)
}

func (t *dbTracker) Commit() error { return t.finish() }

func (t *dbTracker) Unroll() error { return t.finish() }

// finish is shared between Commit and Unroll: the block manager's
// free-list update for an already-synced tree can't be cheaply reversed,
// so there is no safe "undo" action distinct from "apply" — both paths
// resolve the same freed ranges. Lock release is unconditional either
// way, since locks are a session-owned resource independent of
// commit/unroll semantics.
func (t *dbTracker) finish() error {
	t.mu.Lock()
	freed := t.freed
	locked := t.locked
	t.freed = nil
	t.locked = nil
	t.mu.Unlock()

	for _, name := range locked {
		t.engine.UnlockSnapshot(name)
	}
	if len(freed) == 0 {
		return nil
	}
	return t.bm.Resolve(freed)
}
