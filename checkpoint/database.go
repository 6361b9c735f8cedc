package checkpoint

import (
	"context"

	"github.com/pagestore/pagestore/blockmgr"
	"github.com/pagestore/pagestore/kv"
	"github.com/pagestore/pagestore/meta"
	"github.com/pagestore/pagestore/schema"
	"github.com/pagestore/pagestore/tree"
	"github.com/pagestore/pagestore/txn"
)

// Config is the already-parsed set of directives a single
// Database.Checkpoint call applies. Target selects which trees
// participate; Name/Drop are forwarded unchanged to every selected tree's
// TreeConfig.
type Config struct {
	Target []string
	TreeConfig
}

// Database is the global driver. It owns the collaborators
// checkpointTree needs per call (the registry, the metadata store, the
// transaction engine, the block manager) and the designated metadata
// tree, which is always checkpointed last.
type Database struct {
	Registry     *schema.Registry
	MetaStore    kv.Store
	Engine       *txn.Engine
	BlockManager *blockmgr.Manager
	// MetaTreeName is the tree handle that backs MetaStore itself.
	MetaTreeName string
}

// Checkpoint runs a full database checkpoint: begin the snapshot
// transaction, checkpoint every selected tree plus the metadata tree
// itself, then release the transaction and apply (or unroll) whatever the
// tracker accumulated along the way.
func (db *Database) Checkpoint(ctx context.Context, session *txn.Session, cfg Config) error {
	// BeginSnapshot itself enforces "no running application transaction".
	if err := session.BeginSnapshot(); err != nil {
		return err
	}

	tracker := NewTracker(db.Engine, db.BlockManager)

	runErr := db.run(ctx, session, tracker, cfg)

	// Cleanup always runs, regardless of runErr. Isolation is pinned to
	// read-uncommitted for the cleanup itself, and the tracker commits
	// even on error: free-list resolution against an already-synced tree
	// can't be cheaply reversed, so there is no safe unroll path distinct
	// from commit.
	session.SetIsolation(txn.ReadUncommitted)
	if runErr != nil {
		_ = tracker.Unroll()
	} else {
		_ = tracker.Commit()
	}
	session.Release()

	return runErr
}

// run enumerates the target trees, checkpoints each one, and finally
// checkpoints the metadata tree. Split out from Checkpoint so the
// always-runs cleanup has a single error value to act on.
func (db *Database) run(ctx context.Context, session *txn.Session, tracker Tracker, cfg Config) error {
	names, err := db.selectTrees(cfg)
	if err != nil {
		return err
	}

	action := func(_ context.Context, name string) error {
		// A name known to metadata but not currently open gets a
		// transient, unmodified handle: naming/dropping still needs to
		// touch its snapshot list even though there's no live in-memory
		// state to reconcile.
		t := db.Registry.Lookup(name)
		if t == nil {
			t = tree.New(name, tree.Regular, db.MetaStore)
		}
		return checkpointTree(t, db.MetaStore, session, db.Engine, tracker, db.BlockManager, ModeCheckpoint, cfg.TreeConfig)
	}
	if err := db.Registry.Walk(ctx, names, action); err != nil {
		return err
	}

	// The metadata tree's own handle must be open.
	metaTree := db.Registry.Lookup(db.MetaTreeName)
	if metaTree == nil {
		return invalidArgf("metadata tree %q is not open", db.MetaTreeName)
	}

	// Checkpoint the metadata tree with the tracker disabled and
	// isolation lowered — no snapshot locking is attempted on it, since
	// re-entering tracked locking here would invert lock order against
	// the per-tree locks just taken above. With no tracker to defer into,
	// any ranges its own checkpoint frees resolve immediately against
	// db.BlockManager.
	saved := session.SetIsolation(txn.ReadUncommitted)
	err = checkpointTree(metaTree, db.MetaStore, session, db.Engine, nil, db.BlockManager, ModeCheckpoint, cfg.TreeConfig)
	session.SetIsolation(saved)
	return err
}

// selectTrees picks which trees this run applies to: an explicit target
// list takes priority; otherwise a named or drop-bearing checkpoint must
// walk every tree known to metadata (open or closed), while a bare
// periodic checkpoint only needs to touch currently-open trees.
func (db *Database) selectTrees(cfg Config) ([]string, error) {
	if len(cfg.Target) > 0 {
		names := make([]string, 0, len(cfg.Target))
		for _, raw := range cfg.Target {
			name, err := schema.ParseTarget(raw)
			if err != nil {
				return nil, invalidArgf("%v", err)
			}
			names = append(names, name)
		}
		return names, nil
	}

	if cfg.Name != "" || len(cfg.Drop) > 0 {
		all, err := meta.AllTreeNames(db.MetaStore)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(all))
		for _, name := range all {
			if name != db.MetaTreeName {
				names = append(names, name)
			}
		}
		return names, nil
	}

	open := make([]string, 0, len(db.Registry.OpenNames()))
	for _, name := range db.Registry.OpenNames() {
		if name != db.MetaTreeName {
			open = append(open, name)
		}
	}
	return open, nil
}
