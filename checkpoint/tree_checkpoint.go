package checkpoint

import (
	"github.com/pagestore/pagestore/blockmgr"
	"github.com/pagestore/pagestore/internal/log"
	"github.com/pagestore/pagestore/kv"
	"github.com/pagestore/pagestore/meta"
	"github.com/pagestore/pagestore/tree"
	"github.com/pagestore/pagestore/txn"
)

// Mode selects which of the orchestrator's two call sites is running: a
// live checkpoint, or the final flush a handle performs on close.
type Mode int

const (
	// ModeCheckpoint is an ordinary checkpoint call against an open handle.
	ModeCheckpoint Mode = iota
	// ModeClose is the flush a tree handle performs when it's being
	// discarded, whether or not it was ever modified.
	ModeClose
)

// TreeConfig is the already-parsed configuration applied to a single
// per-tree or database-wide checkpoint run. Raw configuration-string
// parsing happens above this package; callers (the CLI, tests) build one
// of these directly instead of handing the pipeline a string to parse.
type TreeConfig struct {
	// Name is the explicit checkpoint name, or "" to use the reserved
	// internal name.
	Name string
	// Drop is the sequence of drop directives to apply before adding the
	// new entry.
	Drop []DropDirective
}

// CloseTree runs the per-tree pipeline in ModeClose: the final flush a
// handle performs when it's being discarded. There is no database-wide
// tracker scope to defer free-list resolution into, so freed ranges are
// resolved against blockMgr immediately.
func CloseTree(t *tree.Tree, metaStore kv.Store, session *txn.Session, engine *txn.Engine, blockMgr *blockmgr.Manager) error {
	return checkpointTree(t, metaStore, session, engine, nil, blockMgr, ModeClose, TreeConfig{})
}

// checkpointTree runs the full per-tree pipeline: validate and resolve the
// new entry's name, apply any drop directives, retire a stale entry under
// the same name, lock doomed snapshots, flush, persist the updated list,
// and resolve whatever space the deletions freed. tracker is nil in
// ModeClose, and also for the metadata tree's own checkpoint; in both
// cases blockMgr, not the tracker, is where freed ranges go.
func checkpointTree(t *tree.Tree, metaStore kv.Store, session *txn.Session, engine *txn.Engine, tracker Tracker, blockMgr *blockmgr.Manager, mode Mode, cfg TreeConfig) error {
	// Early outs that need no metadata at all.
	if t.Role == tree.SnapshotView {
		if mode == ModeClose {
			_, err := t.Flush(tree.SyncDiscardNoWrite)
			return err
		}
		return nil
	}
	if mode == ModeClose && !t.Modified() {
		_, err := t.Flush(tree.SyncDiscardNoWrite)
		return err
	}

	list, err := meta.Get(metaStore, t.Name)
	if err == meta.ErrDeadTree {
		_, ferr := t.Flush(tree.SyncDiscardNoWrite)
		return ferr
	}
	if err != nil {
		return err
	}

	// Resolve the new entry's name. An explicit name is validated against
	// the reserved prefix; the default case uses the bare prefix, which
	// the metadata layer turns into a generationally-suffixed name at
	// serialization time.
	name := cfg.Name
	if name == "" {
		name = ReservedPrefix
	} else if err := ValidateName(name); err != nil {
		return err
	}

	// Plan drops against the loaded list. This only sets flags; it never
	// removes entries outright.
	if err := planDrops(list, cfg.Drop); err != nil {
		return err
	}

	// Unconditional same-name retirement of the new checkpoint's name, run
	// whether or not the tree actually needs a new entry — a rotation
	// through the same name always supersedes whatever used it last.
	dropNamed(list, name)

	// Clean-tree short circuit. If nothing changed since the last
	// checkpoint and the list already ends in a single pending deletion of
	// an entry with this name, there is nothing new to write.
	if !t.Modified() {
		last := list.Last()
		if list.CountDeleted() == 1 && last != nil && last.Flags.Has(meta.FlagDelete) && last.Name == name {
			return nil
		}
	}

	// Append the new (unresolved) entry. Ref is filled in after the flush
	// below.
	entry := list.Add(name)

	// Lock every snapshot slated for deletion against concurrent cursor
	// opens, honoring the backup-cursor and reserved-prefix squelch rules.
	// Only runs when a tracker is installed — CLOSE mode and the metadata
	// tree's own checkpoint both skip it entirely.
	if tracker != nil {
		var lockedHere []string
		busy := false
		list.ForEach(func(e *meta.Entry) {
			if busy || !e.Flags.Has(meta.FlagDelete) {
				return
			}
			if engine.BackupOpen() {
				if isReserved(e.Name) {
					e.Flags &^= meta.FlagDelete
					return
				}
				busy = true
				return
			}
			if lerr := engine.LockSnapshot(e.Name); lerr != nil {
				if isReserved(e.Name) {
					e.Flags &^= meta.FlagDelete
					return
				}
				busy = true
				return
			}
			lockedHere = append(lockedHere, e.Name)
		})
		if busy {
			for _, n := range lockedHere {
				engine.UnlockSnapshot(n)
			}
			return txn.ErrBusy
		}
		for _, n := range lockedHere {
			tracker.TrackLock(n)
		}
	}

	// Force at least one dirty page so the flush below always has
	// something to reconcile.
	t.ForceRootDirty()

	// Clear the modified bit with a full barrier before invoking the
	// flusher, so a concurrent writer that re-dirties the tree after this
	// point is never silently dropped by the flush about to run.
	t.ClearModified()

	// Invoke the flusher. ModeClose discards memory after writing;
	// ModeCheckpoint keeps the tree open for further writes. Closing a
	// handle also means there will be no later opportunity to persist
	// anything still uncommitted against it, so isolation is lowered to
	// read-uncommitted for the flush itself, restored once the updated
	// list has been written out below.
	saved := session.Isolation()
	flushMode := tree.Sync
	if mode == ModeClose {
		flushMode = tree.SyncDiscard
		session.SetIsolation(txn.ReadUncommitted)
	}
	ref, ferr := t.Flush(flushMode)
	if ferr != nil {
		session.SetIsolation(saved)
		log.Error("tree flush failed", "tree", t.Name, "err", ferr)
		return ferr
	}
	entry.Ref = ref.Encode()

	// Persist the updated list, still under read-uncommitted isolation so
	// the write itself is never blocked waiting on a reader.
	session.SetIsolation(txn.ReadUncommitted)
	serr := meta.Set(metaStore, list)
	session.SetIsolation(saved)
	if serr != nil {
		return serr
	}

	// Hand the freed ranges from every entry this run deleted to the
	// tracker for deferred resolution, or resolve them immediately when
	// there's no database-wide scope to defer into (ModeClose, or no
	// tracker at all).
	freed := collectFreed(list)
	if len(freed) == 0 {
		return nil
	}
	if tracker != nil {
		tracker.TrackResolve(freed)
		return nil
	}
	if blockMgr == nil {
		return nil
	}
	return blockMgr.Resolve(freed)
}

// isReserved reports whether name carries the reserved internal prefix —
// the squelch condition that lets checkpoint rotation proceed under an
// open backup cursor, or against a lock already held on that same name.
func isReserved(name string) bool {
	return len(name) >= len(ReservedPrefix) && name[:len(ReservedPrefix)] == ReservedPrefix
}

// collectFreed decodes the opaque Ref payload of every entry this run
// flagged for deletion into the block ranges it vacated. The pipeline
// never otherwise interprets Ref; it defers to the same collaborator
// (tree.Ref) that produced it.
func collectFreed(l *meta.List) []blockmgr.Range {
	var out []blockmgr.Range
	l.ForEach(func(e *meta.Entry) {
		if !e.Flags.Has(meta.FlagDelete) || len(e.Ref) == 0 {
			return
		}
		ref, err := tree.DecodeRef(e.Ref)
		if err != nil {
			log.Warn("dropping unreadable checkpoint ref", "name", e.Name, "err", err)
			return
		}
		out = append(out, blockmgr.Range{Start: ref.RootPage, Count: ref.PageCount})
	})
	return out
}
