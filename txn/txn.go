// Package txn implements the session/transaction primitives the
// checkpoint orchestrator drives: snapshot-isolation transactions, the
// oldest-visible-txn floor, transient isolation switching, the
// backup-cursor presence bit, and the snapshot-lock table contended by
// cursor openers. The single-active-checkpoint invariant is modeled as a
// weighted semaphore (golang.org/x/sync/semaphore), and the snapshot-lock
// table is an LRU-bounded set (hashicorp/golang-lru) so a pathological
// configuration can't grow it without bound.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/semaphore"
)

// Isolation is the read-visibility level a Session operates under.
type Isolation int

const (
	// Snapshot isolation is what every checkpoint transaction begins
	// under: a single, stable read view fixed at begin time.
	Snapshot Isolation = iota
	// ReadUncommitted is transiently adopted for metadata-list writes and
	// for close-mode flushes, where the write must never block behind an
	// in-flight reader.
	ReadUncommitted
)

// ErrBusy is returned when a snapshot lock is held by a cursor or backup
// and the reserved-prefix squelch rule doesn't apply.
var ErrBusy = errors.New("txn: busy")

// ErrRunningTxn is returned by BeginSnapshot if the session already has an
// application transaction running — a checkpoint transaction can't nest
// inside one.
var ErrRunningTxn = errors.New("txn: checkpoint not permitted in a running transaction")

// Engine holds the process-wide observables the orchestrator reads: the
// oldest-visible-txn floor consumed by eviction, and the backup-cursor-open
// bit. These live on a shared engine context passed by reference between
// sessions, rather than as package-level singletons, so multiple engines
// can coexist in the same process (tests do exactly this).
type Engine struct {
	nextTxnID     uint64
	oldestVisible uint64
	backupOpen    int32

	// schemaLock models the process-wide invariant that at most one
	// checkpoint is active on a database at a time. Call sites are
	// expected to hold this for the whole checkpoint run, the same way a
	// caller would hold a single database-wide schema lock.
	schemaLock *semaphore.Weighted

	lockMu sync.Mutex
	locks  *lru.Cache // name -> struct{}, snapshot names currently pinned
}

// NewEngine constructs an Engine with an empty lock table bounded to
// maxLocks entries (a checkpoint rarely deletes more than a handful of
// snapshots per tree at once; this just bounds pathological configs).
func NewEngine(maxLocks int) *Engine {
	locks, err := lru.New(maxLocks)
	if err != nil {
		panic(fmt.Sprintf("txn: invalid lock table size %d: %v", maxLocks, err))
	}
	return &Engine{
		schemaLock: semaphore.NewWeighted(1),
		locks:      locks,
	}
}

// OldestVisible returns the minimum transaction id any live reader
// requires; eviction must preserve versions at or above it.
func (e *Engine) OldestVisible() uint64 { return atomic.LoadUint64(&e.oldestVisible) }

// SetBackupOpen flips the global backup-cursor presence bit.
func (e *Engine) SetBackupOpen(open bool) {
	var v int32
	if open {
		v = 1
	}
	atomic.StoreInt32(&e.backupOpen, v)
}

// BackupOpen reports whether a backup cursor currently pins the snapshot set.
func (e *Engine) BackupOpen() bool { return atomic.LoadInt32(&e.backupOpen) != 0 }

// AcquireSchemaLock enforces "at most one active checkpoint" against this
// engine. ctx lets callers bound how long they're willing to wait (or
// assert non-blocking behavior via an already-cancelled context) instead
// of blocking indefinitely on contention.
func (e *Engine) AcquireSchemaLock(ctx context.Context) error {
	return e.schemaLock.Acquire(ctx, 1)
}

// ReleaseSchemaLock releases what AcquireSchemaLock acquired.
func (e *Engine) ReleaseSchemaLock() { e.schemaLock.Release(1) }

// LockSnapshot pins name against concurrent cursor opens, returning
// ErrBusy if already pinned.
func (e *Engine) LockSnapshot(name string) error {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	if e.locks.Contains(name) {
		return ErrBusy
	}
	e.locks.Add(name, struct{}{})
	return nil
}

// UnlockSnapshot releases a name locked by LockSnapshot. Safe to call on a
// name that was never locked (e.g. the reserved-prefix squelch path never
// locks in the first place).
func (e *Engine) UnlockSnapshot(name string) {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	e.locks.Remove(name)
}

// Session is one connection's view of the Engine: its transaction state
// and current isolation level.
type Session struct {
	engine    *Engine
	running   bool
	txnID     uint64
	isolation Isolation
}

// NewSession returns a fresh, idle session against engine.
func NewSession(engine *Engine) *Session {
	return &Session{engine: engine}
}

// Running reports whether a transaction is active on the session: an
// application transaction or the checkpoint's snapshot transaction.
func (s *Session) Running() bool { return s.running }

// BeginApplication marks an application transaction running, for tests
// that need to exercise the ErrRunningTxn precondition.
func (s *Session) BeginApplication() { s.running = true }

// BeginSnapshot opens the checkpoint's snapshot-isolation transaction. It
// fails with ErrRunningTxn if the session already has an application
// transaction in flight.
func (s *Session) BeginSnapshot() error {
	if s.running {
		return ErrRunningTxn
	}
	s.txnID = atomic.AddUint64(&s.engine.nextTxnID, 1)
	s.isolation = Snapshot
	s.running = true
	// The new transaction's id becomes the oldest-visible floor as long as
	// it's the oldest active one; a single-session engine (as modeled
	// here) makes that unconditionally true.
	atomic.StoreUint64(&s.engine.oldestVisible, s.txnID)
	return nil
}

// Release ends the snapshot transaction, the final step of a checkpoint
// run on this session.
func (s *Session) Release() {
	s.running = false
	s.txnID = 0
}

// SetIsolation transiently changes isolation and returns the previous
// level so the caller can restore it once the step that needed the
// change is done.
func (s *Session) SetIsolation(level Isolation) Isolation {
	old := s.isolation
	s.isolation = level
	return old
}

// Isolation returns the session's current isolation level.
func (s *Session) Isolation() Isolation { return s.isolation }

// TxnID returns the session's current transaction id, or 0 if none is active.
func (s *Session) TxnID() uint64 { return s.txnID }
