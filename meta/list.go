// Package meta implements the persistent metadata table: per-tree
// checkpoint (snapshot) lists, keyed by tree name, with the {name, flags}
// fields the checkpoint pipeline manipulates and an opaque reference
// payload it never inspects.
package meta

import "errors"

// Flag marks the lifecycle state of a single checkpoint entry.
type Flag uint8

const (
	// FlagAdd marks an entry as the new checkpoint being created by this
	// call. At most one entry in a List carries FlagAdd.
	FlagAdd Flag = 1 << iota
	// FlagDelete marks an entry slated for retirement.
	FlagDelete
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Entry is one named checkpoint on a tree's persisted list. Order (not
// name) is the list's only guaranteed identity signal: names may repeat
// in legacy lists.
type Entry struct {
	Name  string
	Flags Flag
	// Ref is the opaque on-disk reference data (root address, size,
	// write-generation, timestamps) owned by the collaborator that
	// serializes it (the tree package, in this repo). This package carries
	// it through verbatim; the checkpoint pipeline decodes it only through
	// tree.DecodeRef, to find the pages a deleted entry frees.
	Ref []byte
}

// ErrDeadTree is returned by Get when the tree has no metadata entry at
// all — the "tree was dropped" case.
var ErrDeadTree = errors.New("meta: tree not present in metadata")

// List is the in-memory mutable view of one tree's checkpoint list, loaded
// by the checkpoint pipeline, mutated in place by drop planning and the
// "add new" step, and either serialized back out on success or discarded
// on failure.
//
// Entries is persistence order: oldest first. A freshly Add()ed entry is
// always the final element — the slot reserved for the checkpoint this
// run is creating.
type List struct {
	TreeName string
	Entries  []Entry
}

// Add appends a new entry flagged FlagAdd and returns a pointer to it so
// the caller can still observe/mutate it (e.g. same-name retirement runs
// before Add in the real pipeline, so no special-casing is needed here).
func (l *List) Add(name string) *Entry {
	l.Entries = append(l.Entries, Entry{Name: name, Flags: FlagAdd})
	return &l.Entries[len(l.Entries)-1]
}

// ForEach calls fn for every entry in persistence order. fn may mutate the
// entry's Flags in place (DropPlanner does exactly this).
func (l *List) ForEach(fn func(e *Entry)) {
	for i := range l.Entries {
		fn(&l.Entries[i])
	}
}

// CountDeleted returns how many entries currently carry FlagDelete.
func (l *List) CountDeleted() int {
	n := 0
	for _, e := range l.Entries {
		if e.Flags.Has(FlagDelete) {
			n++
		}
	}
	return n
}

// Last returns a pointer to the final entry, or nil if the list is empty.
func (l *List) Last() *Entry {
	if len(l.Entries) == 0 {
		return nil
	}
	return &l.Entries[len(l.Entries)-1]
}

// Clone makes a deep copy, used by tests that want to assert on the
// pre-mutation shape of a list.
func (l *List) Clone() *List {
	out := &List{TreeName: l.TreeName, Entries: make([]Entry, len(l.Entries))}
	for i, e := range l.Entries {
		ref := make([]byte, len(e.Ref))
		copy(ref, e.Ref)
		out.Entries[i] = Entry{Name: e.Name, Flags: e.Flags, Ref: ref}
	}
	return out
}
