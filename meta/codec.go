package meta

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/pagestore/pagestore/kv"
)

// internalPrefix mirrors checkpoint.ReservedPrefix. It's duplicated here
// rather than imported because checkpoint already imports meta; the
// literal is a fixed protocol constant, not a design choice, so the
// duplication costs nothing in practice.
const internalPrefix = "WiredTigerCheckpoint"

// record is the on-disk shape of a List. It's kept distinct from List so
// the wire format doesn't have to track every in-memory convenience field
// forever.
type record struct {
	Entries []Entry
}

func encode(l *List) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record{Entries: l.Entries}); err != nil {
		return nil, fmt.Errorf("meta: encode %s: %w", l.TreeName, err)
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func decode(treeName string, blob []byte) (*List, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("meta: corrupt record for %s: %w", treeName, err)
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("meta: decode %s: %w", treeName, err)
	}
	return &List{TreeName: treeName, Entries: rec.Entries}, nil
}

// tableKey namespaces checkpoint-list records within the shared metadata
// kv.Store, the same way go-ethereum's rawdb prefixes every table's keys
// within one physical leveldb.
func tableKey(treeName string) []byte {
	return append([]byte("ckptlist-"), []byte(treeName)...)
}

// Get loads tree's checkpoint list from the metadata store. It returns
// ErrDeadTree if tree has no metadata row.
func Get(store kv.Store, treeName string) (*List, error) {
	blob, err := store.Get(tableKey(treeName))
	if err == kv.ErrNotFound {
		return nil, ErrDeadTree
	}
	if err != nil {
		return nil, err
	}
	return decode(treeName, blob)
}

// Set persists l's entries that survive this run — every entry not
// flagged FlagDelete — under its tree's metadata row, replacing whatever
// was there. The caller is expected to have already lowered isolation to
// read-uncommitted before calling Set; this package has no opinion on
// isolation, it only writes bytes. A DELETE-flagged entry is dropped from
// the persisted list entirely rather than retained with the flag set;
// FlagAdd is cleared on
// the entry that carried it, since once persisted it's an ordinary
// committed entry for any future run. l itself is left untouched (aside
// from the internal name assignment below) so the caller can still
// inspect DELETE-flagged entries afterward, e.g. to resolve their freed
// ranges.
func Set(store kv.Store, l *List) error {
	assignInternalNames(l)

	kept := &List{TreeName: l.TreeName}
	for _, e := range l.Entries {
		if e.Flags.Has(FlagDelete) {
			continue
		}
		e.Flags &^= FlagAdd
		kept.Entries = append(kept.Entries, e)
	}

	blob, err := encode(kept)
	if err != nil {
		return err
	}
	return store.Put(tableKey(l.TreeName), blob)
}

// assignInternalNames gives every entry still carrying the bare reserved
// prefix (the orchestrator's placeholder for "use the default internal
// name") a generational suffix before it hits disk, so the reserved
// prefix can appear any number of times in a persisted list, each
// instance distinguished by its suffix. The orchestrator itself only
// ever compares against the bare prefix; assigning the actual generation
// number is this package's job, done here at the point of serialization.
func assignInternalNames(l *List) {
	next := 0
	for _, e := range l.Entries {
		if n, ok := internalSuffix(e.Name); ok && n > next {
			next = n
		}
	}
	l.ForEach(func(e *Entry) {
		if e.Name == internalPrefix {
			next++
			e.Name = fmt.Sprintf("%s.%d", internalPrefix, next)
		}
	})
}

// internalSuffix parses the generation number out of a previously
// suffixed internal name, e.g. "WiredTigerCheckpoint.3" -> (3, true).
func internalSuffix(name string) (int, bool) {
	rest := strings.TrimPrefix(name, internalPrefix+".")
	if rest == name {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AllTreeNames enumerates every tree with a metadata row, used by the
// database-wide checkpoint driver when it must checkpoint closed trees too.
func AllTreeNames(store kv.Store) ([]string, error) {
	prefix := []byte("ckptlist-")
	it := store.NewIteratorWithPrefix(prefix)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(it.Key()[len(prefix):]))
	}
	return names, nil
}
