package meta

import (
	"testing"

	"github.com/pagestore/pagestore/kv/memorydb"
)

func TestSetGetRoundTrip(t *testing.T) {
	store := memorydb.New()
	l := &List{TreeName: "users", Entries: []Entry{
		{Name: "ckpt_A", Flags: FlagAdd, Ref: []byte{1, 2, 3}},
	}}
	if err := Set(store, l); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := Get(store, "users")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Name != "ckpt_A" {
		t.Fatalf("unexpected round trip: %+v", got.Entries)
	}
}

func TestGetDeadTree(t *testing.T) {
	store := memorydb.New()
	_, err := Get(store, "never-existed")
	if err != ErrDeadTree {
		t.Fatalf("Get on unknown tree = %v, want ErrDeadTree", err)
	}
}

func TestSetAssignsGenerationalSuffixToInternalNames(t *testing.T) {
	store := memorydb.New()
	l := &List{TreeName: "t", Entries: []Entry{{Name: internalPrefix, Flags: FlagAdd}}}
	if err := Set(store, l); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := Get(store, "t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Entries[0].Name != internalPrefix+".1" {
		t.Fatalf("first internal entry name = %q, want %q", got.Entries[0].Name, internalPrefix+".1")
	}

	got.Entries = append(got.Entries, Entry{Name: internalPrefix, Flags: FlagAdd})
	if err := Set(store, got); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	final, err := Get(store, "t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Entries[1].Name != internalPrefix+".2" {
		t.Fatalf("second internal entry name = %q, want %q", final.Entries[1].Name, internalPrefix+".2")
	}
}

func TestAllTreeNames(t *testing.T) {
	store := memorydb.New()
	for _, name := range []string{"a", "b", "c"} {
		if err := Set(store, &List{TreeName: name}); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}
	names, err := AllTreeNames(store)
	if err != nil {
		t.Fatalf("AllTreeNames: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("AllTreeNames() = %v, want 3 entries", names)
	}
}
