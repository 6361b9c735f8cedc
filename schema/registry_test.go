package schema

import (
	"context"
	"testing"

	"github.com/pagestore/pagestore/kv/memorydb"
	"github.com/pagestore/pagestore/tree"
)

func TestRegistryOpenLookupClose(t *testing.T) {
	r := New()
	store := memorydb.New()
	t1 := tree.New("a", tree.Regular, store)
	r.Open(t1)

	if got := r.Lookup("a"); got != t1 {
		t.Fatalf("Lookup(a) = %v, want %v", got, t1)
	}
	if got := r.Lookup("missing"); got != nil {
		t.Fatalf("Lookup(missing) = %v, want nil", got)
	}

	r.Close("a")
	if got := r.Lookup("a"); got != nil {
		t.Fatalf("Lookup(a) after Close = %v, want nil", got)
	}
}

func TestRegistryOpenNamesSorted(t *testing.T) {
	r := New()
	store := memorydb.New()
	for _, name := range []string{"zebra", "alpha", "mid"} {
		r.Open(tree.New(name, tree.Regular, store))
	}
	got := r.OpenNames()
	want := []string{"alpha", "mid", "zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OpenNames() = %v, want %v", got, want)
		}
	}
}

func TestParseTarget(t *testing.T) {
	name, err := ParseTarget("users=")
	if err != nil || name != "users" {
		t.Fatalf("ParseTarget(users=) = (%q, %v)", name, err)
	}
	if _, err := ParseTarget("users=nonempty"); err == nil {
		t.Fatalf("ParseTarget with non-empty value should fail")
	}
	name, err = ParseTarget("bare")
	if err != nil || name != "bare" {
		t.Fatalf("ParseTarget(bare) = (%q, %v)", name, err)
	}
}

func TestWalkStopsOnFirstError(t *testing.T) {
	r := New()
	store := memorydb.New()
	r.Open(tree.New("a", tree.Regular, store))
	r.Open(tree.New("b", tree.Regular, store))

	var seen []string
	err := r.Walk(context.Background(), []string{"a", "missing", "b"}, func(_ context.Context, name string) error {
		if r.Lookup(name) == nil {
			return errNotOpen(name)
		}
		seen = append(seen, name)
		return nil
	})
	if err == nil {
		t.Fatalf("Walk with an unknown name should fail")
	}
	if len(seen) != 1 || seen[0] != "a" {
		t.Fatalf("Walk visited %v, want only [a] before the failing name", seen)
	}
}

type errNotOpen string

func (e errNotOpen) Error() string { return string(e) + ": not open" }
