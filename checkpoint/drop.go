package checkpoint

import "github.com/pagestore/pagestore/meta"

// DropDirective is the sum type {Named, From, To}: one entry from the
// "drop" configuration list.
type DropDirective struct {
	Kind DropKind
	Name string
}

// DropKind discriminates a DropDirective's variant.
type DropKind int

const (
	// DropNamed marks every entry whose name equals Name (or, if Name is
	// the reserved prefix, every entry whose name begins with it).
	DropNamed DropKind = iota
	// DropFrom marks from the first match through the end of the list,
	// or every entry if Name == "all".
	DropFrom
	// DropTo marks from the start of the list through the last match.
	DropTo
)

// Named, From and To are constructors for the common case of building a
// directive list by hand (tests, the CLI's flag parser).
func Named(name string) DropDirective { return DropDirective{Kind: DropNamed, Name: name} }
func From(name string) DropDirective  { return DropDirective{Kind: DropFrom, Name: name} }
func To(name string) DropDirective    { return DropDirective{Kind: DropTo, Name: name} }

// planDrops applies each directive to l in order, setting FlagDelete.
// Directives only set the flag; they never remove entries outright.
//
// ValidateName is applied to every directive operand before dispatch —
// applications must not target the reserved prefix via a drop directive,
// and this is enforced here rather than trusted of the caller.
func planDrops(l *meta.List, directives []DropDirective) error {
	for _, d := range directives {
		if err := ValidateName(d.Name); err != nil {
			return err
		}
		switch d.Kind {
		case DropNamed:
			dropNamed(l, d.Name)
		case DropFrom:
			dropFrom(l, d.Name)
		case DropTo:
			dropTo(l, d.Name)
		default:
			return invalidArgf("unknown drop directive kind %d", d.Kind)
		}
	}
	return nil
}

// dropNamed marks every entry whose name equals name, with the
// reserved-prefix special case that matches by prefix instead of exact
// equality.
func dropNamed(l *meta.List, name string) {
	if name == ReservedPrefix {
		l.ForEach(func(e *meta.Entry) {
			if len(e.Name) >= len(ReservedPrefix) && e.Name[:len(ReservedPrefix)] == ReservedPrefix {
				e.Flags |= meta.FlagDelete
			}
		})
		return
	}
	l.ForEach(func(e *meta.Entry) {
		if e.Name == name {
			e.Flags |= meta.FlagDelete
		}
	})
}

// dropFrom marks from the first matching entry through the end of the
// list, or everything if name == "all". Uses the *first* match when
// duplicate names exist.
func dropFrom(l *meta.List, name string) {
	if name == "all" {
		l.ForEach(func(e *meta.Entry) { e.Flags |= meta.FlagDelete })
		return
	}
	matched := false
	l.ForEach(func(e *meta.Entry) {
		if !matched && e.Name != name {
			return
		}
		matched = true
		e.Flags |= meta.FlagDelete
	})
}

// dropTo marks from the start of the list through the *last* matching
// entry. No-op if there's no match. Uses the *last* match when duplicate
// names exist, deliberately asymmetric with dropFrom's first match.
func dropTo(l *meta.List, name string) {
	markThrough := -1
	for i, e := range l.Entries {
		if e.Name == name {
			markThrough = i
		}
	}
	if markThrough == -1 {
		return
	}
	for i := 0; i <= markThrough; i++ {
		l.Entries[i].Flags |= meta.FlagDelete
	}
}
