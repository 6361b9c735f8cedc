// Package schema implements the tree registry and target walker a
// database checkpoint drives: a name-indexed table of open handles, plus
// enumeration of every name a checkpoint run should touch.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pagestore/pagestore/tree"
)

// Registry is the process's table of open tree handles, keyed by name.
// Database.Checkpoint consults it to resolve "target" names and to
// enumerate currently-open trees.
type Registry struct {
	mu    sync.RWMutex
	trees map[string]*tree.Tree
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{trees: make(map[string]*tree.Tree)}
}

// Open registers t under its own name. Re-registering a name replaces the
// previous handle — callers are expected to have already closed it.
func (r *Registry) Open(t *tree.Tree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees[t.Name] = t
}

// Close removes name from the registry. It does not flush or otherwise
// touch the handle; callers run the close-mode pipeline first.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trees, name)
}

// Lookup returns the open handle for name, or nil if it isn't open.
func (r *Registry) Lookup(name string) *tree.Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trees[name]
}

// OpenNames returns every currently-open tree's name, sorted for
// deterministic iteration order (tests rely on this).
func (r *Registry) OpenNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.trees))
	for name := range r.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTarget splits a raw "name=value" target directive: the value must
// be empty, since names containing "=" need quoting the configuration
// grammar doesn't otherwise support.
func ParseTarget(raw string) (string, error) {
	if i := strings.IndexByte(raw, '='); i >= 0 {
		if raw[i+1:] != "" {
			return "", fmt.Errorf("schema: target %q: non-empty value not permitted", raw)
		}
		return raw[:i], nil
	}
	return raw, nil
}

// Walk applies action to each of names in order. Checkpoint runs are
// single-threaded by nature (the tree pipeline shares one session per
// call, which isn't safe for concurrent use), so this is a plain
// sequential loop rather than a fan-out: ctx is checked between trees so
// a caller that cancels mid-run stops promptly instead of finishing every
// remaining tree first. action resolves name itself (via Lookup, falling
// back to a transient handle for a tree known to metadata but not
// currently open) — Walk has no opinion on that policy.
func (r *Registry) Walk(ctx context.Context, names []string, action func(context.Context, string) error) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := action(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
