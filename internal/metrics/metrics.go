// Package metrics provides the minimal counter/meter registry the rest of
// pagestore calls into (NewRegisteredCounter, NewRegisteredMeter), matching
// the call shape of go-ethereum's metrics package without pulling in its
// exporters: pagestore has no metrics sink in scope (see SPEC_FULL.md).
package metrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing (or decreasing, via Dec) value.
type Counter struct {
	v int64
}

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.v, delta) }
func (c *Counter) Dec(delta int64) { atomic.AddInt64(&c.v, -delta) }
func (c *Counter) Count() int64    { return atomic.LoadInt64(&c.v) }

// Meter tracks an event count; unlike Counter it never decreases.
type Meter struct {
	v int64
}

func (m *Meter) Mark(n int64) { atomic.AddInt64(&m.v, n) }
func (m *Meter) Count() int64 { return atomic.LoadInt64(&m.v) }

type registry struct {
	mu       sync.Mutex
	counters map[string]*Counter
	meters   map[string]*Meter
}

var reg = &registry{
	counters: make(map[string]*Counter),
	meters:   make(map[string]*Meter),
}

// NewRegisteredCounter returns (creating if necessary) the named counter.
func NewRegisteredCounter(name string) *Counter {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if c, ok := reg.counters[name]; ok {
		return c
	}
	c := &Counter{}
	reg.counters[name] = c
	return c
}

// NewRegisteredMeter returns (creating if necessary) the named meter. The
// second argument matches go-ethereum's registry parameter and is unused
// here since pagestore keeps a single process-wide registry.
func NewRegisteredMeter(name string, _ interface{}) *Meter {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if m, ok := reg.meters[name]; ok {
		return m
	}
	m := &Meter{}
	reg.meters[name] = m
	return m
}

// Snapshot returns a point-in-time copy of every registered value, for
// diagnostics (e.g. a CLI "status" command).
func Snapshot() (counters map[string]int64, meters map[string]int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	counters = make(map[string]int64, len(reg.counters))
	for k, v := range reg.counters {
		counters[k] = v.Count()
	}
	meters = make(map[string]int64, len(reg.meters))
	for k, v := range reg.meters {
		meters[k] = v.Count()
	}
	return counters, meters
}
