// Package blockmgr is the free-list collaborator: it tracks which page
// ranges have been vacated by deleted checkpoints and are available for
// reuse. The superblock is a small, fixed-size, memory-mapped table,
// since it's read and rewritten on every resolve.
package blockmgr

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Range is a contiguous run of free pages, [Start, Start+Count).
type Range struct {
	Start uint64
	Count uint64
}

const (
	rangeRecordSize = 16 // two uint64s
	maxRanges       = 4096
	superblockSize  = maxRanges * rangeRecordSize
)

// Manager owns the on-disk superblock recording the engine's free-page
// ranges, shared across every tree rather than kept per-tree.
type Manager struct {
	mu     sync.Mutex
	file   *os.File
	mapped mmap.MMap
	ranges []Range
}

// Open opens or creates the superblock file at path and loads its ranges.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < superblockSize {
		if err := f.Truncate(superblockSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	mgr := &Manager{file: f, mapped: m}
	mgr.loadLocked()
	return mgr, nil
}

func (m *Manager) loadLocked() {
	m.ranges = m.ranges[:0]
	for off := 0; off+rangeRecordSize <= len(m.mapped); off += rangeRecordSize {
		start := binary.BigEndian.Uint64(m.mapped[off : off+8])
		count := binary.BigEndian.Uint64(m.mapped[off+8 : off+16])
		if count == 0 {
			continue
		}
		m.ranges = append(m.ranges, Range{Start: start, Count: count})
	}
}

func (m *Manager) persistLocked() error {
	if len(m.ranges) > maxRanges {
		return fmt.Errorf("blockmgr: free-list overflow: %d ranges exceeds capacity %d", len(m.ranges), maxRanges)
	}
	for i := range m.mapped {
		m.mapped[i] = 0
	}
	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].Start < m.ranges[j].Start })
	for i, r := range m.ranges {
		off := i * rangeRecordSize
		binary.BigEndian.PutUint64(m.mapped[off:off+8], r.Start)
		binary.BigEndian.PutUint64(m.mapped[off+8:off+16], r.Count)
	}
	return m.mapped.Flush()
}

// Resolve merges freed into the free list, coalescing adjacent ranges,
// making the space previously held by deleted snapshots available for
// allocation.
func (m *Manager) Resolve(freed []Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ranges = append(m.ranges, freed...)
	m.ranges = coalesce(m.ranges)
	return m.persistLocked()
}

func coalesce(ranges []Range) []Range {
	if len(ranges) < 2 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if last.Start+last.Count == r.Start {
			last.Count += r.Count
			continue
		}
		out = append(out, r)
	}
	return out
}

// Ranges returns a snapshot of the current free list, for diagnostics and
// tests.
func (m *Manager) Ranges() []Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Range, len(m.ranges))
	copy(out, m.ranges)
	return out
}

// Close unmaps and closes the superblock file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mapped.Unmap(); err != nil {
		return err
	}
	return m.file.Close()
}
