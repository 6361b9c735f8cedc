// Package memorydb implements an in-memory kv.Store, used by tests.
package memorydb

import (
	"sort"
	"sync"

	"github.com/pagestore/pagestore/kv"
)

type Database struct {
	mu sync.RWMutex
	db map[string][]byte
}

func New() *Database {
	return &Database{db: make(map[string][]byte)}
}

func (d *Database) Has(key []byte) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.db[string(key)]
	return ok, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.db[string(key)]
	if !ok {
		return nil, kv.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (d *Database) Put(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	d.db[string(key)] = cp
	return nil
}

func (d *Database) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.db, string(key))
	return nil
}

func (d *Database) Close() error { return nil }

func (d *Database) NewBatch() kv.Batch {
	return &batch{db: d}
}

func (d *Database) NewIteratorWithPrefix(prefix []byte) kv.Iterator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.db))
	for k := range d.db {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = d.db[k]
	}
	return &iterator{keys: keys, vals: vals, idx: -1}
}

type keyValue struct {
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db   *Database
	ops  []keyValue
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.ops = append(b.ops, keyValue{key: append([]byte{}, key...), value: append([]byte{}, value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, keyValue{key: append([]byte{}, key...), delete: true})
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.db, string(op.key))
			continue
		}
		b.db.db[string(op.key)] = op.value
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

type iterator struct {
	keys []string
	vals [][]byte
	idx  int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *iterator) Key() []byte   { return []byte(it.keys[it.idx]) }
func (it *iterator) Value() []byte { return it.vals[it.idx] }
func (it *iterator) Release()      {}
