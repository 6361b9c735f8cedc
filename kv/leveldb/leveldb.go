// Package leveldb is the default on-disk kv.Store, backed directly by
// github.com/syndtr/goleveldb, exactly the driver go-ethereum's own
// ethdb/leveldb package wraps.
package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/pagestore/pagestore/kv"
)

// Database wraps a goleveldb handle to satisfy kv.Store.
type Database struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb database rooted at dir.
func Open(dir string, cacheMB, handles int) (*Database, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		WriteBuffer:            cacheMB / 4 * opt.MiB,
		Filter:                 nil,
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

func (d *Database) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, kv.ErrNotFound
	}
	return v, err
}

func (d *Database) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) NewBatch() kv.Batch {
	return &batch{db: d.db, b: new(leveldb.Batch)}
}

func (d *Database) NewIteratorWithPrefix(prefix []byte) kv.Iterator {
	return &iterator{iter: d.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

type iterator struct {
	iter interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
	}
}

func (it *iterator) Next() bool    { return it.iter.Next() }
func (it *iterator) Key() []byte   { return it.iter.Key() }
func (it *iterator) Value() []byte { return it.iter.Value() }
func (it *iterator) Release()      { it.iter.Release() }
