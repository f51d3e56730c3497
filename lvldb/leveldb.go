// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package lvldb implements kv.Store on top of goleveldb.
package lvldb

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vechain/smartdb/kv"
)

var _ kv.StoreCloser = (*LevelDB)(nil)

var (
	writeOpt = opt.WriteOptions{}
	syncOpt  = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
	scanOpt  = opt.ReadOptions{DontFillCache: true}
)

// Options options for creating level db instance.
type Options struct {
	CacheSize              int  // in MiB
	OpenFilesCacheCapacity int
	ReadOnly               bool
	// SyncWrite makes bulk writes fsync before returning.
	SyncWrite bool
}

// LevelDB wraps a goleveldb instance.
type LevelDB struct {
	db        *leveldb.DB
	writeOpt  *opt.WriteOptions
	batchPool *sync.Pool
}

// New opens a persistent level db instance.
// Create an empty one if not exists, or open if already there.
func New(path string, opts Options) (*LevelDB, error) {
	stg, err := storage.OpenFile(path, opts.ReadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "new persistent level db")
	}
	return open(stg, opts)
}

// NewMem creates a level db in memory.
func NewMem() (*LevelDB, error) {
	return open(storage.NewMemStorage(), Options{})
}

func open(stg storage.Storage, opts Options) (*LevelDB, error) {
	cacheSize := opts.CacheSize
	if cacheSize < 16 {
		cacheSize = 16
	}
	openFiles := opts.OpenFilesCacheCapacity
	if openFiles < 16 {
		openFiles = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFiles,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
		ReadOnly:               opts.ReadOnly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	wo := &writeOpt
	if opts.SyncWrite {
		wo = &syncOpt
	}
	return &LevelDB{
		db:       db,
		writeOpt: wo,
		batchPool: &sync.Pool{
			New: func() interface{} {
				return &leveldb.Batch{}
			},
		},
	}, nil
}

// IsNotFound to check if the error returned by Get indicates key not found.
func (ldb *LevelDB) IsNotFound(err error) bool {
	return errors.Cause(err) == leveldb.ErrNotFound
}

// Get retrieves value for given key.
// It returns an error if key not found. The error can be checked via IsNotFound.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := ldb.db.Get(key, &readOpt)
	// val will be []byte{} if error occurs, which is not expected
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Has returns whether a key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, &readOpt)
}

// Put saves value for the given key.
func (ldb *LevelDB) Put(key, val []byte) error {
	return ldb.db.Put(key, val, ldb.writeOpt)
}

// Delete deletes the given key and its value.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, ldb.writeOpt)
}

// Close closes the level db. Later operations will all fail.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

// Snapshot returns a consistent read view.
func (ldb *LevelDB) Snapshot() kv.Snapshot {
	s, err := ldb.db.GetSnapshot()
	return &struct {
		kv.GetFunc
		kv.HasFunc
		kv.IsNotFoundFunc
		kv.ReleaseFunc
	}{
		func(key []byte) ([]byte, error) {
			if err != nil {
				return nil, err
			}
			val, err := s.Get(key, &readOpt)
			if err != nil {
				return nil, err
			}
			return val, nil
		},
		func(key []byte) (bool, error) {
			if err != nil {
				return false, err
			}
			return s.Has(key, &readOpt)
		},
		ldb.IsNotFound,
		func() {
			if s != nil {
				s.Release()
			}
		},
	}
}

// Bulk returns a write batch. Nothing is visible until Write is called,
// unless auto flush is enabled.
func (ldb *LevelDB) Bulk() kv.Bulk {
	const idealBatchSize = 128 * 1024
	var batch *leveldb.Batch

	getBatch := func() *leveldb.Batch {
		if batch == nil {
			batch = ldb.batchPool.Get().(*leveldb.Batch)
			batch.Reset()
		}
		return batch
	}
	flush := func(minSize int) error {
		if batch != nil && len(batch.Dump()) >= minSize {
			if batch.Len() > 0 {
				if err := ldb.db.Write(batch, ldb.writeOpt); err != nil {
					return err
				}
			}
			ldb.batchPool.Put(batch)
			batch = nil
		}
		return nil
	}
	var autoFlush bool

	return &struct {
		kv.PutFunc
		kv.DeleteFunc
		kv.EnableAutoFlushFunc
		kv.WriteFunc
	}{
		func(key, val []byte) error {
			getBatch().Put(key, val)
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func(key []byte) error {
			getBatch().Delete(key)
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func() { autoFlush = true },
		func() error { return flush(0) },
	}
}

// Iterate creates an iterator over the given range.
func (ldb *LevelDB) Iterate(r kv.Range) kv.Iterator {
	return ldb.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, &scanOpt)
}
