/*
Package badgerdb implements a persistent KVStore on top of BadgerDB.
*/
package badgerdb

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
)

// Store is a KVStore persisted in a badger database. All operations are
// executed in their own badger transaction. Batches are written in a single
// transaction.
type Store struct {
	db *badger.DB
}

var _ store.KVStore = (*Store)(nil)

// Open opens or creates a database in given directory. When dir is empty the
// database is kept in memory only.
func Open(dir string, logger log.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger: logger.With("module", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open badger: %s", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "close badger: %s", err)
	}
	return nil
}

// Get returns nil iff key doesn't exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "get: %s", err)
	}
	return value, nil
}

// Has checks if a key exists.
func (s *Store) Has(key []byte) (bool, error) {
	var has bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch err {
		case nil:
			has = true
			return nil
		case badger.ErrKeyNotFound:
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, errors.Wrapf(errors.ErrDatabase, "has: %s", err)
	}
	return has, nil
}

// Set writes the value under given key.
func (s *Store) Set(key, value []byte) error {
	return s.write([]store.Op{store.SetOp(key, value)})
}

// Delete removes given key.
func (s *Store) Delete(key []byte) error {
	return s.write([]store.Op{store.DelOp(key)})
}

// NewBatch returns a batch that is written in a single transaction.
func (s *Store) NewBatch() store.Batch {
	return &batch{store: s}
}

func (s *Store) write(ops []store.Op) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		w := txnWriter{txn: txn}
		for _, op := range ops {
			if err := op.Apply(w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "write: %s", err)
	}
	return nil
}

// Iterator over a domain of keys in ascending order. End is exclusive.
func (s *Store) Iterator(start, end []byte) (store.Iterator, error) {
	return s.iterate(start, end, false)
}

// ReverseIterator over a domain of keys in descending order. End is
// exclusive.
func (s *Store) ReverseIterator(start, end []byte) (store.Iterator, error) {
	return s.iterate(start, end, true)
}

// iterate reads the whole range within a single read transaction, so the
// result is a consistent snapshot.
func (s *Store) iterate(start, end []byte, reverse bool) (store.Iterator, error) {
	var res []store.Model
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		if reverse {
			if end == nil {
				it.Rewind()
			} else {
				it.Seek(end)
			}
		} else {
			if start == nil {
				it.Rewind()
			} else {
				it.Seek(start)
			}
		}

		for ; it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if reverse {
				if end != nil && bytes.Compare(key, end) >= 0 {
					continue
				}
				if start != nil && bytes.Compare(key, start) < 0 {
					break
				}
			} else if end != nil && bytes.Compare(key, end) >= 0 {
				break
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, store.Pair(key, value))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "iterate: %s", err)
	}
	return store.NewSliceIterator(res), nil
}

type batch struct {
	store *Store
	ops   []store.Op
}

func (b *batch) Set(key, value []byte) error {
	b.ops = append(b.ops, store.SetOp(key, value))
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, store.DelOp(key))
	return nil
}

func (b *batch) Write() error {
	err := b.store.write(b.ops)
	b.ops = nil
	return err
}

// txnWriter adapts a badger transaction to the SetDeleter interface.
type txnWriter struct {
	txn *badger.Txn
}

func (w txnWriter) Set(key, value []byte) error {
	// Badger keeps the slices until the transaction commits.
	k := append([]byte(nil), key...)
	v := append([]byte{}, value...)
	return w.txn.Set(k, v)
}

func (w txnWriter) Delete(key []byte) error {
	return w.txn.Delete(append([]byte(nil), key...))
}

// badgerLogger forwards badger messages to a tendermint logger.
type badgerLogger struct {
	logger log.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), "level", "warning")
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
