package orm

import (
	"bytes"
	"encoding/binary"

	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
)

const idxPrefix = "_i."

// Indexer calculates the secondary index key for a given model. Returning
// nil excludes the model from the index.
type Indexer func(Model) ([]byte, error)

// Orderer calculates the sort key of a model within a single index value.
// Use a fixed width big endian encoding for numbers.
type Orderer func(Model) []byte

// Index represents a secondary index on some data. Each indexed entity is
// stored as a separate entry, so there is no limit on the number of entities
// sharing the same index value.
//
// Entry key layout is
//
//   _i.<name>: | uvarint(len(value)) | value | order | primary key
//
// and the entry value is the primary key.
type Index struct {
	name  string
	id    []byte
	index Indexer
	order Orderer
}

// NewIndex constructs an index. order may be nil, in which case entries are
// ordered by the primary key.
func NewIndex(name string, indexer Indexer, order Orderer) Index {
	return Index{
		name:  name,
		id:    append([]byte(idxPrefix), []byte(name+":")...),
		index: indexer,
		order: order,
	}
}

// Name returns the name of this index.
func (i Index) Name() string {
	return i.name
}

// valuePrefix returns the key prefix shared by all entries of given value.
func (i Index) valuePrefix(value []byte) []byte {
	var lenbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenbuf[:], uint64(len(value)))

	out := make([]byte, 0, len(i.id)+n+len(value))
	out = append(out, i.id...)
	out = append(out, lenbuf[:n]...)
	return append(out, value...)
}

func (i Index) entryKey(m Model, pk []byte) ([]byte, error) {
	value, err := i.index(m)
	if err != nil || value == nil {
		return nil, err
	}
	key := i.valuePrefix(value)
	if i.order != nil {
		key = append(key, i.order(m)...)
	}
	return append(key, pk...), nil
}

// Update handles updating the reference to the entity in the secondary
// index.
//
// prev == nil means insert
// save == nil means delete
// both == nil is error
func (i Index) Update(db store.SetDeleter, pk []byte, prev, save Model) error {
	if prev == nil && save == nil {
		return errors.Wrap(errors.ErrHuman, "update requires at least one model")
	}

	var prevKey, saveKey []byte
	var err error
	if prev != nil {
		if prevKey, err = i.entryKey(prev, pk); err != nil {
			return err
		}
	}
	if save != nil {
		if saveKey, err = i.entryKey(save, pk); err != nil {
			return err
		}
	}

	if bytes.Equal(prevKey, saveKey) {
		return nil
	}
	if prevKey != nil {
		if err := db.Delete(prevKey); err != nil {
			return err
		}
	}
	if saveKey != nil {
		if err := db.Set(saveKey, pk); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns primary keys of all entities indexed under given value.
func (i Index) Keys(db store.ReadOnlyKVStore, value []byte, reverse bool) ([][]byte, error) {
	start := i.valuePrefix(value)
	end := prefixEnd(start)

	var it store.Iterator
	var err error
	if reverse {
		it, err = db.ReverseIterator(start, end)
	} else {
		it, err = db.Iterator(start, end)
	}
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var keys [][]byte
	for {
		_, pk, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, pk)
	}
}

// prefixEnd returns the smallest key that is greater than all keys with
// given prefix, or nil if there is no such key.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
