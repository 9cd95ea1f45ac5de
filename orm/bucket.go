/*
Package orm provides an easy to use db wrapper

Break state space into prefixed sections called Buckets.
* Each bucket contains only one type of model.
* It has a primary key and may possess secondary indexes (1:N).
* Secondary index entries are ordered, so listing by index can return
  newest entries first without loading the whole bucket.
* Every write of a model and all of its index entries is done in a single
  batch.
*/
package orm

import (
	"fmt"
	"regexp"

	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
)

var (
	isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString
)

// Bucket is a prefixed subspace of the DB that holds models of a single
// type, together with their secondary indexes.
type Bucket struct {
	name    string
	prefix  []byte
	proto   func() Model
	indexes []Index
}

// NewBucket creates a bucket to store data. proto must return a new, empty
// instance of the stored model.
func NewBucket(name string, proto func() Model) Bucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("Illegal bucket: %s", name))
	}

	return Bucket{
		name:   name,
		prefix: append([]byte(name), ':'),
		proto:  proto,
	}
}

// WithIndex returns a copy of this bucket with an index added. Entries that
// share the same index value are ordered by the result of order, which may
// be nil.
func (b Bucket) WithIndex(name string, indexer Indexer, order Orderer) Bucket {
	for _, idx := range b.indexes {
		if idx.name == b.name+"_"+name {
			panic(fmt.Sprintf("Index %s registered twice", name))
		}
	}
	indexes := make([]Index, len(b.indexes), len(b.indexes)+1)
	copy(indexes, b.indexes)
	b.indexes = append(indexes, NewIndex(b.name+"_"+name, indexer, order))
	return b
}

// DBKey is the full key we store in the db, including prefix
// We copy into a new array rather than use append, as we don't
// want consequetive calls to overwrite the same byte array.
func (b Bucket) DBKey(key []byte) []byte {
	l := len(b.prefix)
	out := make([]byte, l+len(key))
	copy(out, b.prefix)
	copy(out[l:], key)
	return out
}

// One loads the model stored under given key into dest. It returns
// ErrNotFound if there is no such entity.
func (b Bucket) One(db store.ReadOnlyKVStore, key []byte, dest Model) error {
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return err
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%T not in the store", dest)
	}
	if err := dest.Unmarshal(raw); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "cannot unmarshal %T: %s", dest, err)
	}
	return nil
}

// Has returns nil if an entity with given key exists, ErrNotFound otherwise.
func (b Bucket) Has(db store.ReadOnlyKVStore, key []byte) error {
	ok, err := db.Has(b.DBKey(key))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "%s key", b.name)
	}
	return nil
}

// Create saves a new model. It fails with ErrAlreadyExists if the key is
// taken. Callers must serialize Create and Put on the same key themselves.
func (b Bucket) Create(db store.KVStore, key []byte, m Model) error {
	switch err := b.Has(db, key); {
	case err == nil:
		return errors.Wrapf(errors.ErrAlreadyExists, "%s key", b.name)
	case !errors.ErrNotFound.Is(err):
		return err
	}
	return b.save(db, key, nil, m)
}

// Put saves given model, overwriting any previous value.
func (b Bucket) Put(db store.KVStore, key []byte, m Model) error {
	var prev Model
	if len(b.indexes) > 0 {
		prev = b.proto()
		if err := b.One(db, key, prev); err != nil {
			if !errors.ErrNotFound.Is(err) {
				return err
			}
			prev = nil
		}
	}
	return b.save(db, key, prev, m)
}

func (b Bucket) save(db store.KVStore, key []byte, prev, m Model) error {
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	raw, err := m.Marshal()
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "cannot marshal %T: %s", m, err)
	}

	batch := db.NewBatch()
	for _, idx := range b.indexes {
		if err := idx.Update(batch, key, prev, m); err != nil {
			return errors.Wrapf(err, "index %s", idx.name)
		}
	}
	if err := batch.Set(b.DBKey(key), raw); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "cannot store in the database")
	}
	return nil
}

// ByIndex returns primary keys of all entities indexed under given value,
// ordered by the index order.
func (b Bucket) ByIndex(db store.ReadOnlyKVStore, indexName string, value []byte, reverse bool) ([][]byte, error) {
	idx, err := b.index(indexName)
	if err != nil {
		return nil, err
	}
	return idx.Keys(db, value, reverse)
}

func (b Bucket) index(name string) (Index, error) {
	for _, idx := range b.indexes {
		if idx.name == b.name+"_"+name {
			return idx, nil
		}
	}
	return Index{}, errors.Wrapf(ErrInvalidIndex, "%s has no %q index", b.name, name)
}
