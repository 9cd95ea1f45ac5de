package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const (
	// DefaultFreeListSize is the size we hold for free node in btree
	DefaultFreeListSize = btree.DefaultFreeListSize

	degree = 32
)

// MemStore is an ordered in-memory key-value store. It is safe for
// concurrent use. There is no persistence here.
//
// Iterators return a snapshot taken at creation time, so writing while
// iterating is allowed.
type MemStore struct {
	mu sync.RWMutex
	bt *btree.BTree
}

var _ KVStore = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	free := btree.NewFreeList(DefaultFreeListSize)
	return &MemStore{bt: btree.NewWithFreeList(degree, free)}
}

// Get returns nil iff key doesn't exist.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := m.bt.Get(bkey{key})
	if res == nil {
		return nil, nil
	}
	return copyBytes(res.(setItem).value), nil
}

// Has checks if a key exists.
func (m *MemStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bt.Has(bkey{key}), nil
}

// Set writes a copy of the value under given key.
func (m *MemStore) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value)
	return nil
}

func (m *MemStore) set(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	m.bt.ReplaceOrInsert(newSetItem(copyBytes(key), copyBytes(value)))
}

// Delete removes given key. Deleting a missing key is not an error.
func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.Delete(bkey{key})
	return nil
}

// NewBatch returns a batch whose operations are all applied under a single
// write lock.
func (m *MemStore) NewBatch() Batch {
	return &memBatch{store: m}
}

// Iterator over a domain of keys in ascending order. End is exclusive.
func (m *MemStore) Iterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(m.collect(start, end)), nil
}

// ReverseIterator over a domain of keys in descending order. End is
// exclusive.
func (m *MemStore) ReverseIterator(start, end []byte) (Iterator, error) {
	res := m.collect(start, end)
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return NewSliceIterator(res), nil
}

func (m *MemStore) collect(start, end []byte) []Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []Model
	add := func(item btree.Item) bool {
		it := item.(setItem)
		res = append(res, Model{Key: copyBytes(it.key), Value: copyBytes(it.value)})
		return true
	}

	if start == nil && end == nil {
		m.bt.Ascend(add)
	} else if start == nil { // end != nil
		m.bt.AscendLessThan(bkey{end}, add)
	} else if end == nil { // start != nil
		m.bt.AscendGreaterOrEqual(bkey{start}, add)
	} else { // both != nil
		m.bt.AscendRange(bkey{start}, bkey{end}, add)
	}
	return res
}

type memBatch struct {
	store *MemStore
	ops   []Op
}

func (b *memBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, SetOp(copyBytes(key), copyBytes(value)))
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, DelOp(copyBytes(key)))
	return nil
}

func (b *memBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, op := range b.ops {
		switch op.del {
		case false:
			b.store.set(op.key, op.value)
		case true:
			b.store.bt.Delete(bkey{op.key})
		}
	}
	b.ops = nil
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

/////////////////////////////////////////////////////////
// Items to write to btree

// we enforce all data in our btree implements keyer so we
// can compare nicely
type keyer interface {
	Key() []byte
}

// bkey implements keyer and btree.Item
// and may be used for queries or embedded in data to store
type bkey struct {
	key []byte
}

var _ keyer = bkey{}
var _ btree.Item = bkey{}

func (k bkey) Key() []byte {
	return k.key
}

// Less returns true iff second argument is greater than first
//
// panics if the item to compare doesn't implement keyer.
func (k bkey) Less(item btree.Item) bool {
	cmp := item.(keyer).Key()
	return bytes.Compare(k.key, cmp) < 0
}

type setItem struct {
	bkey
	value []byte
}

func newSetItem(key, value []byte) setItem {
	return setItem{bkey{key}, value}
}
