package store

import (
	"github.com/rafamiziara/superpool-sub007/errors"
)

// SliceIterator iterates over models that were already loaded into memory.
// Backends that cannot keep a read transaction open for the lifetime of an
// iterator collect the range first.
type SliceIterator struct {
	data []Model
}

var _ Iterator = (*SliceIterator)(nil)

func NewSliceIterator(data []Model) *SliceIterator {
	return &SliceIterator{data: data}
}

// Next returns the next key-value pair or ErrIteratorDone.
func (s *SliceIterator) Next() (key, value []byte, err error) {
	if len(s.data) == 0 {
		return nil, nil, errors.Wrap(errors.ErrIteratorDone, "slice iterator")
	}
	m := s.data[0]
	s.data = s.data[1:]
	return m.Key, m.Value, nil
}

func (s *SliceIterator) Release() {
	s.data = nil
}

// Op is a single write queued in a batch.
type Op struct {
	key   []byte
	value []byte
	del   bool
}

func SetOp(key, value []byte) Op { return Op{key: key, value: value} }

func DelOp(key []byte) Op { return Op{key: key, del: true} }

// Apply performs the operation on given store.
func (o Op) Apply(out SetDeleter) error {
	if o.del {
		return out.Delete(o.key)
	}
	return out.Set(o.key, o.value)
}

// NonAtomicBatch queues writes and applies them one by one on Write. Use it
// only for stores whose writes cannot fail halfway, like the iavl working
// tree.
type NonAtomicBatch struct {
	out SetDeleter
	ops []Op
}

var _ Batch = (*NonAtomicBatch)(nil)

func NewNonAtomicBatch(out SetDeleter) *NonAtomicBatch {
	return &NonAtomicBatch{out: out}
}

func (b *NonAtomicBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, SetOp(key, value))
	return nil
}

func (b *NonAtomicBatch) Delete(key []byte) error {
	b.ops = append(b.ops, DelOp(key))
	return nil
}

// Write applies all queued operations in order and empties the batch.
func (b *NonAtomicBatch) Write() error {
	ops := b.ops
	b.ops = nil
	for i, op := range ops {
		if err := op.Apply(b.out); err != nil {
			return errors.Wrapf(err, "operation %d of %d", i+1, len(ops))
		}
	}
	return nil
}

// Len returns the number of queued operations.
func (b *NonAtomicBatch) Len() int {
	return len(b.ops)
}
