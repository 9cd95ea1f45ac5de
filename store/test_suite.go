package store

import (
	"bytes"
	"crypto/rand"
	"sort"
	"testing"

	"github.com/rafamiziara/superpool-sub007/custodytest/assert"
	"github.com/rafamiziara/superpool-sub007/errors"
)

/**
TestSuite provides many methods that can be called in package-specific test code.
We just customize the store being tested (pass in constructor), the rest of the
logic is generic to the KVStore interface.

This is intended in particular to remove duplication between btree_test.go,
iavl and badgerdb tests, but can be used for any implementation of KVStore.
*/
type TestSuite struct {
	makeBase TestStoreConstructor
}

type TestStoreConstructor func() (base KVStore, cleanup func())

func NewTestSuite(constructor TestStoreConstructor) *TestSuite {
	return &TestSuite{
		makeBase: constructor,
	}
}

// GetSet does basic sanity checks on a store.
func (s *TestSuite) GetSet(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	k, v := []byte("french"), []byte("fry")
	s.AssertGetHas(t, base, k, nil, false)
	assert.Nil(t, base.Set(k, v))
	s.AssertGetHas(t, base, k, v, true)

	// overwrite
	v2 := []byte("toast")
	assert.Nil(t, base.Set(k, v2))
	s.AssertGetHas(t, base, k, v2, true)

	// mutating the input after write must not change the stored value
	v2[0] = 'X'
	s.AssertGetHas(t, base, k, []byte("toast"), true)

	assert.Nil(t, base.Delete(k))
	s.AssertGetHas(t, base, k, nil, false)

	// deleting a missing key is fine
	assert.Nil(t, base.Delete([]byte("missing")))
}

// Batch checks that batched writes are visible only after Write.
func (s *TestSuite) Batch(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	ks := randKeys(3, 12)
	vs := randKeys(3, 20)
	assert.Nil(t, base.Set(ks[0], vs[0]))

	b := base.NewBatch()
	assert.Nil(t, b.Set(ks[1], vs[1]))
	assert.Nil(t, b.Set(ks[2], vs[2]))
	assert.Nil(t, b.Delete(ks[0]))

	s.AssertGetHas(t, base, ks[0], vs[0], true)
	s.AssertGetHas(t, base, ks[1], nil, false)

	assert.Nil(t, b.Write())

	s.AssertGetHas(t, base, ks[0], nil, false)
	s.AssertGetHas(t, base, ks[1], vs[1], true)
	s.AssertGetHas(t, base, ks[2], vs[2], true)
}

// FuzzIterator makes sure the basic iterator works. Includes random
// deletes.
func (s *TestSuite) FuzzIterator(t *testing.T) {
	const Size = 50
	const DeleteCount = 20

	toSet := randModels(Size, 8, 40)
	toDel := randModels(DeleteCount, 8, 40)
	expect := sortModels(toSet)

	cases := map[string]iterCase{
		"sets and deletes of missing keys": {
			ops: append(makeSetOps(toSet...), makeDelOps(toDel...)...),
			queries: []rangeQuery{
				// forward: no, start, finish, both limits
				{nil, nil, false, expect},
				{expect[10].Key, nil, false, expect[10:]},
				{nil, expect[Size-8].Key, false, expect[:Size-8]},
				{expect[17].Key, expect[28].Key, false, expect[17:28]},

				// reverse: no, start, finish, both limits
				{nil, nil, true, reverse(expect)},
				{expect[34].Key, nil, true, reverse(expect[34:])},
				{nil, expect[19].Key, true, reverse(expect[:19])},
				{expect[6].Key, expect[26].Key, true, reverse(expect[6:26])},
			},
		},
		"deleting existing keys": {
			ops: append(makeSetOps(toSet...), makeDelOps(expect[:10]...)...),
			queries: []rangeQuery{
				{nil, nil, false, expect[10:]},
				{nil, expect[12].Key, false, expect[10:12]},
				{nil, nil, true, reverse(expect[10:])},
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			base, cleanup := s.makeBase()
			defer cleanup()

			tc.verify(t, base)
		})
	}
}

// IteratorPrefix checks iteration over a key prefix as used by buckets.
func (s *TestSuite) IteratorPrefix(t *testing.T) {
	base, cleanup := s.makeBase()
	defer cleanup()

	a := Pair([]byte("rec:a"), []byte("1"))
	b := Pair([]byte("rec:b"), []byte("2"))
	other := Pair([]byte("red:a"), []byte("3"))
	tc := iterCase{
		ops: makeSetOps(a, b, other),
		queries: []rangeQuery{
			{[]byte("rec:"), []byte("rec;"), false, []Model{a, b}},
			{[]byte("rec:"), []byte("rec;"), true, []Model{b, a}},
			{[]byte("zzz"), nil, false, nil},
		},
	}
	tc.verify(t, base)
}

func (s *TestSuite) AssertGetHas(t testing.TB, kv ReadOnlyKVStore, key, val []byte, has bool) {
	t.Helper()
	got, err := kv.Get(key)
	assert.Nil(t, err)
	if !bytes.Equal(val, got) || (val == nil) != (got == nil) {
		t.Fatalf("want value %X, got %X", val, got)
	}
	exists, err := kv.Has(key)
	assert.Nil(t, err)
	assert.Equal(t, has, exists)
}

//nolint
func randBytes(length int) []byte {
	res := make([]byte, length)
	rand.Read(res)
	return res
}

// randKeys returns a slice of count keys, all of a given size
func randKeys(count, size int) [][]byte {
	res := make([][]byte, count)
	for i := 0; i < count; i++ {
		res[i] = randBytes(size)
	}
	return res
}

// randModels produces a random set of models
func randModels(count, keySize, valueSize int) []Model {
	models := make([]Model, count)
	for i := 0; i < count; i++ {
		models[i].Key = randBytes(keySize)
		models[i].Value = randBytes(valueSize)
	}
	return models
}

// iterCase is a test case for iteration
type iterCase struct {
	ops     []Op
	queries []rangeQuery
}

func (i iterCase) verify(t testing.TB, base KVStore) {
	t.Helper()
	for _, op := range i.ops {
		assert.Nil(t, op.Apply(base))
	}

	for _, q := range i.queries {
		var iter Iterator
		var err error
		if q.reverse {
			iter, err = base.ReverseIterator(q.start, q.end)
		} else {
			iter, err = base.Iterator(q.start, q.end)
		}
		assert.Nil(t, err)

		for i := 0; i < len(q.expected); i++ {
			key, value, err := iter.Next()
			assert.Nil(t, err)
			if !bytes.Equal(q.expected[i].Key, key) {
				t.Fatalf("Expected key: %X\nGot keys %d = %X", q.expected[i].Key, i, key)
			}
			if !bytes.Equal(q.expected[i].Value, value) {
				t.Fatalf("Expected value: %X\nGot value %d = %X", q.expected[i].Value, i, value)
			}
		}
		_, _, err = iter.Next()
		if !errors.ErrIteratorDone.Is(err) {
			t.Fatalf("Expected ErrIteratorDone, got %+v", err)
		}
		iter.Release()
	}
}

// range query checks the results of iteration
type rangeQuery struct {
	start    []byte
	end      []byte
	reverse  bool
	expected []Model
}

// reverse returns a copy of the slice with elements in reverse order
func reverse(models []Model) []Model {
	max := len(models)
	res := make([]Model, max)
	for i := 0; i < max; i++ {
		res[i] = models[max-1-i]
	}
	return res
}

// sortModels returns a copy of the models sorted by key
func sortModels(models []Model) []Model {
	res := make([]Model, len(models))
	copy(res, models)
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Key, res[j].Key) < 0
	})
	return res
}

func makeSetOps(ms ...Model) []Op {
	res := make([]Op, len(ms))
	for i, m := range ms {
		res[i] = SetOp(m.Key, m.Value)
	}
	return res
}

func makeDelOps(ms ...Model) []Op {
	res := make([]Op, len(ms))
	for i, m := range ms {
		res[i] = DelOp(m.Key)
	}
	return res
}
