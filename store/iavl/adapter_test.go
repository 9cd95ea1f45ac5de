package iavl

import (
	"bytes"
	"testing"

	"github.com/rafamiziara/superpool-sub007/custodytest/assert"
	"github.com/rafamiziara/superpool-sub007/store"
)

func makeBase() (store.KVStore, func()) {
	return MockCommitStore(), func() {}
}

func TestCommitStoreSuite(t *testing.T) {
	suite := store.NewTestSuite(makeBase)
	t.Run("get set", suite.GetSet)
	t.Run("batch", suite.Batch)
	t.Run("fuzz iterator", suite.FuzzIterator)
	t.Run("iterator prefix", suite.IteratorPrefix)
}

func TestCommitAndRollback(t *testing.T) {
	s := MockCommitStore()

	assert.Nil(t, s.Set([]byte("owner"), []byte("alice")))
	first, err := s.Commit()
	assert.Nil(t, err)
	assert.Equal(t, int64(1), first.Version)

	assert.Nil(t, s.Set([]byte("owner"), []byte("bob")))
	s.Rollback()

	v, err := s.Get([]byte("owner"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("alice"), v)

	assert.Nil(t, s.Set([]byte("nonce"), []byte{1}))
	second, err := s.Commit()
	assert.Nil(t, err)
	assert.Equal(t, int64(2), second.Version)
	if bytes.Equal(first.Hash, second.Hash) {
		t.Fatal("state change must change the root hash")
	}
	assert.Equal(t, second, s.LatestVersion())
}
