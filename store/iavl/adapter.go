package iavl

import (
	"sync"

	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"

	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
)

// CommitID contains the tree version number and its merkle root.
type CommitID struct {
	Version int64
	Hash    []byte
}

// CommitStore manages a iavl committed state. Writes go to the working tree
// and become durable on Commit. Rollback drops all uncommitted writes.
type CommitStore struct {
	mu   sync.RWMutex
	tree *iavl.MutableTree
}

var _ store.KVStore = (*CommitStore)(nil)

// NewCommitStore creates a new store with disk backing
func NewCommitStore(dir, name string) (*CommitStore, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %s/%s: %s", dir, name, err)
	}
	return newCommitStore(db)
}

// MockCommitStore creates a new in-memory store for testing and
// development.
func MockCommitStore() *CommitStore {
	s, err := newCommitStore(dbm.NewMemDB())
	if err != nil {
		// Loading an empty memory database cannot fail.
		panic(err)
	}
	return s
}

func newCommitStore(db dbm.DB) (*CommitStore, error) {
	tree := iavl.NewMutableTree(db, 10000) // cache size 10000
	if _, err := tree.Load(); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "load tree: %s", err)
	}
	return &CommitStore{tree: tree}, nil
}

// Commit the next version to disk, and returns info
func (s *CommitStore) Commit() (CommitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return CommitID{}, errors.Wrapf(errors.ErrDatabase, "save version: %s", err)
	}
	return CommitID{Version: version, Hash: hash}, nil
}

// Rollback drops all writes since the last commit.
func (s *CommitStore) Rollback() {
	s.mu.Lock()
	s.tree.Rollback()
	s.mu.Unlock()
}

// LatestVersion returns info on the latest version saved to disk
func (s *CommitStore) LatestVersion() CommitID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}
}

// Get returns nil iff key doesn't exist.
func (s *CommitStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, val := s.tree.Get(key)
	return val, nil
}

// Has checks if a key exists.
func (s *CommitStore) Has(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Has(key), nil
}

// Set adds a new value to the working tree.
func (s *CommitStore) Set(key, value []byte) error {
	// The tree keeps references to both slices.
	k := append([]byte(nil), key...)
	v := append([]byte{}, value...)
	s.mu.Lock()
	s.tree.Set(k, v)
	s.mu.Unlock()
	return nil
}

// Delete removes from the working tree.
func (s *CommitStore) Delete(key []byte) error {
	s.mu.Lock()
	s.tree.Remove(key)
	s.mu.Unlock()
	return nil
}

// NewBatch returns a batch that writes to the working tree. Writes to the
// working tree cannot fail, so the batch is effectively atomic until Commit.
func (s *CommitStore) NewBatch() store.Batch {
	return store.NewNonAtomicBatch(s)
}

// Iterator over a domain of keys in ascending order. End is exclusive.
func (s *CommitStore) Iterator(start, end []byte) (store.Iterator, error) {
	return s.iterate(start, end, true), nil
}

// ReverseIterator over a domain of keys in descending order. End is
// exclusive.
func (s *CommitStore) ReverseIterator(start, end []byte) (store.Iterator, error) {
	return s.iterate(start, end, false), nil
}

func (s *CommitStore) iterate(start, end []byte, ascending bool) store.Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []store.Model
	add := func(key []byte, value []byte) bool {
		res = append(res, store.Pair(key, value))
		return false
	}
	s.tree.IterateRange(start, end, ascending, add)
	return store.NewSliceIterator(res)
}
