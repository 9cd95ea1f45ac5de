package store

import superpool "github.com/rafamiziara/superpool-sub007"

// Move references for all storage types into this package
// for shorter names everywhere

type (
	ReadOnlyKVStore = superpool.ReadOnlyKVStore
	SetDeleter      = superpool.SetDeleter
	KVStore         = superpool.KVStore
	Batch           = superpool.Batch
	Iterator        = superpool.Iterator
)

// Model groups together key and value to return
type Model struct {
	Key   []byte
	Value []byte
}

// Pair constructs a model from a key-value pair
func Pair(key, value []byte) Model {
	return Model{
		Key:   key,
		Value: value,
	}
}
