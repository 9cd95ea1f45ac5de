package multisig

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/orm"
	"github.com/rafamiziara/superpool-sub007/store"
)

const bucketName = "txs"

// KVRecordStore is a RecordStore on top of an ordered key value store. Each
// record is stored together with its secondary index entries in a single
// batch. Writes are serialized, so it must not share its key space with
// another writer. At most one open record may hold a nonce.
type KVRecordStore struct {
	mu     sync.Mutex
	db     store.KVStore
	bucket orm.Bucket
}

var _ RecordStore = (*KVRecordStore)(nil)

// NewKVRecordStore returns a record store using given database.
func NewKVRecordStore(db store.KVStore) *KVRecordStore {
	b := orm.NewBucket(bucketName, func() orm.Model { return &TransactionRecord{} }).
		WithIndex("status", statusIndex, createdOrder).
		WithIndex("creator", creatorIndex, createdOrder).
		WithIndex("all", allIndex, createdOrder).
		WithIndex("nonce", openNonceIndex, nil)
	return &KVRecordStore{db: db, bucket: b}
}

func asRecord(m orm.Model) (*TransactionRecord, error) {
	r, ok := m.(*TransactionRecord)
	if !ok {
		return nil, errors.Wrapf(errors.ErrHuman, "unexpected model %T", m)
	}
	return r, nil
}

func statusIndex(m orm.Model) ([]byte, error) {
	r, err := asRecord(m)
	if err != nil {
		return nil, err
	}
	return []byte{byte(r.Status)}, nil
}

func creatorIndex(m orm.Model) ([]byte, error) {
	r, err := asRecord(m)
	if err != nil {
		return nil, err
	}
	return r.CreatedBy.Bytes(), nil
}

// allIndex puts every record under the same value, so that all records can
// be listed by creation time.
func allIndex(orm.Model) ([]byte, error) {
	return []byte{1}, nil
}

// openNonceIndex indexes records by nonce for as long as they hold it.
func openNonceIndex(m orm.Model) ([]byte, error) {
	r, err := asRecord(m)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsOpen() {
		return nil, nil
	}
	return nonceKey(r.Nonce), nil
}

func nonceKey(nonce uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, nonce)
	return out
}

// createdOrder orders records by creation time and then by nonce.
func createdOrder(m orm.Model) []byte {
	r := m.(*TransactionRecord)
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out, uint64(r.CreatedAt))
	binary.BigEndian.PutUint64(out[8:], r.Nonce)
	return out
}

func (s *KVRecordStore) Create(ctx context.Context, rec *TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nonceFree(rec); err != nil {
		return err
	}
	c := rec.Copy()
	c.Version = 1
	if err := s.bucket.Create(s.db, rec.ID.Bytes(), c); err != nil {
		return errors.Wrapf(err, "create %s", rec.ID.Hex())
	}
	rec.Version = 1
	return nil
}

func (s *KVRecordStore) Get(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	var rec TransactionRecord
	if err := s.bucket.One(s.db, id.Bytes(), &rec); err != nil {
		return nil, errors.Wrapf(err, "record %s", id.Hex())
	}
	return &rec, nil
}

func (s *KVRecordStore) CompareAndSwap(ctx context.Context, expectedVersion uint64, rec *TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current TransactionRecord
	if err := s.bucket.One(s.db, rec.ID.Bytes(), &current); err != nil {
		return errors.Wrapf(err, "record %s", rec.ID.Hex())
	}
	if current.Version != expectedVersion {
		return errors.Wrapf(errors.ErrConflict, "record %s is at version %d, expected %d",
			rec.ID.Hex(), current.Version, expectedVersion)
	}
	if current.Status.IsTerminal() {
		return errors.Wrapf(errors.ErrInvalidState, "record %s is %s", rec.ID.Hex(), current.Status)
	}
	if current.Status != rec.Status && !current.Status.CanTransitionTo(rec.Status) {
		return errors.Wrapf(errors.ErrInvalidState, "record %s cannot move from %s to %s",
			rec.ID.Hex(), current.Status, rec.Status)
	}

	c := rec.Copy()
	c.Version = expectedVersion + 1
	if err := s.bucket.Put(s.db, rec.ID.Bytes(), c); err != nil {
		return errors.Wrapf(err, "update %s", rec.ID.Hex())
	}
	rec.Version = c.Version
	return nil
}

func (s *KVRecordStore) Supersede(ctx context.Context, expectedVersion uint64, rec *TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current TransactionRecord
	if err := s.bucket.One(s.db, rec.ID.Bytes(), &current); err != nil {
		return errors.Wrapf(err, "record %s", rec.ID.Hex())
	}
	if current.Version != expectedVersion {
		return errors.Wrapf(errors.ErrConflict, "record %s is at version %d, expected %d",
			rec.ID.Hex(), current.Version, expectedVersion)
	}
	if !current.Status.Supersedable() {
		return errors.Wrapf(errors.ErrInvalidState, "record %s is %s", rec.ID.Hex(), current.Status)
	}
	if rec.Status != StatusPendingSignatures {
		return errors.Wrapf(errors.ErrInvalidState, "record %s cannot be superseded as %s", rec.ID.Hex(), rec.Status)
	}
	if err := s.nonceFree(rec); err != nil {
		return err
	}

	c := rec.Copy()
	c.Version = expectedVersion + 1
	if err := s.bucket.Put(s.db, rec.ID.Bytes(), c); err != nil {
		return errors.Wrapf(err, "supersede %s", rec.ID.Hex())
	}
	rec.Version = c.Version
	return nil
}

// nonceFree fails with ErrConflict if a record other than rec is open with
// the same nonce.
func (s *KVRecordStore) nonceFree(rec *TransactionRecord) error {
	if !rec.Status.IsOpen() {
		return nil
	}
	keys, err := s.bucket.ByIndex(s.db, "nonce", nonceKey(rec.Nonce), false)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !bytes.Equal(k, rec.ID.Bytes()) {
			return errors.Wrapf(errors.ErrConflict, "nonce %d is held by %x", rec.Nonce, k)
		}
	}
	return nil
}

func (s *KVRecordStore) List(ctx context.Context, q ListQuery) ([]*TransactionRecord, int, error) {
	var keys [][]byte
	switch {
	case len(q.Statuses) > 0:
		for _, st := range q.Statuses {
			ks, err := s.bucket.ByIndex(s.db, "status", []byte{byte(st)}, true)
			if err != nil {
				return nil, 0, err
			}
			keys = append(keys, ks...)
		}
	case q.CreatedBy != nil:
		ks, err := s.bucket.ByIndex(s.db, "creator", q.CreatedBy.Bytes(), true)
		if err != nil {
			return nil, 0, err
		}
		keys = ks
	default:
		ks, err := s.bucket.ByIndex(s.db, "all", []byte{1}, true)
		if err != nil {
			return nil, 0, err
		}
		keys = ks
	}

	matching := make([]*TransactionRecord, 0, len(keys))
	for _, k := range keys {
		var rec TransactionRecord
		if err := s.bucket.One(s.db, k, &rec); err != nil {
			// The record was written after the index was read.
			if errors.ErrNotFound.Is(err) {
				continue
			}
			return nil, 0, err
		}
		if q.Match(&rec) {
			matching = append(matching, &rec)
		}
	}
	if len(q.Statuses) > 1 {
		sort.SliceStable(matching, func(i, j int) bool { return newerFirst(matching[i], matching[j]) })
	}
	return q.Page(matching), len(matching), nil
}
