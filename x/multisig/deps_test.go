package multisig

import (
	"context"
	"testing"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/custodytest/assert"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/stretchr/testify/require"
)

// racingStore bumps the stored record behind the caller's back before every
// compare and swap, for as many times as configured.
type racingStore struct {
	RecordStore
	races int
	cas   int
}

func (s *racingStore) CompareAndSwap(ctx context.Context, expected uint64, rec *TransactionRecord) error {
	s.cas++
	if s.races > 0 {
		s.races--
		cur, err := s.RecordStore.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		cur.Description = "changed concurrently"
		if err := s.RecordStore.CompareAndSwap(ctx, cur.Version, cur); err != nil {
			return err
		}
	}
	return s.RecordStore.CompareAndSwap(ctx, expected, rec)
}

func TestUpdateRecordRetries(t *testing.T) {
	cases := map[string]struct {
		races   int
		wantErr *errors.Error
		wantCAS int
	}{
		"no conflict": {
			races:   0,
			wantCAS: 1,
		},
		"conflicts resolved by retry": {
			races:   2,
			wantCAS: 3,
		},
		"conflict surfaces after bounded retries": {
			races:   10,
			wantErr: errors.ErrConflict,
			wantCAS: 3,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			ctx := context.Background()
			kv := NewKVRecordStore(store.NewMemStore())
			rec := validRecord()
			require.NoError(t, kv.Create(ctx, rec))

			s := &racingStore{RecordStore: kv, races: tc.races}
			var calls int
			got, err := updateRecord(ctx, s, rec.ID, 3, func(r *TransactionRecord) (bool, error) {
				calls++
				r.Metadata = map[string]string{"attempt": "yes"}
				return true, nil
			})
			assert.IsErr(t, tc.wantErr, err)
			require.Equal(t, tc.wantCAS, s.cas)
			require.Equal(t, tc.wantCAS, calls, "every attempt re-reads and re-applies the mutation")
			if tc.wantErr == nil {
				require.Equal(t, "yes", got.Metadata["attempt"])
				// the concurrent change is not lost
				stored, err := kv.Get(ctx, rec.ID)
				require.NoError(t, err)
				require.Equal(t, got.Version, stored.Version)
				if tc.races > 0 {
					require.Equal(t, "changed concurrently", stored.Description)
				}
			}
		})
	}
}

func TestUpdateRecordMutationError(t *testing.T) {
	ctx := context.Background()
	kv := NewKVRecordStore(store.NewMemStore())
	rec := validRecord()
	require.NoError(t, kv.Create(ctx, rec))

	_, err := updateRecord(ctx, kv, rec.ID, 5, func(r *TransactionRecord) (bool, error) {
		return false, errors.ErrInvalidState.New("nope")
	})
	assert.IsErr(t, errors.ErrInvalidState, err)

	// unchanged records are not written
	got, err := updateRecord(ctx, kv, rec.ID, 5, func(r *TransactionRecord) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Version)

	_, err = updateRecord(ctx, kv, superpool.TxID{1}, 5, func(r *TransactionRecord) (bool, error) {
		return true, nil
	})
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestChainErr(t *testing.T) {
	assert.IsErr(t, errors.ErrChainUnavailable, chainErr(context.DeadlineExceeded, "nonce"))
	assert.IsErr(t, errors.ErrNotFound, chainErr(errors.ErrNotFound.New("receipt"), "receipt"))
	assert.IsErr(t, errors.ErrChainUnavailable, chainErr(errors.ErrChainUnavailable.New("down"), "nonce"))
	require.Nil(t, chainErr(nil, "nonce"))
}
