package multisig

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/custodytest/assert"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/stretchr/testify/require"
)

func TestKVRecordStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewKVRecordStore(store.NewMemStore())

	rec := validRecord()
	rec.Version = 7
	require.NoError(t, s.Create(ctx, rec))
	require.Equal(t, uint64(1), rec.Version)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Version)
	require.Equal(t, rec.Description, got.Description)

	// returned records are copies
	got.Description = "changed"
	again, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "pause", again.Description)

	err = s.Create(ctx, validRecord())
	assert.IsErr(t, errors.ErrAlreadyExists, err)

	_, err = s.Get(ctx, superpool.TxID{0x42})
	assert.IsErr(t, errors.ErrNotFound, err)

	bad := validRecord()
	bad.ID = common.HexToHash("0x02")
	bad.Nonce = 4
	bad.Description = ""
	assert.IsErr(t, errors.ErrEmpty, s.Create(ctx, bad))
}

func TestKVRecordStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewKVRecordStore(store.NewMemStore())
	rec := validRecord()
	require.NoError(t, s.Create(ctx, rec))

	next := rec.Copy()
	next.Status = StatusReadyToExecute
	require.NoError(t, s.CompareAndSwap(ctx, 1, next))
	require.Equal(t, uint64(2), next.Version)

	stale := rec.Copy()
	stale.Description = "stale write"
	assert.IsErr(t, errors.ErrConflict, s.CompareAndSwap(ctx, 1, stale))

	// status graph is enforced by the store as well
	back := next.Copy()
	back.Status = StatusPendingSignatures
	assert.IsErr(t, errors.ErrInvalidState, s.CompareAndSwap(ctx, 2, back))

	expired := next.Copy()
	expired.Status = StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, 2, expired))

	// terminal records are immutable
	touch := expired.Copy()
	touch.Description = "after expiry"
	assert.IsErr(t, errors.ErrInvalidState, s.CompareAndSwap(ctx, 3, touch))

	missing := validRecord()
	missing.ID = common.HexToHash("0x0404")
	assert.IsErr(t, errors.ErrNotFound, s.CompareAndSwap(ctx, 1, missing))
}

func TestKVRecordStoreOpenNonce(t *testing.T) {
	ctx := context.Background()
	s := NewKVRecordStore(store.NewMemStore())

	holder := validRecord()
	require.NoError(t, s.Create(ctx, holder))

	other := validRecord()
	other.ID = common.HexToHash("0xbb02")
	assert.IsErr(t, errors.ErrConflict, s.Create(ctx, other))

	// Moving between open statuses keeps the nonce.
	holder.Status = StatusReadyToExecute
	require.NoError(t, s.CompareAndSwap(ctx, holder.Version, holder))
	assert.IsErr(t, errors.ErrConflict, s.Create(ctx, other))

	holder.Status = StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, holder.Version, holder))
	require.NoError(t, s.Create(ctx, other))
}

func TestKVRecordStoreSupersede(t *testing.T) {
	ctx := context.Background()
	s := NewKVRecordStore(store.NewMemStore())

	rec := validRecord()
	require.NoError(t, s.Create(ctx, rec))

	again := validRecord()
	again.Description = "pause again"
	again.CreatedAt = 3000
	again.UpdatedAt = 3000
	again.ExpiresAt = 4000
	assert.IsErr(t, errors.ErrInvalidState, s.Supersede(ctx, rec.Version, again))

	rec.Status = StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, rec.Version, rec))
	assert.IsErr(t, errors.ErrConflict, s.Supersede(ctx, 1, again))

	executing := again.Copy()
	executing.Status = StatusExecuting
	assert.IsErr(t, errors.ErrInvalidState, s.Supersede(ctx, rec.Version, executing))

	require.NoError(t, s.Supersede(ctx, rec.Version, again))
	require.Equal(t, rec.Version+1, again.Version)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingSignatures, got.Status)
	require.Equal(t, "pause again", got.Description)

	// Indexes follow the new lifecycle.
	pending, total, err := s.List(ctx, ListQuery{Statuses: []Status{StatusPendingSignatures}})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, rec.ID, pending[0].ID)
	expired, _, err := s.List(ctx, ListQuery{Statuses: []Status{StatusExpired}})
	require.NoError(t, err)
	require.Empty(t, expired)

	other := validRecord()
	other.ID = common.HexToHash("0xbb02")
	assert.IsErr(t, errors.ErrConflict, s.Create(ctx, other))

	// A nonce taken while the record was expired blocks superseding it.
	again.Status = StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, again.Version, again))
	require.NoError(t, s.Create(ctx, other))
	third := validRecord()
	assert.IsErr(t, errors.ErrConflict, s.Supersede(ctx, again.Version, third))
}

func TestKVRecordStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewKVRecordStore(store.NewMemStore())

	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")

	// created at 1000, 1001, ... so that the newest has the highest index
	var ids []superpool.TxID
	for i := 0; i < 6; i++ {
		r := validRecord()
		r.ID = common.BigToHash(big.NewInt(int64(100 + i)))
		r.Nonce = uint64(i)
		r.CreatedAt = superpool.UnixTime(1000 + i)
		r.ExpiresAt = r.CreatedAt + 1000
		r.CreatedBy = alice
		if i%2 == 1 {
			r.CreatedBy = bob
		}
		require.NoError(t, s.Create(ctx, r))
		ids = append(ids, r.ID)
	}
	// move two records forward
	for _, i := range []int{1, 4} {
		r, err := s.Get(ctx, ids[i])
		require.NoError(t, err)
		r.Status = StatusReadyToExecute
		require.NoError(t, s.CompareAndSwap(ctx, r.Version, r))
	}

	idsOf := func(recs []*TransactionRecord) []superpool.TxID {
		var out []superpool.TxID
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	cases := map[string]struct {
		q         ListQuery
		wantIDs   []superpool.TxID
		wantTotal int
	}{
		"all newest first": {
			q:         ListQuery{},
			wantIDs:   []superpool.TxID{ids[5], ids[4], ids[3], ids[2], ids[1], ids[0]},
			wantTotal: 6,
		},
		"second page": {
			q:         ListQuery{Offset: 2, Limit: 2},
			wantIDs:   []superpool.TxID{ids[3], ids[2]},
			wantTotal: 6,
		},
		"past the end": {
			q:         ListQuery{Offset: 10, Limit: 2},
			wantTotal: 6,
		},
		"by status": {
			q:         ListQuery{Statuses: []Status{StatusReadyToExecute}},
			wantIDs:   []superpool.TxID{ids[4], ids[1]},
			wantTotal: 2,
		},
		"several statuses keep order": {
			q:         ListQuery{Statuses: []Status{StatusReadyToExecute, StatusPendingSignatures}, Limit: 3},
			wantIDs:   []superpool.TxID{ids[5], ids[4], ids[3]},
			wantTotal: 6,
		},
		"by creator": {
			q:         ListQuery{CreatedBy: &bob},
			wantIDs:   []superpool.TxID{ids[5], ids[3], ids[1]},
			wantTotal: 3,
		},
		"by creator and status": {
			q:         ListQuery{CreatedBy: &alice, Statuses: []Status{StatusReadyToExecute}},
			wantIDs:   []superpool.TxID{ids[4]},
			wantTotal: 1,
		},
		"flagged only": {
			q:         ListQuery{NeedsReconciliation: true},
			wantTotal: 0,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			recs, total, err := s.List(ctx, tc.q)
			require.NoError(t, err)
			require.Equal(t, tc.wantTotal, total)
			require.Equal(t, tc.wantIDs, idsOf(recs))
		})
	}
}
