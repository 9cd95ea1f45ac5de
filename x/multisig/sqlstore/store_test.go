package sqlstore

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/stretchr/testify/require"
)

// openTestStore returns a store with an empty table. It connects to the
// PostgreSQL database given by SUPERPOOL_TEST_POSTGRES_DSN and falls back to
// a SQLite file otherwise.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SUPERPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Migrate(context.Background()))
		return s
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.db.Migrator().DropTable(&row{}))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newRecord(n int64, creator common.Address, created time.Time) *multisig.TransactionRecord {
	now := superpool.AsUnixTime(created)
	return &multisig.TransactionRecord{
		ID:                 common.BigToHash(big.NewInt(n)),
		Target:             common.HexToAddress("0xAAAA"),
		Value:              big.NewInt(n),
		Data:               []byte{0x84, 0x56, 0xcb, 0x59},
		Nonce:              uint64(n),
		Status:             multisig.StatusPendingSignatures,
		RequiredSignatures: 2,
		CreatedBy:          creator,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.Add(time.Hour),
		Description:        "pause",
		Metadata:           map[string]string{"ticket": "OPS-1"},
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	creator := common.HexToAddress("0x01")

	rec := newRecord(1, creator, time.Now())
	require.NoError(t, s.Create(ctx, rec))
	require.Equal(t, uint64(1), rec.Version)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.Nonce, got.Nonce)
	require.Equal(t, rec.CreatedBy, got.CreatedBy)
	require.Equal(t, 0, rec.Value.Cmp(got.Value))
	require.Equal(t, rec.Data, got.Data)
	require.Equal(t, rec.Metadata, got.Metadata)
	require.Equal(t, uint64(1), got.Version)

	err = s.Create(ctx, newRecord(1, creator, time.Now()))
	require.True(t, errors.ErrAlreadyExists.Is(err), "%+v", err)

	_, err = s.Get(ctx, common.BigToHash(big.NewInt(99)))
	require.True(t, errors.ErrNotFound.Is(err), "%+v", err)
}

func TestCompareAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := newRecord(1, common.HexToAddress("0x01"), time.Now())
	require.NoError(t, s.Create(ctx, rec))

	a, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	b, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	a.Status = multisig.StatusReadyToExecute
	require.NoError(t, s.CompareAndSwap(ctx, 1, a))
	require.Equal(t, uint64(2), a.Version)

	b.Description = "lost update"
	err = s.CompareAndSwap(ctx, 1, b)
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, multisig.StatusReadyToExecute, got.Status)
	require.Equal(t, "pause", got.Description)

	got.Status = multisig.StatusPendingSignatures
	err = s.CompareAndSwap(ctx, 2, got)
	require.True(t, errors.ErrInvalidState.Is(err), "%+v", err)

	missing := newRecord(7, common.HexToAddress("0x01"), time.Now())
	err = s.CompareAndSwap(ctx, 1, missing)
	require.True(t, errors.ErrNotFound.Is(err), "%+v", err)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := int64(0); i < 5; i++ {
		creator := alice
		if i%2 == 1 {
			creator = bob
		}
		require.NoError(t, s.Create(ctx, newRecord(i+1, creator, start.Add(time.Duration(i)*time.Minute))))
	}
	flagged, err := s.Get(ctx, common.BigToHash(big.NewInt(2)))
	require.NoError(t, err)
	flagged.Status = multisig.StatusReadyToExecute
	require.NoError(t, s.CompareAndSwap(ctx, flagged.Version, flagged))

	cases := map[string]struct {
		query      multisig.ListQuery
		wantNonces []uint64
		wantTotal  int
	}{
		"all newest first": {
			query:      multisig.ListQuery{},
			wantNonces: []uint64{5, 4, 3, 2, 1},
			wantTotal:  5,
		},
		"paged": {
			query:      multisig.ListQuery{Offset: 1, Limit: 2},
			wantNonces: []uint64{4, 3},
			wantTotal:  5,
		},
		"by status": {
			query:      multisig.ListQuery{Statuses: []multisig.Status{multisig.StatusReadyToExecute}},
			wantNonces: []uint64{2},
			wantTotal:  1,
		},
		"by creator": {
			query:      multisig.ListQuery{CreatedBy: &bob},
			wantNonces: []uint64{4, 2},
			wantTotal:  2,
		},
		"several statuses": {
			query: multisig.ListQuery{Statuses: []multisig.Status{
				multisig.StatusPendingSignatures, multisig.StatusReadyToExecute,
			}, Limit: 3},
			wantNonces: []uint64{5, 4, 3},
			wantTotal:  5,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			recs, total, err := s.List(ctx, tc.query)
			require.NoError(t, err)
			require.Equal(t, tc.wantTotal, total)
			nonces := make([]uint64, len(recs))
			for i, r := range recs {
				nonces[i] = r.Nonce
			}
			require.Equal(t, tc.wantNonces, nonces)
		})
	}
}

func TestOpenNonceIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	creator := common.HexToAddress("0x01")

	first := newRecord(1, creator, time.Now())
	require.NoError(t, s.Create(ctx, first))

	other := newRecord(2, creator, time.Now())
	other.Nonce = first.Nonce
	err := s.Create(ctx, other)
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)

	// Once the holder expires the nonce can be taken again.
	first.Status = multisig.StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, first.Version, first))
	require.NoError(t, s.Create(ctx, other))
}

func TestSupersede(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := newRecord(1, alice, start)
	require.NoError(t, s.Create(ctx, old))

	again := newRecord(1, bob, start.Add(time.Hour))
	err := s.Supersede(ctx, old.Version, again)
	require.True(t, errors.ErrInvalidState.Is(err), "open records cannot be superseded: %+v", err)

	old.Status = multisig.StatusExpired
	require.NoError(t, s.CompareAndSwap(ctx, old.Version, old))

	err = s.Supersede(ctx, 1, again)
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)

	require.NoError(t, s.Supersede(ctx, old.Version, again))
	require.Equal(t, old.Version+1, again.Version)

	got, err := s.Get(ctx, again.ID)
	require.NoError(t, err)
	require.Equal(t, multisig.StatusPendingSignatures, got.Status)
	require.Equal(t, bob, got.CreatedBy)
	require.Equal(t, again.Version, got.Version)

	recs, _, err := s.List(ctx, multisig.ListQuery{CreatedBy: &bob})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// The new lifecycle holds the nonce again.
	taken := newRecord(2, alice, start)
	taken.Nonce = again.Nonce
	err = s.Create(ctx, taken)
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)
}

func TestDatabaseErrors(t *testing.T) {
	err := dbErr(errors.ErrConflict.New("busy"), "op")
	require.True(t, errors.ErrConflict.Is(err))

	err = dbErr(sqlite3.Error{Code: sqlite3.ErrBusy}, "op")
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)

	err = dbErr(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: openNonceIndex}, "op")
	require.True(t, errors.ErrConflict.Is(err), "%+v", err)

	err = dbErr(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "custody_transactions_pkey"}, "op")
	require.True(t, errors.ErrAlreadyExists.Is(err), "%+v", err)

	err = dbErr(context.DeadlineExceeded, "op")
	require.True(t, errors.ErrDatabase.Is(err))
}
