/*
Package sqlstore implements multisig.RecordStore on top of PostgreSQL or a
SQLite file.

Every record is a single row. The serialized record is kept in the payload
column, the columns used for filtering and ordering are duplicated next to
it. The version column guards all updates, a write only succeeds if the row
is still at the version the writer read. A partial unique index on the nonce
of open rows keeps two service instances sharing the database from
allocating the same nonce.
*/
package sqlstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgreSQL error codes handled by this package.
const (
	pgErrUniqueViolation = "23505"
	pgErrSerialization   = "40001"
	pgErrDeadlock        = "40P01"
)

// openNonceIndex is the partial unique index covering rows that hold their
// nonce.
const openNonceIndex = "custody_transactions_open_nonce"

// row is the database representation of a transaction record.
type row struct {
	ID                  string `gorm:"column:id;primaryKey;type:varchar(66)"`
	Status              string `gorm:"column:status;type:varchar(32);not null;index"`
	CreatedBy           string `gorm:"column:created_by;type:varchar(42);not null;index"`
	CreatedAt           int64  `gorm:"column:created_at;not null;index"`
	Nonce               int64  `gorm:"column:nonce;not null"`
	NeedsReconciliation bool   `gorm:"column:needs_reconciliation;not null;default:false"`
	Version             int64  `gorm:"column:version;not null"`
	Payload             []byte `gorm:"column:payload;type:bytea;not null"`
}

func (row) TableName() string { return "custody_transactions" }

func toRow(rec *multisig.TransactionRecord) (*row, error) {
	payload, err := rec.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal")
	}
	return &row{
		ID:                  rec.ID.Hex(),
		Status:              rec.Status.String(),
		CreatedBy:           rec.CreatedBy.Hex(),
		CreatedAt:           int64(rec.CreatedAt),
		Nonce:               int64(rec.Nonce),
		NeedsReconciliation: rec.NeedsReconciliation,
		Version:             int64(rec.Version),
		Payload:             payload,
	}, nil
}

func (r *row) record() (*multisig.TransactionRecord, error) {
	var rec multisig.TransactionRecord
	if err := rec.Unmarshal(r.Payload); err != nil {
		return nil, errors.Wrapf(err, "row %s", r.ID)
	}
	// The column is authoritative, the payload is written together with it.
	rec.Version = uint64(r.Version)
	return &rec, nil
}

// Store is a RecordStore backed by a gorm connection.
type Store struct {
	db *gorm.DB
}

var _ multisig.RecordStore = (*Store)(nil)

// Open connects to the PostgreSQL database described by dsn.
func Open(dsn string) (*Store, error) {
	return open(postgres.Open(dsn))
}

// OpenSQLite opens or creates a SQLite database file. SQLite locks the
// whole file for writing, so it suits a single service instance only.
func OpenSQLite(path string) (*Store, error) {
	return open(sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"))
}

func open(d gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "connect: %s", err)
	}
	return New(db), nil
}

// New returns a store using an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the table used by this store.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&row{}); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "migrate: %s", err)
	}
	if err := db.Exec(openNonceIndexDDL()).Error; err != nil {
		return errors.Wrapf(errors.ErrDatabase, "migrate %s: %s", openNonceIndex, err)
	}
	return nil
}

func openNonceIndexDDL() string {
	names := make([]string, len(multisig.OpenStatuses))
	for i, st := range multisig.OpenStatuses {
		names[i] = "'" + st.String() + "'"
	}
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (nonce) WHERE status IN (%s)",
		openNonceIndex, row{}.TableName(), strings.Join(names, ", "))
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "%s", err)
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, rec *multisig.TransactionRecord) error {
	c := rec.Copy()
	c.Version = 1
	r, err := toRow(c)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&row{}).Where("id = ?", r.ID).Count(&n).Error; err != nil {
			return dbErr(err, "record %s", r.ID)
		}
		if n > 0 {
			return errors.Wrapf(errors.ErrAlreadyExists, "record %s", r.ID)
		}
		if err := tx.Create(r).Error; err != nil {
			return dbErr(err, "create %s", r.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id superpool.TxID) (*multisig.TransactionRecord, error) {
	var r row
	if err := s.db.WithContext(ctx).Where("id = ?", id.Hex()).First(&r).Error; err != nil {
		return nil, dbErr(err, "record %s", id.Hex())
	}
	return r.record()
}

func (s *Store) CompareAndSwap(ctx context.Context, expectedVersion uint64, rec *multisig.TransactionRecord) error {
	c := rec.Copy()
	c.Version = expectedVersion + 1
	next, err := toRow(c)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur row
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", next.ID).
			First(&cur).Error
		if err != nil {
			return dbErr(err, "record %s", next.ID)
		}
		if uint64(cur.Version) != expectedVersion {
			return errors.Wrapf(errors.ErrConflict, "record %s is at version %d, expected %d",
				next.ID, cur.Version, expectedVersion)
		}
		current, err := multisig.ParseStatus(cur.Status)
		if err != nil {
			return errors.Wrapf(errors.ErrDatabase, "record %s: %s", next.ID, err)
		}
		if current.IsTerminal() {
			return errors.Wrapf(errors.ErrInvalidState, "record %s is %s", next.ID, current)
		}
		if current != rec.Status && !current.CanTransitionTo(rec.Status) {
			return errors.Wrapf(errors.ErrInvalidState, "record %s cannot move from %s to %s",
				next.ID, current, rec.Status)
		}

		res := tx.Model(&row{}).
			Where("id = ? AND version = ?", next.ID, int64(expectedVersion)).
			Updates(map[string]interface{}{
				"status":               next.Status,
				"needs_reconciliation": next.NeedsReconciliation,
				"version":              next.Version,
				"payload":              next.Payload,
			})
		if res.Error != nil {
			return dbErr(res.Error, "update %s", next.ID)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errors.ErrConflict, "record %s changed concurrently", next.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.Version = c.Version
	return nil
}

func (s *Store) Supersede(ctx context.Context, expectedVersion uint64, rec *multisig.TransactionRecord) error {
	if rec.Status != multisig.StatusPendingSignatures {
		return errors.Wrapf(errors.ErrInvalidState, "record %s cannot be superseded as %s", rec.ID.Hex(), rec.Status)
	}
	c := rec.Copy()
	c.Version = expectedVersion + 1
	next, err := toRow(c)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur row
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", next.ID).
			First(&cur).Error
		if err != nil {
			return dbErr(err, "record %s", next.ID)
		}
		if uint64(cur.Version) != expectedVersion {
			return errors.Wrapf(errors.ErrConflict, "record %s is at version %d, expected %d",
				next.ID, cur.Version, expectedVersion)
		}
		current, err := multisig.ParseStatus(cur.Status)
		if err != nil {
			return errors.Wrapf(errors.ErrDatabase, "record %s: %s", next.ID, err)
		}
		if !current.Supersedable() {
			return errors.Wrapf(errors.ErrInvalidState, "record %s is %s", next.ID, current)
		}

		res := tx.Model(&row{}).
			Where("id = ? AND version = ?", next.ID, int64(expectedVersion)).
			Updates(map[string]interface{}{
				"status":               next.Status,
				"created_by":           next.CreatedBy,
				"created_at":           next.CreatedAt,
				"needs_reconciliation": next.NeedsReconciliation,
				"version":              next.Version,
				"payload":              next.Payload,
			})
		if res.Error != nil {
			return dbErr(res.Error, "supersede %s", next.ID)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errors.ErrConflict, "record %s changed concurrently", next.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.Version = c.Version
	return nil
}

func (s *Store) List(ctx context.Context, q multisig.ListQuery) ([]*multisig.TransactionRecord, int, error) {
	db := s.db.WithContext(ctx).Model(&row{})
	if len(q.Statuses) > 0 {
		names := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			names[i] = st.String()
		}
		db = db.Where("status IN ?", names)
	}
	if q.CreatedBy != nil {
		db = db.Where("created_by = ?", q.CreatedBy.Hex())
	}
	if q.NeedsReconciliation {
		db = db.Where("needs_reconciliation = ?", true)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err, "count")
	}

	db = db.Order("created_at DESC").Order("nonce DESC").Order("id DESC")
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var rows []row
	if err := db.Find(&rows).Error; err != nil {
		return nil, 0, dbErr(err, "list")
	}

	out := make([]*multisig.TransactionRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, int(total), nil
}

// dbErr maps a database failure to the error kinds used by the coordinator.
func dbErr(err error, format string, args ...interface{}) error {
	if errors.Code(err) != 1 {
		// Already categorized.
		return errors.Wrapf(err, format, args...)
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(errors.ErrNotFound, format, args...)
	}
	var sqErr sqlite3.Error
	if stderrors.As(err, &sqErr) {
		switch sqErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			if strings.Contains(sqErr.Error(), ".nonce") {
				return errors.Wrapf(errors.Wrap(errors.ErrConflict, "nonce is held by another open record"), format, args...)
			}
			return errors.Wrapf(errors.Wrap(errors.ErrAlreadyExists, sqErr.Error()), format, args...)
		}
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return errors.Wrapf(errors.Wrap(errors.ErrConflict, sqErr.Error()), format, args...)
		}
		return errors.Wrapf(errors.Wrap(errors.ErrDatabase, sqErr.Error()), format, args...)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			if pgErr.ConstraintName == openNonceIndex {
				return errors.Wrapf(errors.Wrap(errors.ErrConflict, "nonce is held by another open record"), format, args...)
			}
			return errors.Wrapf(errors.Wrap(errors.ErrAlreadyExists, pgErr.Detail), format, args...)
		case pgErrSerialization, pgErrDeadlock:
			return errors.Wrapf(errors.Wrap(errors.ErrConflict, pgErr.Message), format, args...)
		}
		return errors.Wrapf(errors.Wrapf(errors.ErrDatabase, "%s (%s)", pgErr.Message, pgErr.Code), format, args...)
	}
	return errors.Wrapf(errors.Wrap(errors.ErrDatabase, err.Error()), format, args...)
}
