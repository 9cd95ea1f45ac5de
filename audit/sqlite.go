package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rafamiziara/superpool-sub007/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteJournal stores entries in a SQLite database. Entries are append only
// and keep their insertion order.
type SQLiteJournal struct {
	mu  sync.Mutex
	db  *sql.DB
	seq int64
}

var _ Journal = (*SQLiteJournal)(nil)

// OpenSQLite creates or opens a journal database at given path. Use
// ":memory:" for a journal that lives only as long as the process.
func OpenSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %s: %s", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.ErrDatabase, "connect %s: %s", path, err)
	}
	// SQLite allows a single writer. A single connection also keeps an in
	// memory database alive between queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(errors.ErrDatabase, "%s: %s", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.ErrDatabase, "schema: %s", err)
	}

	var seq sql.NullInt64
	if err := db.QueryRow("SELECT MAX(seq) FROM audit_entries").Scan(&seq); err != nil {
		db.Close()
		return nil, errors.Wrapf(errors.ErrDatabase, "sequence: %s", err)
	}
	return &SQLiteJournal{db: db, seq: seq.Int64}, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	e = Prepare(ctx, e)

	j.mu.Lock()
	defer j.mu.Unlock()

	var signer string
	if e.Signer != (common.Address{}) {
		signer = e.Signer.Hex()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, seq, at, request_id, action, tx_id, caller, signer,
			 from_status, to_status, outcome, error_kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), j.seq+1, e.Time.UnixNano(), e.RequestID, e.Action,
		e.TxID.Hex(), e.Caller.Hex(), signer,
		e.FromStatus, e.ToStatus, string(e.Outcome), e.ErrorKind, e.Message,
	)
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "insert audit entry: %s", err)
	}
	j.seq++
	return nil
}

// ByTransaction returns all entries of given transaction, oldest first.
func (j *SQLiteJournal) ByTransaction(ctx context.Context, id common.Hash) ([]Entry, error) {
	return j.query(ctx, `
		SELECT id, at, request_id, action, tx_id, caller, signer,
		       from_status, to_status, outcome, error_kind, message
		FROM audit_entries WHERE tx_id = ? ORDER BY seq`, id.Hex())
}

// Recent returns up to limit most recent entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, `
		SELECT id, at, request_id, action, tx_id, caller, signer,
		       from_status, to_status, outcome, error_kind, message
		FROM audit_entries ORDER BY seq DESC LIMIT ?`, limit)
}

func (j *SQLiteJournal) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "query audit entries: %s", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			id, tx, caller, sig string
			outcome             string
			at                  int64
		)
		if err := rows.Scan(&id, &at, &e.RequestID, &e.Action, &tx, &caller, &sig,
			&e.FromStatus, &e.ToStatus, &outcome, &e.ErrorKind, &e.Message); err != nil {
			return nil, errors.Wrapf(errors.ErrDatabase, "scan audit entry: %s", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(errors.ErrDatabase, "entry id %q: %s", id, err)
		}
		e.Time = time.Unix(0, at).UTC()
		e.TxID = common.HexToHash(tx)
		e.Caller = common.HexToAddress(caller)
		if sig != "" {
			e.Signer = common.HexToAddress(sig)
		}
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "iterate audit entries: %s", err)
	}
	return out, nil
}
