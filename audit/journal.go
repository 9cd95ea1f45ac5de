/*
Package audit records every attempted mutation of a transaction record,
accepted or rejected, so that the history of a record can be reviewed later
even though callers only ever see the error kind.
*/
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/tendermint/tendermint/libs/log"
)

// Outcome of an audited action.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
)

// Entry is a single audit journal entry.
type Entry struct {
	ID        uuid.UUID
	Time      time.Time
	RequestID string
	// Action is the name of the coordinator operation, for example
	// "add_signature".
	Action string
	TxID   common.Hash
	Caller common.Address
	Signer common.Address
	// FromStatus and ToStatus describe the attempted transition. They are
	// equal when the action does not change the status.
	FromStatus string
	ToStatus   string
	Outcome    Outcome
	// ErrorKind is the root error description of a rejected action.
	ErrorKind string
	Message   string
}

// Journal is an audit sink. Implementations must be safe for concurrent use.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}

// Prepare fills in the fields of an entry that are common to every journal:
// a fresh id, the time as seen by the context and the request id.
func Prepare(ctx context.Context, e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = superpool.Now(ctx).UTC()
	}
	if e.RequestID == "" {
		e.RequestID = superpool.GetRequestID(ctx)
	}
	return e
}

// NopJournal discards all entries.
type NopJournal struct{}

func (NopJournal) Record(context.Context, Entry) error { return nil }

// LogJournal writes entries to a logger.
type LogJournal struct {
	logger log.Logger
}

// NewLogJournal returns a journal writing to given logger.
func NewLogJournal(logger log.Logger) *LogJournal {
	return &LogJournal{logger: logger.With("module", "audit")}
}

func (j *LogJournal) Record(ctx context.Context, e Entry) error {
	e = Prepare(ctx, e)
	kv := []interface{}{
		"id", e.ID.String(),
		"action", e.Action,
		"tx", e.TxID.Hex(),
		"caller", e.Caller.Hex(),
		"from", e.FromStatus,
		"to", e.ToStatus,
	}
	if e.Signer != (common.Address{}) {
		kv = append(kv, "signer", e.Signer.Hex())
	}
	if e.RequestID != "" {
		kv = append(kv, "request", e.RequestID)
	}
	if e.Outcome == Rejected {
		kv = append(kv, "kind", e.ErrorKind, "err", e.Message)
		j.logger.Info("mutation rejected", kv...)
		return nil
	}
	j.logger.Info("mutation accepted", kv...)
	return nil
}

// MemJournal keeps all entries in memory.
type MemJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *MemJournal) Record(ctx context.Context, e Entry) error {
	e = Prepare(ctx, e)
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	return nil
}

// Entries returns a copy of all recorded entries, oldest first.
func (j *MemJournal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Multi writes every entry to all given journals. All journals are
// attempted, the first error is returned.
type Multi []Journal

func (m Multi) Record(ctx context.Context, e Entry) error {
	e = Prepare(ctx, e)
	var first error
	for _, j := range m {
		if err := j.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
