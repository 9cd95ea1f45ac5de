package multisig

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/audit"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// Deps groups the collaborators shared by all components of this package.
type Deps struct {
	Store   RecordStore
	Gateway ChainGateway
	// Journal receives an entry for every attempted mutation. It is
	// optional.
	Journal audit.Journal
	Domain  Domain
	Config  Config
}

func (d Deps) journal() audit.Journal {
	if d.Journal == nil {
		return audit.NopJournal{}
	}
	return d.Journal
}

func logger(ctx context.Context) log.Logger {
	return superpool.GetLogger(ctx).With("module", "multisig")
}

// attempt describes a mutation for the audit journal.
type attempt struct {
	action string
	id     superpool.TxID
	signer common.Address
	from   Status
	to     Status
}

// report writes the outcome of a mutation to the journal and the log. A
// failing journal is logged but never fails the operation itself.
func (d Deps) report(ctx context.Context, a attempt, err error) {
	caller, _ := superpool.GetCaller(ctx)
	e := audit.Entry{
		Action:     a.action,
		TxID:       a.id,
		Caller:     caller,
		Signer:     a.signer,
		FromStatus: statusName(a.from),
		ToStatus:   statusName(a.to),
		Outcome:    audit.Accepted,
	}
	l := logger(ctx).With("action", a.action, "tx", a.id.Hex())
	if err != nil {
		_, kind, msg := errors.Info(err, false)
		e.Outcome = audit.Rejected
		e.ErrorKind = kind
		e.Message = msg
		l.Info("mutation rejected", "caller", caller.Hex(), "signer", a.signer.Hex(),
			"from", e.FromStatus, "to", e.ToStatus, "kind", kind, "err", msg)
	} else {
		l.Debug("mutation accepted", "from", e.FromStatus, "to", e.ToStatus)
	}
	if jerr := d.journal().Record(ctx, e); jerr != nil {
		l.Error("cannot write audit entry", "err", jerr)
	}
}

func statusName(s Status) string {
	if s == 0 {
		return ""
	}
	return s.String()
}

// mutation changes a fresh copy of a record. It returns false if the record
// does not need to be written.
type mutation func(rec *TransactionRecord) (bool, error)

// updateRecord runs the read, verify and mutate cycle against the store. On
// a version conflict the whole cycle is repeated, up to retries times, after
// which ErrConflict is returned. Errors returned by mutate are returned as
// they are and stop the cycle.
func updateRecord(ctx context.Context, s RecordStore, id superpool.TxID, retries int, mutate mutation) (*TransactionRecord, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 0; i < retries; i++ {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := rec.Version
		changed, err := mutate(rec)
		if err != nil {
			return nil, err
		}
		if !changed {
			return rec, nil
		}
		rec.UpdatedAt = superpool.AsUnixTime(superpool.Now(ctx))
		switch err := s.CompareAndSwap(ctx, expected, rec); {
		case err == nil:
			return rec, nil
		case errors.ErrConflict.Is(err):
			lastErr = err
			logger(ctx).Debug("version conflict", "tx", id.Hex(), "attempt", i+1)
		default:
			return nil, err
		}
	}
	return nil, errors.Wrapf(lastErr, "gave up after %d attempts", retries)
}

// withTimeout returns a context bounded by given duration. A zero duration
// does not add any deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// chainErr makes sure a gateway failure that does not declare its kind is
// reported as the chain being unavailable.
func chainErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, kind, _ := errors.Info(err, false); kind != "internal" {
		return errors.Wrap(err, op)
	}
	return errors.Wrapf(errors.ErrChainUnavailable, "%s: %s", op, err)
}
