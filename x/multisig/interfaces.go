package multisig

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
)

// RecordStore persists transaction records.
//
// Implementations must be safe for concurrent use and every method must be
// linearizable per record id.
type RecordStore interface {
	// Create stores a new record with Version set to 1. It fails with
	// ErrAlreadyExists if a record with the same id is stored and with
	// ErrConflict if another open record holds the same nonce.
	Create(ctx context.Context, rec *TransactionRecord) error

	// Supersede replaces an expired or failed record with a new proposal
	// of the same transaction, which necessarily has the same id. On
	// success rec.Version is set to expectedVersion+1. It fails with
	// ErrConflict if the stored version is different or another open
	// record holds the nonce, and with ErrInvalidState if the stored
	// record cannot be superseded.
	Supersede(ctx context.Context, expectedVersion uint64, rec *TransactionRecord) error

	// Get returns a copy of the stored record or ErrNotFound.
	Get(ctx context.Context, id superpool.TxID) (*TransactionRecord, error)

	// CompareAndSwap stores rec only if the stored version is equal to
	// expectedVersion. On success rec.Version is set to expectedVersion+1.
	// It fails with ErrConflict if the stored version is different and
	// with ErrNotFound if there is no such record.
	CompareAndSwap(ctx context.Context, expectedVersion uint64, rec *TransactionRecord) error

	// List returns records matching the query, newest first, together with
	// the total number of matching records.
	List(ctx context.Context, q ListQuery) ([]*TransactionRecord, int, error)
}

// ListQuery filters records. Zero values do not filter.
type ListQuery struct {
	// Statuses limits the result to records in any of given statuses.
	Statuses  []Status
	CreatedBy *common.Address
	// NeedsReconciliation limits the result to flagged records.
	NeedsReconciliation bool

	Offset int
	// Limit of zero returns all matching records.
	Limit int
}

// Match returns true if the record passes all filters of this query.
func (q ListQuery) Match(r *TransactionRecord) bool {
	if len(q.Statuses) > 0 {
		var ok bool
		for _, s := range q.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.CreatedBy != nil && r.CreatedBy != *q.CreatedBy {
		return false
	}
	if q.NeedsReconciliation && !r.NeedsReconciliation {
		return false
	}
	return true
}

// Page returns the window of records selected by Offset and Limit.
func (q ListQuery) Page(all []*TransactionRecord) []*TransactionRecord {
	if q.Offset >= len(all) {
		return nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}
	return all
}

// newerFirst orders records by creation time and nonce, newest first.
func newerFirst(a, b *TransactionRecord) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	if a.Nonce != b.Nonce {
		return a.Nonce > b.Nonce
	}
	return a.ID.Hex() > b.ID.Hex()
}

// ChainGateway gives access to the custody account on the chain.
//
// Transport failures and timeouts must be reported as ErrChainUnavailable.
// An explicit rejection of a submission by the chain must be reported as
// ErrExecutionFailed or ErrInsufficientSignatures. Any other error returned
// by Submit is treated as an unknown outcome.
type ChainGateway interface {
	// ChainID returns the id of the chain the custody account lives on.
	ChainID(ctx context.Context) (*big.Int, error)

	// Account returns the custody account address.
	Account() common.Address

	// Threshold returns the number of owner signatures currently required.
	Threshold(ctx context.Context) (uint32, error)

	// Nonce returns the nonce of the next transaction the custody account
	// will execute.
	Nonce(ctx context.Context) (uint64, error)

	// IsOwner returns true if given address currently is an owner.
	IsOwner(ctx context.Context, addr common.Address) (bool, error)

	// Owners returns the current owner set.
	Owners(ctx context.Context) ([]common.Address, error)

	// Submit sends the record with its signatures for execution and
	// returns the submission hash.
	Submit(ctx context.Context, rec *TransactionRecord) (common.Hash, error)

	// AwaitConfirmation blocks until the submission is included in a block
	// or the context is done.
	AwaitConfirmation(ctx context.Context, hash common.Hash) (*Receipt, error)

	// Receipt returns the receipt of a submission or ErrNotFound if the
	// submission is not known to be included yet.
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Receipt is the outcome of an included submission.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	GasUsed     uint64
	// Success is false when the execution reverted.
	Success      bool
	RevertReason string
	Events       []Event
}
