package custodytest

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

// Gateway is an in memory multisig.ChainGateway with programmable failures.
//
// By default a submission is verified against the current owners and
// threshold, is included immediately and succeeds. Set the error fields to
// simulate failures.
type Gateway struct {
	mu sync.Mutex

	chainID   *big.Int
	account   common.Address
	owners    map[common.Address]bool
	threshold uint32
	nonce     uint64

	receipts map[common.Hash]*multisig.Receipt
	submits  []*multisig.TransactionRecord

	// QueryErr is returned by all read only calls.
	QueryErr error
	// SubmitErr is returned by Submit, nothing is submitted.
	SubmitErr error
	// AwaitErr is returned by AwaitConfirmation. The submission is still
	// included and can be found with Receipt.
	AwaitErr error
	// Revert makes every included submission revert with given reason.
	Revert string
	// Hold, when not nil, blocks Submit until it is closed.
	Hold chan struct{}
	// Events are attached to every successful receipt.
	Events []multisig.Event
	// Pending keeps submissions out of blocks. Receipt returns ErrNotFound
	// for them until Include is called.
	Pending bool
	pending map[common.Hash]*multisig.Receipt
}

var _ multisig.ChainGateway = (*Gateway)(nil)

// NewGateway returns a gateway of an account with given owners and
// threshold on chain 1.
func NewGateway(account common.Address, threshold uint32, owners ...common.Address) *Gateway {
	g := &Gateway{
		chainID:   big.NewInt(1),
		account:   account,
		owners:    make(map[common.Address]bool),
		threshold: threshold,
		receipts:  make(map[common.Hash]*multisig.Receipt),
		pending:   make(map[common.Hash]*multisig.Receipt),
	}
	for _, o := range owners {
		g.owners[o] = true
	}
	return g
}

// Domain returns the domain of the simulated account.
func (g *Gateway) Domain() multisig.Domain {
	return multisig.Domain{ChainID: new(big.Int).Set(g.chainID), Account: g.account}
}

// SetThreshold changes the number of required signatures.
func (g *Gateway) SetThreshold(n uint32) {
	g.mu.Lock()
	g.threshold = n
	g.mu.Unlock()
}

// SetNonce changes the account nonce.
func (g *Gateway) SetNonce(n uint64) {
	g.mu.Lock()
	g.nonce = n
	g.mu.Unlock()
}

// AddOwner adds an owner.
func (g *Gateway) AddOwner(addr common.Address) {
	g.mu.Lock()
	g.owners[addr] = true
	g.mu.Unlock()
}

// RemoveOwner removes an owner.
func (g *Gateway) RemoveOwner(addr common.Address) {
	g.mu.Lock()
	delete(g.owners, addr)
	g.mu.Unlock()
}

// Submissions returns all records passed to Submit that reached the
// account.
func (g *Gateway) Submissions() []*multisig.TransactionRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*multisig.TransactionRecord(nil), g.submits...)
}

// Include moves all pending submissions into a block.
func (g *Gateway) Include() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for h, r := range g.pending {
		g.receipts[h] = r
		delete(g.pending, h)
	}
}

func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	return new(big.Int).Set(g.chainID), nil
}

func (g *Gateway) Account() common.Address {
	return g.account
}

func (g *Gateway) Threshold(ctx context.Context) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return 0, g.QueryErr
	}
	return g.threshold, nil
}

func (g *Gateway) Nonce(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return 0, g.QueryErr
	}
	return g.nonce, nil
}

func (g *Gateway) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return false, g.QueryErr
	}
	return g.owners[addr], nil
}

func (g *Gateway) Owners(ctx context.Context) ([]common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	out := make([]common.Address, 0, len(g.owners))
	for o := range g.owners {
		out = append(out, o)
	}
	return out, nil
}

func (g *Gateway) Submit(ctx context.Context, rec *multisig.TransactionRecord) (common.Hash, error) {
	g.mu.Lock()
	hold := g.Hold
	g.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return common.Hash{}, errors.Wrap(errors.ErrChainUnavailable, ctx.Err().Error())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		return common.Hash{}, g.SubmitErr
	}
	if rec.Nonce != g.nonce {
		return common.Hash{}, errors.Wrapf(errors.ErrExecutionFailed, "nonce %d, account at %d", rec.Nonce, g.nonce)
	}
	var valid uint32
	for _, s := range rec.Signatures {
		if g.owners[s.Signer] && crypto.Verify(rec.ID, s.Signer, s.Signature) == nil {
			valid++
		}
	}
	if valid < g.threshold {
		return common.Hash{}, errors.Wrapf(errors.ErrInsufficientSignatures, "%d of %d", valid, g.threshold)
	}

	g.submits = append(g.submits, rec.Copy())
	g.nonce++

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(len(g.submits)))
	hash := common.BytesToHash(ethcrypto.Keccak256(rec.ID.Bytes(), seq[:]))
	receipt := &multisig.Receipt{
		TxHash:      hash,
		BlockNumber: uint64(len(g.submits)),
		BlockHash:   common.BytesToHash(ethcrypto.Keccak256(hash.Bytes())),
		GasUsed:     21000,
		Success:     g.Revert == "",
	}
	if g.Revert != "" {
		receipt.RevertReason = g.Revert
	} else {
		receipt.Events = append([]multisig.Event(nil), g.Events...)
	}
	if g.Pending {
		g.pending[hash] = receipt
	} else {
		g.receipts[hash] = receipt
	}
	return hash, nil
}

func (g *Gateway) AwaitConfirmation(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.AwaitErr != nil {
		return nil, g.AwaitErr
	}
	r, ok := g.receipts[hash]
	if !ok {
		return nil, errors.Wrapf(errors.ErrChainUnavailable, "%s not included", hash.Hex())
	}
	c := *r
	return &c, nil
}

func (g *Gateway) Receipt(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	r, ok := g.receipts[hash]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "receipt %s", hash.Hex())
	}
	c := *r
	return &c, nil
}
