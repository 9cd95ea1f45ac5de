/*
Package devchain simulates a custody account in process.

The account state lives in an iavl tree. Every submission is executed
immediately and committed as a new tree version, so the block number of a
receipt is the tree version and the block hash is the tree root. Receipts are
kept in a separate key value store.

The simulation verifies signatures and threshold the way the contract does,
consumes the nonce even when the inner call fails, executes MultiSend
batches all or nothing and emits the events of the real contracts. It is
meant for development and tests, not for custody of real funds.
*/
package devchain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/gateway"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/rafamiziara/superpool-sub007/store/iavl"
	"github.com/rafamiziara/superpool-sub007/x/batch"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

var (
	ownerPrefix  = []byte("safe/owner/")
	thresholdKey = []byte("safe/threshold")
	nonceKey     = []byte("safe/nonce")
	balancePfx   = []byte("balance/")
	pausedPfx    = []byte("paused/")
	receiptPfx   = []byte("receipt/")
)

// Config describes the simulated custody account. Owners, threshold and
// balance are only used when the state is empty.
type Config struct {
	ChainID   int64            `mapstructure:"chain_id"`
	Account   common.Address   `mapstructure:"account"`
	Owners    []common.Address `mapstructure:"owners"`
	Threshold uint32           `mapstructure:"threshold"`
	// Balance of the account in wei, as a decimal string.
	Balance string `mapstructure:"balance"`
	// MultiSend is the address batches are delegated to.
	MultiSend common.Address `mapstructure:"multi_send"`
	// Pausable lists contracts that implement pause and unpause. Any other
	// address behaves like an externally owned account.
	Pausable []common.Address `mapstructure:"pausable"`
}

// DefaultConfig returns a configuration of a fresh development chain.
func DefaultConfig() Config {
	return Config{
		ChainID:   1337,
		Account:   common.HexToAddress("0x5afe000000000000000000000000000000000001"),
		Threshold: 1,
		Balance:   "0",
		MultiSend: common.HexToAddress("0x5afe000000000000000000000000000000000002"),
	}
}

func (c Config) Validate() error {
	var errs error
	if c.ChainID <= 0 {
		errs = errors.AppendField(errs, "ChainID", errors.Wrap(errors.ErrValidation, "must be positive"))
	}
	if c.Account == (common.Address{}) {
		errs = errors.AppendField(errs, "Account", errors.ErrEmpty)
	}
	if len(c.Owners) == 0 {
		errs = errors.AppendField(errs, "Owners", errors.ErrEmpty)
	}
	seen := make(map[common.Address]bool)
	for _, o := range c.Owners {
		if o == (common.Address{}) || seen[o] {
			errs = errors.AppendField(errs, "Owners",
				errors.Wrapf(errors.ErrValidation, "invalid or duplicated owner %s", o.Hex()))
		}
		seen[o] = true
	}
	if c.Threshold == 0 || int(c.Threshold) > len(c.Owners) {
		errs = errors.AppendField(errs, "Threshold",
			errors.Wrapf(errors.ErrValidation, "must be between 1 and %d", len(c.Owners)))
	}
	if c.Balance != "" {
		if _, err := batch.ParseValue(c.Balance); err != nil {
			errs = errors.AppendField(errs, "Balance", err)
		}
	}
	return errs
}

// Chain is a simulated custody account. It implements multisig.ChainGateway.
type Chain struct {
	mu        sync.Mutex
	state     *iavl.CommitStore
	receipts  store.KVStore
	chainID   *big.Int
	account   common.Address
	multiSend common.Address
	pausable  map[common.Address]bool
}

var _ multisig.ChainGateway = (*Chain)(nil)

// New returns a chain using given state. An empty state is initialized
// from the configuration, otherwise the stored account is loaded.
func New(conf Config, state *iavl.CommitStore, receipts store.KVStore) (*Chain, error) {
	c := &Chain{
		state:     state,
		receipts:  receipts,
		chainID:   big.NewInt(conf.ChainID),
		account:   conf.Account,
		multiSend: conf.MultiSend,
		pausable:  make(map[common.Address]bool),
	}
	for _, p := range conf.Pausable {
		c.pausable[p] = true
	}

	ok, err := state.Has(thresholdKey)
	if err != nil {
		return nil, errors.Wrap(err, "state")
	}
	if ok {
		return c, nil
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "genesis")
	}
	for _, o := range conf.Owners {
		if err := state.Set(ownerKey(o), []byte{1}); err != nil {
			return nil, err
		}
	}
	if err := state.Set(thresholdKey, uint64Bytes(uint64(conf.Threshold))); err != nil {
		return nil, err
	}
	if err := state.Set(nonceKey, uint64Bytes(0)); err != nil {
		return nil, err
	}
	if conf.Balance != "" {
		balance, _ := batch.ParseValue(conf.Balance)
		if err := c.setBalance(conf.Account, balance); err != nil {
			return nil, err
		}
	}
	if _, err := state.Commit(); err != nil {
		return nil, errors.Wrap(err, "genesis")
	}
	return c, nil
}

// Domain returns the signing domain of the simulated account.
func (c *Chain) Domain() multisig.Domain {
	return multisig.Domain{ChainID: new(big.Int).Set(c.chainID), Account: c.account}
}

// Height returns the number of the latest block.
func (c *Chain) Height() int64 {
	return c.state.LatestVersion().Version
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) Account() common.Address {
	return c.account
}

func (c *Chain) Threshold(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.readUint64(thresholdKey)
	return uint32(n), err
}

func (c *Chain) Nonce(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readUint64(nonceKey)
}

func (c *Chain) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOwner(addr)
}

func (c *Chain) Owners(ctx context.Context) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners()
}

// Paused returns true if the contract at given address is paused.
func (c *Chain) Paused(addr common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Has(append(append([]byte(nil), pausedPfx...), addr.Bytes()...))
}

// Balance returns the balance of given address in wei.
func (c *Chain) Balance(addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(addr)
}

// Submit verifies and executes the record in a new block.
//
// A submission with a wrong nonce or id is rejected with
// ErrExecutionFailed and a submission without enough valid owner
// signatures with ErrInsufficientSignatures. In both cases nothing is
// written. A failing inner call still consumes the nonce and produces a
// receipt that is not successful.
func (c *Chain) Submit(ctx context.Context, rec *multisig.TransactionRecord) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.readUint64(nonceKey)
	if err != nil {
		return common.Hash{}, err
	}
	if rec.Nonce != nonce {
		return common.Hash{}, errors.Wrapf(errors.ErrExecutionFailed, "nonce %d, account at %d", rec.Nonce, nonce)
	}
	value := rec.Value
	if value == nil {
		value = new(big.Int)
	}
	id := multisig.TransactionHash(c.Domain(), rec.Target, value, rec.Data, rec.Operation, rec.Nonce)
	if id != rec.ID {
		return common.Hash{}, errors.Wrapf(errors.ErrExecutionFailed, "transaction hash %s does not match %s", id.Hex(), rec.ID.Hex())
	}
	if err := c.checkSignatures(id, rec.Signatures); err != nil {
		return common.Hash{}, err
	}

	l := superpool.GetLogger(ctx).With("module", "devchain", "tx", id.Hex(), "nonce", nonce)
	events, callErr := c.call(rec.Operation, rec.Target, value, rec.Data)
	if callErr != nil {
		c.state.Rollback()
		events = nil
		l.Info("inner call failed", "err", callErr)
	}
	if err := c.state.Set(nonceKey, uint64Bytes(nonce+1)); err != nil {
		c.state.Rollback()
		return common.Hash{}, err
	}
	if callErr == nil {
		events = append(events, gateway.Event(c.account, "ExecutionSuccess", "txHash", id, "payment", new(big.Int)))
	} else {
		events = append(events, gateway.Event(c.account, "ExecutionFailure", "txHash", id, "payment", new(big.Int)))
	}
	block, err := c.state.Commit()
	if err != nil {
		c.state.Rollback()
		return common.Hash{}, err
	}

	hash := common.BytesToHash(ethcrypto.Keccak256(
		common.LeftPadBytes(c.chainID.Bytes(), 32), id.Bytes(), uint64Bytes(uint64(block.Version))))
	receipt := &multisig.Receipt{
		TxHash:      hash,
		BlockNumber: uint64(block.Version),
		BlockHash:   common.BytesToHash(block.Hash),
		GasUsed:     gasUsed(rec),
		Success:     callErr == nil,
		Events:      events,
	}
	if callErr != nil {
		receipt.RevertReason = callErr.Error()
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrHuman, "receipt: %s", err)
	}
	if err := c.receipts.Set(receiptKey(hash), raw); err != nil {
		// The block exists, the caller must reconcile.
		return common.Hash{}, errors.Wrapf(errors.ErrChainUnavailable, "store receipt of %s: %s", hash.Hex(), err)
	}
	l.Info("block committed", "block", block.Version, "hash", hash.Hex(), "success", receipt.Success)
	return hash, nil
}

// AwaitConfirmation returns the receipt of a submission. Blocks are
// produced on submission, so there is nothing to wait for.
func (c *Chain) AwaitConfirmation(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	return c.Receipt(ctx, hash)
}

func (c *Chain) Receipt(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	raw, err := c.receipts.Get(receiptKey(hash))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrChainUnavailable, "receipt %s: %s", hash.Hex(), err)
	}
	if raw == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "receipt %s", hash.Hex())
	}
	var r multisig.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "receipt %s: %s", hash.Hex(), err)
	}
	return &r, nil
}

// checkSignatures requires at least threshold distinct owners among the
// signers of id.
func (c *Chain) checkSignatures(id superpool.TxID, sigs []multisig.Signature) error {
	threshold, err := c.readUint64(thresholdKey)
	if err != nil {
		return err
	}
	signed := make(map[common.Address]bool)
	for _, s := range sigs {
		addr, err := crypto.Recover(id, s.Signature)
		if err != nil {
			return errors.Wrapf(errors.ErrExecutionFailed, "signature of %s: %s", s.Signer.Hex(), err)
		}
		ok, err := c.isOwner(addr)
		if err != nil {
			return err
		}
		if ok {
			signed[addr] = true
		}
	}
	if uint64(len(signed)) < threshold {
		return errors.Wrapf(errors.ErrInsufficientSignatures, "%d of %d owners signed", len(signed), threshold)
	}
	return nil
}

func gasUsed(rec *multisig.TransactionRecord) uint64 {
	gas := uint64(21000 + 5000*len(rec.Signatures))
	for _, b := range rec.Data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

func (c *Chain) isOwner(addr common.Address) (bool, error) {
	return c.state.Has(ownerKey(addr))
}

func (c *Chain) owners() ([]common.Address, error) {
	end := append([]byte(nil), ownerPrefix...)
	end[len(end)-1]++
	it, err := c.state.Iterator(ownerPrefix, end)
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var out []common.Address
	for {
		key, _, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, common.BytesToAddress(key[len(ownerPrefix):]))
	}
}

func (c *Chain) readUint64(key []byte) (uint64, error) {
	raw, err := c.state.Get(key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.Wrapf(errors.ErrDatabase, "%s has %d bytes", key, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (c *Chain) balance(addr common.Address) (*big.Int, error) {
	raw, err := c.state.Get(append(append([]byte(nil), balancePfx...), addr.Bytes()...))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (c *Chain) setBalance(addr common.Address, v *big.Int) error {
	return c.state.Set(append(append([]byte(nil), balancePfx...), addr.Bytes()...), v.Bytes())
}

func ownerKey(addr common.Address) []byte {
	return append(append([]byte(nil), ownerPrefix...), addr.Bytes()...)
}

func receiptKey(hash common.Hash) []byte {
	return append(append([]byte(nil), receiptPfx...), hash.Bytes()...)
}

func uint64Bytes(n uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, n)
	return out
}
