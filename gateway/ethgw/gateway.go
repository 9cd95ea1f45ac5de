/*
Package ethgw implements multisig.ChainGateway on top of an Ethereum JSON-RPC
node. Reads are eth_call requests against the custody account contract.
Executions are execTransaction calls sent from a relayer account, which
only pays for gas. The relayer needs no ownership of the custody account.
*/
package ethgw

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/gateway"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

// Config describes how to reach the custody account.
type Config struct {
	// URL of the JSON-RPC endpoint.
	URL     string         `mapstructure:"url"`
	Account common.Address `mapstructure:"account"`
	// RelayerKey is the hex encoded private key of the account paying for
	// execution gas.
	RelayerKey   string        `mapstructure:"relayer_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// GasLimit of execution transactions. Zero means estimate.
	GasLimit uint64 `mapstructure:"gas_limit"`
}

func (c Config) Validate() error {
	var errs error
	if c.URL == "" {
		errs = errors.AppendField(errs, "URL", errors.ErrEmpty)
	}
	if c.Account == (common.Address{}) {
		errs = errors.AppendField(errs, "Account", errors.ErrEmpty)
	}
	if c.RelayerKey == "" {
		errs = errors.AppendField(errs, "RelayerKey", errors.ErrEmpty)
	} else if _, err := crypto.KeyFromHex(c.RelayerKey); err != nil {
		errs = errors.AppendField(errs, "RelayerKey", err)
	}
	if c.PollInterval < 0 {
		errs = errors.AppendField(errs, "PollInterval", errors.Wrap(errors.ErrValidation, "must not be negative"))
	}
	return errs
}

// Backend is the node functionality used by the gateway. *ethclient.Client
// implements it.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Gateway is a multisig.ChainGateway backed by a node.
type Gateway struct {
	backend  Backend
	account  common.Address
	safe     *bind.BoundContract
	relayer  *crypto.Secp256k1
	chainID  *big.Int
	poll     time.Duration
	gasLimit uint64
}

var _ multisig.ChainGateway = (*Gateway)(nil)

// Dial connects to the node and returns a gateway for the configured
// custody account.
func Dial(ctx context.Context, conf Config) (*Gateway, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, conf.URL)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrChainUnavailable, "dial %s: %s", conf.URL, err)
	}
	return New(ctx, client, conf)
}

// New returns a gateway using given backend. The chain id is requested
// once and cached.
func New(ctx context.Context, backend Backend, conf Config) (*Gateway, error) {
	relayer, err := crypto.KeyFromHex(conf.RelayerKey)
	if err != nil {
		return nil, errors.Field("RelayerKey", err, "")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, classify(err, "chain id")
	}
	poll := conf.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	return &Gateway{
		backend:  backend,
		account:  conf.Account,
		safe:     bind.NewBoundContract(conf.Account, gateway.SafeABI, backend, backend, backend),
		relayer:  relayer,
		chainID:  chainID,
		poll:     poll,
		gasLimit: conf.GasLimit,
	}, nil
}

// Domain returns the signing domain of the custody account.
func (g *Gateway) Domain() multisig.Domain {
	return multisig.Domain{ChainID: new(big.Int).Set(g.chainID), Account: g.account}
}

func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(g.chainID), nil
}

func (g *Gateway) Account() common.Address {
	return g.account
}

func (g *Gateway) Threshold(ctx context.Context) (uint32, error) {
	out, err := g.call(ctx, "getThreshold")
	if err != nil {
		return 0, err
	}
	n := out[0].(*big.Int)
	if !n.IsUint64() || n.Uint64() > uint64(^uint32(0)) {
		return 0, errors.Wrapf(errors.ErrChainUnavailable, "threshold %s out of range", n)
	}
	return uint32(n.Uint64()), nil
}

func (g *Gateway) Nonce(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "nonce")
	if err != nil {
		return 0, err
	}
	n := out[0].(*big.Int)
	if !n.IsUint64() {
		return 0, errors.Wrapf(errors.ErrChainUnavailable, "nonce %s out of range", n)
	}
	return n.Uint64(), nil
}

func (g *Gateway) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	out, err := g.call(ctx, "isOwner", addr)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (g *Gateway) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := g.call(ctx, "getOwners")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := g.safe.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, classify(err, method)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errors.ErrChainUnavailable, "%s: empty result", method)
	}
	return out, nil
}

// Submit sends execTransaction with the packed owner signatures. Gas
// refunds are not used, so all refund parameters are zero.
func (g *Gateway) Submit(ctx context.Context, rec *multisig.TransactionRecord) (common.Hash, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.relayer.ECDSA(), g.chainID)
	if err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrHuman, "transactor: %s", err)
	}
	opts.Context = ctx
	opts.GasLimit = g.gasLimit

	value := rec.Value
	if value == nil {
		value = new(big.Int)
	}
	zero := new(big.Int)
	tx, err := g.safe.Transact(opts, "execTransaction",
		rec.Target, value, rec.Data, uint8(rec.Operation),
		zero, zero, zero, common.Address{}, common.Address{},
		gateway.PackSignatures(rec.Signatures))
	if err != nil {
		return common.Hash{}, classify(err, "execTransaction")
	}
	superpool.GetLogger(ctx).With("module", "ethgw").
		Info("execution sent", "tx", rec.ID.Hex(), "hash", tx.Hash().Hex(), "relayer_nonce", tx.Nonce())
	return tx.Hash(), nil
}

// AwaitConfirmation polls for the receipt until it exists or the context
// is done.
func (g *Gateway) AwaitConfirmation(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		r, err := g.Receipt(ctx, hash)
		if !errors.ErrNotFound.Is(err) {
			return r, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(errors.ErrChainUnavailable, "waiting for %s: %s", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Gateway) Receipt(ctx context.Context, hash common.Hash) (*multisig.Receipt, error) {
	r, err := g.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, errors.Wrapf(errors.ErrNotFound, "receipt %s", hash.Hex())
		}
		return nil, classify(err, "receipt")
	}
	return g.convert(r), nil
}

// convert translates a node receipt. The custody account does not revert
// when the inner call fails, it emits ExecutionFailure instead. Both count
// as a failed execution.
func (g *Gateway) convert(r *types.Receipt) *multisig.Receipt {
	out := &multisig.Receipt{
		TxHash:    r.TxHash,
		BlockHash: r.BlockHash,
		GasUsed:   r.GasUsed,
		Success:   r.Status == types.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if !out.Success {
		out.RevertReason = "transaction reverted"
	}
	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		ev := gateway.DecodeLog(*l)
		if ev.Name == "ExecutionFailure" && l.Address == g.account {
			out.Success = false
			out.RevertReason = "inner call failed"
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

// Safe revert codes meaning the signatures do not satisfy the threshold.
var signatureCodes = []string{"GS020", "GS021", "GS022", "GS023", "GS024", "GS025", "GS026"}

// classify maps a node error to the error kinds expected by the
// coordinator. A revert during gas estimation is an explicit rejection, so
// nothing was sent. Everything else is a transport problem.
func classify(err error, op string) error {
	msg := err.Error()
	if strings.Contains(msg, "execution reverted") {
		for _, code := range signatureCodes {
			if strings.Contains(msg, code) {
				return errors.Wrapf(errors.ErrInsufficientSignatures, "%s: %s", op, msg)
			}
		}
		return errors.Wrapf(errors.ErrExecutionFailed, "%s: %s", op, msg)
	}
	if errors.ErrNotFound.Is(err) || errors.ErrChainUnavailable.Is(err) {
		return errors.Wrap(err, op)
	}
	return errors.Wrapf(errors.ErrChainUnavailable, "%s: %s", op, msg)
}
