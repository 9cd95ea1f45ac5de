package multisig

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"golang.org/x/crypto/sha3"
)

var (
	// DomainTypeHash is the EIP-712 type hash of the custody account domain.
	DomainTypeHash = keccak([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))

	// SafeTxTypeHash is the EIP-712 type hash of a custody account
	// transaction. Gas related fields are part of the type but always zero
	// here, because the executor pays for gas itself.
	SafeTxTypeHash = keccak([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// Domain identifies a custody account. Two accounts never share a domain, so
// the same operation proposed for different accounts gets different ids.
type Domain struct {
	ChainID *big.Int
	Account common.Address
}

// Separator returns the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return keccak(
		DomainTypeHash.Bytes(),
		word(chainID),
		common.LeftPadBytes(d.Account.Bytes(), 32),
	)
}

// TransactionHash returns the canonical id of an operation. It is a pure
// function of the domain and its arguments and it is the message that every
// owner signs.
func TransactionHash(d Domain, target common.Address, value *big.Int, data []byte, op superpool.Operation, nonce uint64) superpool.TxID {
	if value == nil {
		value = new(big.Int)
	}
	zero := make([]byte, 32)
	structHash := keccak(
		SafeTxTypeHash.Bytes(),
		common.LeftPadBytes(target.Bytes(), 32),
		word(value),
		keccak(data).Bytes(),
		word(big.NewInt(int64(op))),
		zero, // safeTxGas
		zero, // baseGas
		zero, // gasPrice
		zero, // gasToken
		zero, // refundReceiver
		word(new(big.Int).SetUint64(nonce)),
	)
	return keccak([]byte{0x19, 0x01}, d.Separator().Bytes(), structHash.Bytes())
}

// hash computes the canonical id of this record within given domain.
func (r *TransactionRecord) hash(d Domain) superpool.TxID {
	return TransactionHash(d, r.Target, r.Value, r.Data, r.Operation, r.Nonce)
}

func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func keccak(chunks ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}
