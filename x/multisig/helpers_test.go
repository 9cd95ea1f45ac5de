package multisig_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/audit"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/custodytest"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/stretchr/testify/require"
)

var (
	custodyAccount = common.HexToAddress("0x9999999999999999999999999999999999999999")
	multiSend      = common.HexToAddress("0x8888888888888888888888888888888888888888")
	pauseTarget    = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
)

type fixture struct {
	t       testing.TB
	clock   *custodytest.Clock
	gw      *custodytest.Gateway
	store   *multisig.KVRecordStore
	journal *audit.MemJournal
	coord   *multisig.Coordinator
	owners  []*crypto.Secp256k1
	// outsider is not an owner of the custody account.
	outsider *crypto.Secp256k1
}

func newFixture(t testing.TB, threshold uint32, owners int, configure ...func(*multisig.Config)) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		clock:    custodytest.NewClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		store:    multisig.NewKVRecordStore(store.NewMemStore()),
		journal:  &audit.MemJournal{},
		outsider: custodytest.SeededKey("outsider"),
	}
	for i := 0; i < owners; i++ {
		f.owners = append(f.owners, custodytest.SeededKey(string(rune('a'+i))+"-owner"))
	}
	addrs := make([]common.Address, len(f.owners))
	for i, k := range f.owners {
		addrs[i] = k.Address()
	}
	f.gw = custodytest.NewGateway(custodyAccount, threshold, addrs...)

	conf := multisig.DefaultConfig()
	conf.MaxCASRetries = 10
	conf.MultiSend = multiSend
	for _, fn := range configure {
		fn(&conf)
	}
	coord, err := multisig.NewCoordinator(multisig.Deps{
		Store:   f.store,
		Gateway: f.gw,
		Journal: f.journal,
		Domain:  f.gw.Domain(),
		Config:  conf,
	})
	require.NoError(t, err)
	f.coord = coord
	return f
}

// as returns a context authenticated as given key at the current clock time.
func (f *fixture) as(k crypto.Signer) context.Context {
	return custodytest.AsCaller(f.clock.Context(context.Background()), k.Address())
}

func (f *fixture) propose(data []byte, description string) *multisig.TransactionRecord {
	f.t.Helper()
	rec, err := f.coord.Propose(f.as(f.owners[0]), multisig.ProposalRequest{
		Target:      pauseTarget,
		Value:       big.NewInt(0),
		Data:        data,
		Operation:   superpool.Call,
		Description: description,
	})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) sign(id superpool.TxID, k crypto.Signer) *multisig.TransactionRecord {
	f.t.Helper()
	rec, err := f.coord.AddSignature(f.as(k), id, k.Address(), custodytest.Sign(f.t, k, id))
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) status(id superpool.TxID) multisig.Status {
	f.t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(f.t, err)
	return rec.Status
}

// ready proposes a record and signs it with the first threshold owners.
func (f *fixture) ready(description string, threshold int) *multisig.TransactionRecord {
	f.t.Helper()
	rec := f.propose([]byte{0x12, 0x34, 0x56, 0x78}, description)
	for _, k := range f.owners[:threshold] {
		rec = f.sign(rec.ID, k)
	}
	require.Equal(f.t, multisig.StatusReadyToExecute, rec.Status)
	return rec
}

// signFor returns the signature of the i-th owner over the record id.
func signFor(t testing.TB, f *fixture, i int, rec *multisig.TransactionRecord) []byte {
	t.Helper()
	return custodytest.Sign(t, f.owners[i], rec.ID)
}

// transitions returns the accepted journal entries of given action that
// moved a record between given statuses.
func (f *fixture) transitions(action string, from, to multisig.Status) []audit.Entry {
	var out []audit.Entry
	for _, e := range f.journal.Entries() {
		if e.Action == action && e.Outcome == audit.Accepted && e.FromStatus == from.String() && e.ToStatus == to.String() {
			out = append(out, e)
		}
	}
	return out
}

func toSigners(keys []*crypto.Secp256k1) []crypto.Signer {
	out := make([]crypto.Signer, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
