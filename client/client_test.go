package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/custodytest"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	custodyAccount = common.HexToAddress("0x9999999999999999999999999999999999999999")
	pauseTarget    = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
)

func newService(t *testing.T, threshold uint32, owners ...*crypto.Secp256k1) (string, *custodytest.Gateway) {
	t.Helper()
	gw := custodytest.NewGateway(custodyAccount, threshold, custodytest.Addresses(toSigners(owners)...)...)
	coord, err := multisig.NewCoordinator(multisig.Deps{
		Store:   multisig.NewKVRecordStore(store.NewMemStore()),
		Gateway: gw,
		Domain:  gw.Domain(),
		Config:  multisig.DefaultConfig(),
	})
	require.NoError(t, err)

	var conf api.AuthConfig
	for _, k := range owners {
		conf.Keys = append(conf.Keys, api.KeyConfig{Key: keyOf(k), Address: k.Address()})
	}
	srv := httptest.NewServer(api.NewRouter(coord, api.NewStaticKeyAuthenticator(conf), log.NewNopLogger(), 1<<20))
	t.Cleanup(srv.Close)
	return srv.URL, gw
}

func keyOf(k *crypto.Secp256k1) string {
	return "key-" + k.Address().Hex()
}

func toSigners(keys []*crypto.Secp256k1) []crypto.Signer {
	out := make([]crypto.Signer, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func TestClientFlow(t *testing.T) {
	alice := custodytest.SeededKey("alice")
	bob := custodytest.SeededKey("bob")
	url, _ := newService(t, 2, alice, bob)
	ctx := context.Background()

	ac := New(url+"/", keyOf(alice))
	bc := New(url, keyOf(bob))

	p, err := ac.Propose(ctx, api.ProposeRequest{
		To:          pauseTarget.Hex(),
		Data:        hexutil.Bytes{0x84, 0x56, 0xcb, 0x59},
		Description: "pause",
	})
	require.NoError(t, err)
	require.Equal(t, multisig.StatusPendingSignatures, p.Status)

	for _, sc := range []struct {
		c *Client
		k *crypto.Secp256k1
	}{{ac, alice}, {bc, bob}} {
		_, err := sc.c.AddSignature(ctx, p.ID, api.SignatureRequest{
			Signer:    sc.k.Address().Hex(),
			Signature: hexutil.Encode(custodytest.Sign(t, sc.k, p.ID)),
		})
		require.NoError(t, err)
	}

	ex, err := bc.Execute(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ex.Success)

	rec, err := New(url, "").Status(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, multisig.StatusCompleted, rec.Status)

	list, err := ac.List(ctx, ListParams{Status: "completed", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalCount)

	info, err := ac.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.Nonce)
}

func TestClientErrorsKeepTheirKind(t *testing.T) {
	alice := custodytest.SeededKey("alice")
	url, gw := newService(t, 1, alice)
	ctx := context.Background()
	c := New(url, keyOf(alice))

	_, err := c.Status(ctx, common.HexToHash("0x01"))
	require.True(t, errors.ErrNotFound.Is(err), "%+v", err)
	re, ok := err.(*ResponseError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, re.StatusCode)

	_, err = New(url, "").Propose(ctx, api.ProposeRequest{To: pauseTarget.Hex(), Description: "x"})
	require.True(t, errors.ErrUnauthorized.Is(err), "%+v", err)

	gw.Revert = "Pausable: paused"
	p, err := c.Propose(ctx, api.ProposeRequest{To: pauseTarget.Hex(), Description: "pause"})
	require.NoError(t, err)
	_, err = c.AddSignature(ctx, p.ID, api.SignatureRequest{
		Signer:    alice.Address().Hex(),
		Signature: hexutil.Encode(custodytest.Sign(t, alice, p.ID)),
	})
	require.NoError(t, err)
	ex, err := c.Execute(ctx, p.ID)
	require.True(t, errors.ErrExecutionFailed.Is(err), "%+v", err)
	require.NotNil(t, ex)
	require.Equal(t, "Pausable: paused", ex.Error)
}

func TestListParams(t *testing.T) {
	cases := map[string]struct {
		params ListParams
		want   string
	}{
		"empty":  {want: ""},
		"paging": {params: ListParams{Page: 2, Limit: 5}, want: "?limit=5&page=2"},
		"filters": {
			params: ListParams{Status: "failed", CreatedBy: "0x01"},
			want:   "?createdBy=0x01&status=failed",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.params.encode())
		})
	}
}
