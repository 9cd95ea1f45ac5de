package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/stretchr/testify/require"
)

const subOperations = `[
	{"operation": "call", "to": "0x1111111111111111111111111111111111111111", "value": "5", "data": "0x"},
	{"operation": "call", "to": "0x2222222222222222222222222222222222222222", "value": "0", "data": "0xa9059cbb"}
]`

func TestBatchEncodingRoundTrip(t *testing.T) {
	for _, mode := range [][]string{nil, {"-payload"}} {
		encoded := mustRun(t, cmdEncodeBatch, subOperations, mode...)
		require.True(t, strings.HasPrefix(encoded, "0x"), encoded)

		decoded := mustRun(t, cmdDecodeBatch, encoded, mode...)
		require.JSONEq(t, normalize(t, subOperations), normalize(t, decoded))

		fromFlag := mustRun(t, cmdDecodeBatch, "", append([]string{"-data", strings.TrimSpace(encoded)}, mode...)...)
		require.Equal(t, decoded, fromFlag)
	}
}

func TestEncodeBatchPrintsMultiSendCall(t *testing.T) {
	var ops []batch.SubOperation
	require.NoError(t, json.Unmarshal([]byte(subOperations), &ops))
	want, err := batch.EncodeCall(ops)
	require.NoError(t, err)

	encoded := mustRun(t, cmdEncodeBatch, subOperations)
	require.Equal(t, "0x8d80ff0a", encoded[:10])
	require.Len(t, strings.TrimSpace(encoded), 2+2*len(want))
}

func TestBatchErrors(t *testing.T) {
	_, err := run(t, cmdEncodeBatch, "[]")
	require.Error(t, err)

	_, err = run(t, cmdEncodeBatch, `[{"operation": "call", "to": "nope"}]`)
	require.True(t, errors.ErrValidation.Is(err), "%+v", err)

	_, err = run(t, cmdDecodeBatch, "0xdeadbeef")
	require.True(t, errors.ErrValidation.Is(err), "%+v", err)

	_, err = run(t, cmdDecodeBatch, "not hex")
	require.True(t, errors.ErrValidation.Is(err), "%+v", err)
}

func TestProposeBatchPipeline(t *testing.T) {
	b := newBackend(t, 2)

	decoded := mustRun(t, cmdDecodeBatch, mustRun(t, cmdEncodeBatch, subOperations))

	var p api.ProposalView
	decode(t, mustRun(t, cmdProposeBatch, decoded, b.as("alice", "-description", "payouts")...), &p)

	var rec api.RecordView
	decode(t, mustRun(t, cmdStatus, "", b.as("alice", "-id", p.ID.Hex())...), &rec)
	require.Equal(t, multisig.KindBatch, rec.Kind)
	require.Equal(t, multiSend, rec.To)

	ops := mustRun(t, cmdDecodeBatch, "", "-data", rec.Data.String())
	require.JSONEq(t, normalize(t, subOperations), normalize(t, ops))
}

// normalize returns given JSON list of sub operations in its canonical
// serialization.
func normalize(t testing.TB, raw string) string {
	t.Helper()
	var ops []batch.SubOperation
	require.NoError(t, json.Unmarshal([]byte(raw), &ops), raw)
	out, err := json.Marshal(ops)
	require.NoError(t, err)
	return string(out)
}
