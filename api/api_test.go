package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/audit"
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
	multiSend      = common.HexToAddress("0x8888888888888888888888888888888888888888")
	pauseTarget    = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
)

type server struct {
	t       *testing.T
	url     string
	gw      *custodytest.Gateway
	journal *audit.MemJournal
	keys    map[string]*crypto.Secp256k1
}

// apiKey returns the API key of given user.
func apiKey(name string) string {
	return name + "-secret-api-key"
}

func newServer(t *testing.T, threshold uint32) *server {
	t.Helper()
	s := &server{
		t:       t,
		journal: &audit.MemJournal{},
		keys: map[string]*crypto.Secp256k1{
			"alice":    custodytest.SeededKey("alice"),
			"bob":      custodytest.SeededKey("bob"),
			"carol":    custodytest.SeededKey("carol"),
			"outsider": custodytest.SeededKey("outsider"),
		},
	}
	s.gw = custodytest.NewGateway(custodyAccount, threshold,
		s.keys["alice"].Address(), s.keys["bob"].Address(), s.keys["carol"].Address())

	conf := multisig.DefaultConfig()
	conf.MultiSend = multiSend
	coord, err := multisig.NewCoordinator(multisig.Deps{
		Store:   multisig.NewKVRecordStore(store.NewMemStore()),
		Gateway: s.gw,
		Journal: s.journal,
		Domain:  s.gw.Domain(),
		Config:  conf,
	})
	require.NoError(t, err)

	var auth api.AuthConfig
	for name, k := range s.keys {
		auth.Keys = append(auth.Keys, api.KeyConfig{Key: apiKey(name), Address: k.Address()})
	}
	require.NoError(t, auth.Validate())

	srv := httptest.NewServer(api.NewRouter(coord, api.NewStaticKeyAuthenticator(auth), log.NewNopLogger(), 1<<20))
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

// do sends a request as given user and decodes the JSON response into dst.
// An empty user sends an anonymous request.
func (s *server) do(method, path, user string, body interface{}, dst interface{}) int {
	s.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.url+path, r)
	require.NoError(s.t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey(user))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	require.Equal(s.t, "application/json; charset=UTF-8", resp.Header.Get("Content-Type"))
	require.NotEmpty(s.t, resp.Header.Get("X-Request-ID"))
	if dst != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func (s *server) propose(user string) api.ProposalView {
	s.t.Helper()
	var p api.ProposalView
	code := s.do("POST", "/transactions", user, map[string]interface{}{
		"to":          pauseTarget.Hex(),
		"value":       "0",
		"data":        "0x8456cb59",
		"operation":   "call",
		"description": "pause the pool",
	}, &p)
	require.Equal(s.t, http.StatusCreated, code)
	return p
}

func (s *server) sign(id common.Hash, user string) (int, api.SignatureView) {
	s.t.Helper()
	k := s.keys[user]
	var v api.SignatureView
	code := s.do("POST", "/transactions/"+id.Hex()+"/signatures", user, api.SignatureRequest{
		Signer:    k.Address().Hex(),
		Signature: hexutil.Encode(custodytest.Sign(s.t, k, id)),
	}, &v)
	return code, v
}

func TestTransactionFlow(t *testing.T) {
	s := newServer(t, 2)

	p := s.propose("alice")
	require.Equal(t, multisig.StatusPendingSignatures, p.Status)
	require.Equal(t, uint32(2), p.RequiredSignatures)
	require.Equal(t, uint64(0), p.Nonce)

	code, sv := s.sign(p.ID, "alice")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, api.SignatureView{CurrentSignatures: 1, RequiredSignatures: 2}, sv)

	code, sv = s.sign(p.ID, "bob")
	require.Equal(t, http.StatusOK, code)
	require.True(t, sv.ReadyToExecute)

	var ex api.ExecutionView
	code = s.do("POST", "/transactions/"+p.ID.Hex()+"/execute", "carol", nil, &ex)
	require.Equal(t, http.StatusOK, code)
	require.True(t, ex.Success)
	require.NotNil(t, ex.SubmissionHash)
	require.Equal(t, uint64(1), ex.BlockNumber)

	var rec api.RecordView
	code = s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &rec)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, multisig.StatusCompleted, rec.Status)
	require.Equal(t, "Executed successfully", rec.StatusMessage)
	require.Equal(t, pauseTarget, rec.To)
	require.Equal(t, hexutil.Bytes{0x84, 0x56, 0xcb, 0x59}, rec.Data)
	require.Len(t, rec.Signatures, 2)
	require.Equal(t, s.keys["alice"].Address(), rec.CreatedBy)
	require.NotNil(t, rec.Execution)
	require.Equal(t, *ex.SubmissionHash, *rec.Execution.SubmissionHash)

	var list api.ListView
	code = s.do("GET", "/transactions?status=completed", "", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, list.TotalCount)
	require.Equal(t, p.ID, list.Records[0].ID)

	code = s.do("GET", "/transactions?status=pending_signatures", "", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, list.TotalCount)
	require.NotNil(t, list.Records)

	var info api.InfoView
	code = s.do("GET", "/info", "", nil, &info)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1", info.ChainID)
	require.Equal(t, custodyAccount, info.Account)
	require.Equal(t, uint32(2), info.Threshold)
	require.Equal(t, uint64(1), info.Nonce)
	require.Len(t, info.Owners, 3)
}

func TestListPagination(t *testing.T) {
	s := newServer(t, 1)
	for i := 0; i < 5; i++ {
		s.propose("alice")
	}
	s.propose("bob")

	var list api.ListView
	code := s.do("GET", "/transactions?createdBy="+s.keys["alice"].Address().Hex()+"&page=2&limit=2", "", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 5, list.TotalCount)
	require.Len(t, list.Records, 2)
	require.True(t, list.HasNext)
	require.True(t, list.HasPrev)
	// Newest first.
	require.Equal(t, uint64(2), list.Records[0].Nonce)
	require.Equal(t, uint64(1), list.Records[1].Nonce)
}

func TestBatchAndEmergency(t *testing.T) {
	s := newServer(t, 1)

	var p api.ProposalView
	code := s.do("POST", "/transactions/batch", "alice", `{
		"operations": [
			{"operation": "call", "to": "0x1111111111111111111111111111111111111111", "value": "5", "data": "0x"},
			{"operation": "call", "to": "0x2222222222222222222222222222222222222222", "value": "0", "data": "0xa9059cbb"}
		],
		"description": "payouts"
	}`, &p)
	require.Equal(t, http.StatusCreated, code)

	var rec api.RecordView
	require.Equal(t, http.StatusOK, s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &rec))
	require.Equal(t, multisig.KindBatch, rec.Kind)
	require.Equal(t, multiSend, rec.To)

	code = s.do("POST", "/transactions/emergency", "bob", api.EmergencyRequest{
		Target: pauseTarget.Hex(),
		Reason: "exploit in progress",
	}, &p)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, uint64(1), p.Nonce)
	require.Equal(t, http.StatusOK, s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &rec))
	require.Equal(t, multisig.KindEmergency, rec.Kind)
	require.Equal(t, "Emergency pause: exploit in progress", rec.Description)
}

func TestExecutionFailureCarriesResult(t *testing.T) {
	s := newServer(t, 1)
	s.gw.Revert = "Pausable: paused"

	p := s.propose("alice")
	code, _ := s.sign(p.ID, "alice")
	require.Equal(t, http.StatusOK, code)

	var resp api.ErrorResponse
	code = s.do("POST", "/transactions/"+p.ID.Hex()+"/execute", "alice", nil, &resp)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, errors.ErrExecutionFailed.Code(), resp.Code)
	require.False(t, resp.Retryable)
	require.NotNil(t, resp.Execution)
	require.False(t, resp.Execution.Success)
	require.NotNil(t, resp.Execution.SubmissionHash)
	require.Equal(t, "Pausable: paused", resp.Execution.Error)

	var rec api.RecordView
	require.Equal(t, http.StatusOK, s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &rec))
	require.Equal(t, multisig.StatusFailed, rec.Status)
}

func TestEventArgsKeepDeclarationOrder(t *testing.T) {
	s := newServer(t, 1)
	s.gw.Events = []multisig.Event{{
		Name:    "Transfer",
		Address: pauseTarget,
		Args: []multisig.EventArg{
			{Name: "to", Value: "0x2"},
			{Name: "", Value: "7"},
			{Name: "from", Value: "0x1"},
			{Name: "", Value: "9"},
		},
	}}

	p := s.propose("alice")
	code, _ := s.sign(p.ID, "alice")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, http.StatusOK, s.do("POST", "/transactions/"+p.ID.Hex()+"/execute", "alice", nil, nil))

	var rec api.RecordView
	require.Equal(t, http.StatusOK, s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &rec))
	require.NotNil(t, rec.Execution)
	require.Len(t, rec.Execution.Events, 1)
	require.Equal(t, []api.EventArgView{
		{Name: "to", Value: "0x2"},
		{Value: "7"},
		{Name: "from", Value: "0x1"},
		{Value: "9"},
	}, rec.Execution.Events[0].Args)

	var raw struct {
		Execution struct {
			Events []struct {
				Args json.RawMessage `json:"args"`
			} `json:"events"`
		} `json:"execution"`
	}
	require.Equal(t, http.StatusOK, s.do("GET", "/transactions/"+p.ID.Hex(), "", nil, &raw))
	require.JSONEq(t,
		`[{"name":"to","value":"0x2"},{"value":"7"},{"name":"from","value":"0x1"},{"value":"9"}]`,
		string(raw.Execution.Events[0].Args))
}

func TestErrorResponses(t *testing.T) {
	s := newServer(t, 2)
	pending := s.propose("alice")
	signed := s.propose("alice")
	code, _ := s.sign(signed.ID, "alice")
	require.Equal(t, http.StatusOK, code)

	cases := map[string]struct {
		method   string
		path     string
		user     string
		body     interface{}
		wantCode int
		wantErr  *errors.Error
	}{
		"anonymous proposal": {
			method:   "POST",
			path:     "/transactions",
			body:     `{"to": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "description": "x"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  errors.ErrUnauthorized,
		},
		"unknown field": {
			method:   "POST",
			path:     "/transactions",
			user:     "alice",
			body:     `{"to": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "description": "x", "gas": 1}`,
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"empty body": {
			method:   "POST",
			path:     "/transactions",
			user:     "alice",
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"malformed target": {
			method:   "POST",
			path:     "/transactions",
			user:     "alice",
			body:     `{"to": "0x12", "description": "x"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"missing description": {
			method:   "POST",
			path:     "/transactions",
			user:     "alice",
			body:     `{"to": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"emergency without reason": {
			method:   "POST",
			path:     "/transactions/emergency",
			user:     "alice",
			body:     `{"target": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"signature by outsider": {
			method: "POST",
			path:   "/transactions/" + pending.ID.Hex() + "/signatures",
			user:   "outsider",
			body: api.SignatureRequest{
				Signer:    s.keys["outsider"].Address().Hex(),
				Signature: hexutil.Encode(custodytest.Sign(t, s.keys["outsider"], pending.ID)),
			},
			wantCode: http.StatusForbidden,
			wantErr:  errors.ErrNotAuthorizedSigner,
		},
		"duplicate signature": {
			method: "POST",
			path:   "/transactions/" + signed.ID.Hex() + "/signatures",
			user:   "alice",
			body: api.SignatureRequest{
				Signer:    s.keys["alice"].Address().Hex(),
				Signature: hexutil.Encode(custodytest.Sign(t, s.keys["alice"], signed.ID)),
			},
			wantCode: http.StatusConflict,
			wantErr:  errors.ErrDuplicateSigner,
		},
		"signature over another record": {
			method: "POST",
			path:   "/transactions/" + pending.ID.Hex() + "/signatures",
			user:   "bob",
			body: api.SignatureRequest{
				Signer:    s.keys["bob"].Address().Hex(),
				Signature: hexutil.Encode(custodytest.Sign(t, s.keys["bob"], signed.ID)),
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  errors.ErrInvalidSignature,
		},
		"execute before threshold": {
			method:   "POST",
			path:     "/transactions/" + signed.ID.Hex() + "/execute",
			user:     "alice",
			wantCode: http.StatusConflict,
			wantErr:  errors.ErrInvalidState,
		},
		"unknown record": {
			method:   "GET",
			path:     "/transactions/" + common.HexToHash("0x01").Hex(),
			wantCode: http.StatusNotFound,
			wantErr:  errors.ErrNotFound,
		},
		"malformed record id": {
			method:   "GET",
			path:     "/transactions/xyz",
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"unknown status filter": {
			method:   "GET",
			path:     "/transactions?status=done",
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"page limit exceeded": {
			method:   "GET",
			path:     "/transactions?limit=100000",
			wantCode: http.StatusBadRequest,
			wantErr:  errors.ErrValidation,
		},
		"unknown route": {
			method:   "GET",
			path:     "/accounts",
			wantCode: http.StatusNotFound,
			wantErr:  errors.ErrNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var resp api.ErrorResponse
			code := s.do(tc.method, tc.path, tc.user, tc.body, &resp)
			require.Equal(t, tc.wantCode, code)
			require.Equal(t, tc.wantErr.Code(), resp.Code, "%+v", resp)
			require.NotEmpty(t, resp.Errors)
		})
	}
}

func TestErrorResponseNamesInvalidFields(t *testing.T) {
	s := newServer(t, 1)

	var resp api.ErrorResponse
	code := s.do("POST", "/transactions", "alice", `{"to": "0x12", "value": "-1"}`, &resp)
	require.Equal(t, http.StatusBadRequest, code)
	require.Subset(t, resp.Fields, []string{"To", "Value"})
	require.GreaterOrEqual(t, len(resp.Errors), 2)

	var byID api.ErrorResponse
	code = s.do("GET", "/transactions/nope", "", nil, &byID)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, []string{"id"}, byID.Fields)

	var notFound api.ErrorResponse
	code = s.do("GET", "/transactions/0x"+strings.Repeat("ab", 32), "", nil, &notFound)
	require.Equal(t, http.StatusNotFound, code)
	require.Empty(t, notFound.Fields)
}

func TestChainUnavailableIsRetryable(t *testing.T) {
	s := newServer(t, 1)
	s.gw.QueryErr = errors.Wrap(errors.ErrChainUnavailable, "node down")

	var resp api.ErrorResponse
	code := s.do("GET", "/info", "", nil, &resp)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.True(t, resp.Retryable)
}

func TestInvalidCredentials(t *testing.T) {
	s := newServer(t, 1)

	req, err := http.NewRequest("GET", s.url+"/info", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-known-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, s.journal.Entries())
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newServer(t, 1)

	req, err := http.NewRequest("GET", s.url+"/info", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

type panickingCustody struct {
	api.Custody
}

func (panickingCustody) Info(context.Context) (*multisig.AccountInfo, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	auth := api.NewStaticKeyAuthenticator(api.AuthConfig{})
	srv := httptest.NewServer(api.NewRouter(panickingCustody{}, auth, log.NewNopLogger(), 1<<20))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
