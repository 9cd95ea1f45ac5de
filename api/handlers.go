package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

// Custody is the coordinator functionality exposed over HTTP.
// *multisig.Coordinator implements it.
type Custody interface {
	Propose(ctx context.Context, req multisig.ProposalRequest) (*multisig.TransactionRecord, error)
	ProposeBatch(ctx context.Context, ops []batch.SubOperation, description string, metadata map[string]string) (*multisig.TransactionRecord, error)
	EmergencyAction(ctx context.Context, target common.Address, reason string) (*multisig.TransactionRecord, error)
	AddSignature(ctx context.Context, id superpool.TxID, signer common.Address, sig []byte) (*multisig.TransactionRecord, error)
	Execute(ctx context.Context, id superpool.TxID) (*multisig.ExecutionResult, error)
	Reconcile(ctx context.Context, id superpool.TxID) (*multisig.TransactionRecord, error)
	GetStatus(ctx context.Context, id superpool.TxID) (*multisig.TransactionRecord, error)
	List(ctx context.Context, req multisig.ListRequest) (*multisig.ListPage, error)
	Info(ctx context.Context) (*multisig.AccountInfo, error)
}

var _ Custody = (*multisig.Coordinator)(nil)

type ProposeHandler struct {
	Custody Custody
	MaxBody int64
}

func (h *ProposeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body ProposeRequest
	if err := decodeBody(r, h.MaxBody, &body); err != nil {
		JSONErr(ctx, w, err)
		return
	}
	req, err := body.proposal()
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	rec, err := h.Custody.Propose(ctx, req)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusCreated, newProposalView(rec))
}

type ProposeBatchHandler struct {
	Custody Custody
	MaxBody int64
}

func (h *ProposeBatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body ProposeBatchRequest
	if err := decodeBody(r, h.MaxBody, &body); err != nil {
		JSONErr(ctx, w, err)
		return
	}
	rec, err := h.Custody.ProposeBatch(ctx, body.Operations, body.Description, body.Metadata)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusCreated, newProposalView(rec))
}

type EmergencyHandler struct {
	Custody Custody
	MaxBody int64
}

func (h *EmergencyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body EmergencyRequest
	if err := decodeBody(r, h.MaxBody, &body); err != nil {
		JSONErr(ctx, w, err)
		return
	}
	target, err := superpool.ParseAddress(body.Target)
	if err != nil {
		JSONErr(ctx, w, errors.Field("Target", err, ""))
		return
	}
	rec, err := h.Custody.EmergencyAction(ctx, target, body.Reason)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusCreated, newProposalView(rec))
}

type SignatureHandler struct {
	Custody Custody
	MaxBody int64
}

func (h *SignatureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	var body SignatureRequest
	if err := decodeBody(r, h.MaxBody, &body); err != nil {
		JSONErr(ctx, w, err)
		return
	}
	signer, err := superpool.ParseAddress(body.Signer)
	if err != nil {
		JSONErr(ctx, w, errors.Field("Signer", err, ""))
		return
	}
	// A signature of the wrong length is still passed on, so the rejection
	// is reported as an invalid signature and ends up in the audit journal.
	sig, err := superpool.ParseHexBytes(body.Signature)
	if err != nil {
		JSONErr(ctx, w, errors.Field("Signature", err, ""))
		return
	}
	rec, err := h.Custody.AddSignature(ctx, id, signer, sig)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusOK, SignatureView{
		CurrentSignatures:  rec.CurrentSignatures,
		RequiredSignatures: rec.RequiredSignatures,
		ReadyToExecute:     rec.Status == multisig.StatusReadyToExecute,
	})
}

type ExecuteHandler struct {
	Custody Custody
}

func (h *ExecuteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	res, err := h.Custody.Execute(ctx, id)
	if err != nil {
		resp := NewErrorResponse(err)
		resp.Execution = newExecutionView(res, false)
		JSONResp(ctx, w, StatusCode(err), resp)
		return
	}
	JSONResp(ctx, w, http.StatusOK, newExecutionView(res, true))
}

type ReconcileHandler struct {
	Custody Custody
}

func (h *ReconcileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	rec, err := h.Custody.Reconcile(ctx, id)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusOK, newRecordView(rec))
}

type StatusHandler struct {
	Custody Custody
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	rec, err := h.Custody.GetStatus(ctx, id)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusOK, newRecordView(rec))
}

type ListHandler struct {
	Custody Custody
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var req multisig.ListRequest
	var errs error
	if s := q.Get("status"); s != "" {
		st, err := multisig.ParseStatus(s)
		errs = errors.AppendField(errs, "status", err)
		req.Status = &st
	}
	if s := q.Get("createdBy"); s != "" {
		addr, err := superpool.ParseAddress(s)
		errs = errors.AppendField(errs, "createdBy", err)
		req.CreatedBy = &addr
	}
	var err error
	req.Page, err = intParam(q.Get("page"))
	errs = errors.AppendField(errs, "page", err)
	req.Limit, err = intParam(q.Get("limit"))
	errs = errors.AppendField(errs, "limit", err)
	if errs != nil {
		JSONErr(ctx, w, errs)
		return
	}

	page, err := h.Custody.List(ctx, req)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	view := ListView{
		Records:    make([]RecordView, 0, len(page.Records)),
		TotalCount: page.TotalCount,
		Page:       page.Page,
		Limit:      page.Limit,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
	}
	for _, rec := range page.Records {
		view.Records = append(view.Records, newRecordView(rec))
	}
	JSONResp(ctx, w, http.StatusOK, view)
}

type InfoHandler struct {
	Custody Custody
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.Custody.Info(ctx)
	if err != nil {
		JSONErr(ctx, w, err)
		return
	}
	JSONResp(ctx, w, http.StatusOK, InfoView{
		Version:   superpool.Version(),
		ChainID:   info.ChainID.String(),
		Account:   info.Account,
		Threshold: info.Threshold,
		Nonce:     info.Nonce,
		Owners:    info.Owners,
	})
}

// DefaultHandler is used to handle the request that no other handler wants.
type DefaultHandler struct{}

func (h *DefaultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	JSONErr(r.Context(), w, errors.Wrapf(errors.ErrNotFound, "no route for %s %s", r.Method, r.URL.Path))
}

func pathID(r *http.Request) (superpool.TxID, error) {
	id, err := superpool.ParseTxID(r.PathValue("id"))
	if err != nil {
		return id, errors.Field("id", err, "")
	}
	return id, nil
}

// intParam parses an optional positive query parameter. Missing means zero.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.Wrapf(errors.ErrValidation, "%q is not a positive number", s)
	}
	return n, nil
}
