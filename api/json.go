package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// JSONResp write content as JSON encoded response.
func JSONResp(ctx context.Context, w http.ResponseWriter, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "\t")
	if err != nil {
		superpool.GetLogger(ctx).Error("cannot JSON serialize response", "err", err)
		code = http.StatusInternalServerError
		b = []byte(`{"errors":["Internal Server Error"],"code":1,"kind":"internal","retryable":false}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)

	const MB = 1 << (10 * 2)
	if len(b) > MB {
		superpool.GetLogger(ctx).Info("response JSON body is huge", "size", len(b))
	}
	_, _ = w.Write(b)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Errors    []string `json:"errors"`
	Fields    []string `json:"fields,omitempty"`
	Code      uint32   `json:"code"`
	Kind      string   `json:"kind"`
	Retryable bool     `json:"retryable"`
	// Execution is set when a failed execution produced a result.
	Execution *ExecutionView `json:"execution,omitempty"`
}

// JSONErr writes err as JSON encoded response, with the status code that
// matches its kind.
func JSONErr(ctx context.Context, w http.ResponseWriter, err error) {
	JSONResp(ctx, w, StatusCode(err), NewErrorResponse(err))
}

// NewErrorResponse describes err to a client. Messages of errors that do
// not wrap a registered error are hidden.
func NewErrorResponse(err error) *ErrorResponse {
	code, kind, msg := errors.Info(err, false)
	resp := &ErrorResponse{
		Fields:    errors.Fields(err),
		Code:      code,
		Kind:      kind,
		Retryable: errors.IsRetryable(err),
	}
	if u, ok := err.(interface{ Unpack() []error }); ok {
		for _, e := range u.Unpack() {
			_, _, m := errors.Info(e, false)
			resp.Errors = append(resp.Errors, m)
		}
	} else {
		resp.Errors = []string{msg}
	}
	return resp
}

var statusCodes = map[uint32]int{
	errors.ErrValidation.Code():             http.StatusBadRequest,
	errors.ErrEmpty.Code():                  http.StatusBadRequest,
	errors.ErrUnauthorized.Code():           http.StatusUnauthorized,
	errors.ErrNotAuthorizedSigner.Code():    http.StatusForbidden,
	errors.ErrNotFound.Code():               http.StatusNotFound,
	errors.ErrInvalidState.Code():           http.StatusConflict,
	errors.ErrDuplicateSigner.Code():        http.StatusConflict,
	errors.ErrAlreadyExists.Code():          http.StatusConflict,
	errors.ErrConflict.Code():               http.StatusConflict,
	errors.ErrInvalidSignature.Code():       http.StatusUnprocessableEntity,
	errors.ErrExpired.Code():                http.StatusGone,
	errors.ErrInsufficientSignatures.Code(): http.StatusPreconditionFailed,
	errors.ErrChainUnavailable.Code():       http.StatusServiceUnavailable,
	errors.ErrExecutionFailed.Code():        http.StatusBadGateway,
}

// StatusCode returns the HTTP status code for given error.
func StatusCode(err error) int {
	if code, ok := statusCodes[errors.Code(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON request body into dst. Unknown fields are
// rejected.
func decodeBody(r *http.Request, maxBytes int64, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.Wrap(errors.ErrValidation, "empty request body")
		}
		if _, kind, _ := errors.Info(err, false); kind != "internal" {
			// Errors returned by custom unmarshalers keep their kind.
			return err
		}
		return errors.Wrapf(errors.ErrValidation, "malformed JSON: %s", err)
	}
	return nil
}
