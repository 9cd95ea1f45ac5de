/*
Package client is a Go client of the custody HTTP API.

Failed requests return an error of the same kind as the one the server
reported, so errors.ErrNotFound.Is and friends work across the wire.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// Client talks to a custody service.
type Client struct {
	apiURL string
	apiKey string
	cli    *http.Client
}

// New returns a client of the service at apiURL. Requests are
// authenticated with apiKey unless it is empty.
func New(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		cli:    &http.Client{},
	}
}

func (c *Client) Propose(ctx context.Context, req api.ProposeRequest) (*api.ProposalView, error) {
	var out api.ProposalView
	if err := c.do(ctx, "POST", "/transactions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProposeBatch(ctx context.Context, req api.ProposeBatchRequest) (*api.ProposalView, error) {
	var out api.ProposalView
	if err := c.do(ctx, "POST", "/transactions/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Emergency(ctx context.Context, req api.EmergencyRequest) (*api.ProposalView, error) {
	var out api.ProposalView
	if err := c.do(ctx, "POST", "/transactions/emergency", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddSignature(ctx context.Context, id superpool.TxID, req api.SignatureRequest) (*api.SignatureView, error) {
	var out api.SignatureView
	if err := c.do(ctx, "POST", "/transactions/"+id.Hex()+"/signatures", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute executes a ready record. When the execution failed, the returned
// error is accompanied by the execution details if the server provided
// them.
func (c *Client) Execute(ctx context.Context, id superpool.TxID) (*api.ExecutionView, error) {
	var out api.ExecutionView
	if err := c.do(ctx, "POST", "/transactions/"+id.Hex()+"/execute", nil, &out); err != nil {
		if re, ok := err.(*ResponseError); ok && re.Body.Execution != nil {
			return re.Body.Execution, err
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reconcile(ctx context.Context, id superpool.TxID) (*api.RecordView, error) {
	var out api.RecordView
	if err := c.do(ctx, "POST", "/transactions/"+id.Hex()+"/reconcile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, id superpool.TxID) (*api.RecordView, error) {
	var out api.RecordView
	if err := c.do(ctx, "GET", "/transactions/"+id.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListParams filters the result of List. Zero values are not sent.
type ListParams struct {
	Status    string
	CreatedBy string
	Page      int
	Limit     int
}

func (p ListParams) encode() string {
	v := make(url.Values)
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.CreatedBy != "" {
		v.Set("createdBy", p.CreatedBy)
	}
	if p.Page != 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit != 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) List(ctx context.Context, p ListParams) (*api.ListView, error) {
	var out api.ListView
	if err := c.do(ctx, "GET", "/transactions"+p.encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Info(ctx context.Context) (*api.InfoView, error) {
	var out api.InfoView
	if err := c.do(ctx, "GET", "/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, dest interface{}) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, r)
	if err != nil {
		return errors.Wrap(err, "create http request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		re := &ResponseError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1e6))
		if err := json.Unmarshal(b, &re.Body); err != nil || len(re.Body.Errors) == 0 {
			re.Body.Errors = []string{strings.TrimSpace(string(b))}
		}
		return re
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1e7)).Decode(dest); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// ResponseError is returned when the server responded with a failure. It
// is of the kind reported by the server.
type ResponseError struct {
	StatusCode int
	Body       api.ErrorResponse
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Body.Kind, strings.Join(e.Body.Errors, "; "))
}

// Cause returns the registered error the server reported.
func (e *ResponseError) Cause() error {
	if root, ok := errors.Lookup(e.Body.Code); ok {
		return root
	}
	return nil
}
