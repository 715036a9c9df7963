// Package client invokes ledger operations on a rotrust node over HTTP.
//
// Version conflicts are retried with exponential backoff under the same
// request id, so a retried operation that eventually commits emits the same
// event ids as a first-try commit. Every other error is returned as a
// domain error carrying the node's error code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	escrowmodels "rotrust/internal/escrow/models"
	propertymodels "rotrust/internal/property/models"
	transfermodels "rotrust/internal/transfer/models"
	httptransport "rotrust/internal/transport/http"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/httputil"
	"rotrust/pkg/platform/middleware/request"
	"rotrust/pkg/platform/retry"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	invoker string
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithInvoker labels every request with the caller's organisation.
func WithInvoker(invoker string) Option {
	return func(c *Client) {
		c.invoker = invoker
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the node at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  retry.DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Versioned is a record with the ledger version it was read at.
type Versioned[T any] = httptransport.Versioned[T]

func (c *Client) RegisterProperty(ctx context.Context, req httptransport.RegisterPropertyRequest) (*propertymodels.Property, error) {
	return post[propertymodels.Property](ctx, c, "RegisterProperty", req)
}

func (c *Client) UpdatePropertyDetails(ctx context.Context, req httptransport.UpdatePropertyDetailsRequest) (*propertymodels.Property, error) {
	return post[propertymodels.Property](ctx, c, "UpdatePropertyDetails", req)
}

func (c *Client) UpdatePropertyStatus(ctx context.Context, req httptransport.UpdatePropertyStatusRequest) (*propertymodels.Property, error) {
	return post[propertymodels.Property](ctx, c, "UpdatePropertyStatus", req)
}

func (c *Client) ApplyOwnershipTransfer(ctx context.Context, req httptransport.ApplyOwnershipTransferRequest) (*propertymodels.Property, error) {
	return post[propertymodels.Property](ctx, c, "ApplyOwnershipTransfer", req)
}

func (c *Client) CreateTransfer(ctx context.Context, req httptransport.CreateTransferRequest) (*transfermodels.Transfer, error) {
	return post[transfermodels.Transfer](ctx, c, "CreateTransfer", req)
}

func (c *Client) CancelTransfer(ctx context.Context, transferID, reason string) (*transfermodels.Transfer, error) {
	return post[transfermodels.Transfer](ctx, c, "CancelTransfer",
		httptransport.CancelTransferRequest{TransferID: transferID, Reason: reason})
}

func (c *Client) CreateEscrow(ctx context.Context, req httptransport.CreateEscrowRequest) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "CreateEscrow", req)
}

func (c *Client) AddPayment(ctx context.Context, req httptransport.AddPaymentRequest) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "AddPayment", req)
}

func (c *Client) AddDocument(ctx context.Context, req httptransport.AddDocumentRequest) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "AddDocument", req)
}

func (c *Client) MarkConditionMet(ctx context.Context, req httptransport.MarkConditionMetRequest) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "MarkConditionMet", req)
}

func (c *Client) CompleteEscrow(ctx context.Context, escrowID string) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "CompleteEscrow", httptransport.CompleteEscrowRequest{EscrowID: escrowID})
}

func (c *Client) CancelEscrow(ctx context.Context, escrowID, reason string) (*escrowmodels.Escrow, error) {
	return post[escrowmodels.Escrow](ctx, c, "CancelEscrow",
		httptransport.CancelEscrowRequest{EscrowID: escrowID, Reason: reason})
}

func (c *Client) GetProperty(ctx context.Context, propertyID string) (*Versioned[propertymodels.Property], error) {
	return get[Versioned[propertymodels.Property]](ctx, c, "/v1/query/properties/"+url.PathEscape(propertyID))
}

func (c *Client) GetPropertyHistory(ctx context.Context, propertyID string) ([]propertymodels.HistoryEntry, error) {
	return list[propertymodels.HistoryEntry](ctx, c, "/v1/query/properties/"+url.PathEscape(propertyID)+"/history")
}

func (c *Client) GetTransfer(ctx context.Context, transferID string) (*Versioned[transfermodels.Transfer], error) {
	return get[Versioned[transfermodels.Transfer]](ctx, c, "/v1/query/transfers/"+url.PathEscape(transferID))
}

func (c *Client) GetEscrow(ctx context.Context, escrowID string) (*Versioned[escrowmodels.Escrow], error) {
	return get[Versioned[escrowmodels.Escrow]](ctx, c, "/v1/query/escrows/"+url.PathEscape(escrowID))
}

func (c *Client) PropertiesByOwner(ctx context.Context, owner string) ([]propertymodels.Property, error) {
	return list[propertymodels.Property](ctx, c, "/v1/query/properties?"+url.Values{"owner": {owner}}.Encode())
}

func (c *Client) TransfersByProperty(ctx context.Context, propertyID string) ([]transfermodels.Transfer, error) {
	return list[transfermodels.Transfer](ctx, c, "/v1/query/transfers?"+url.Values{"property": {propertyID}}.Encode())
}

// TransfersByParty lists transfers naming party. role is seller, buyer or
// empty for either.
func (c *Client) TransfersByParty(ctx context.Context, party, role string) ([]transfermodels.Transfer, error) {
	return list[transfermodels.Transfer](ctx, c, "/v1/query/transfers?"+url.Values{"party": {party}, "role": {role}}.Encode())
}

func (c *Client) EscrowsByProperty(ctx context.Context, propertyID string) ([]escrowmodels.Escrow, error) {
	return list[escrowmodels.Escrow](ctx, c, "/v1/query/escrows?"+url.Values{"property": {propertyID}}.Encode())
}

func (c *Client) EscrowsByTransfer(ctx context.Context, transferID string) ([]escrowmodels.Escrow, error) {
	return list[escrowmodels.Escrow](ctx, c, "/v1/query/escrows?"+url.Values{"transfer": {transferID}}.Encode())
}

func (c *Client) EscrowsByParty(ctx context.Context, party, role string) ([]escrowmodels.Escrow, error) {
	return list[escrowmodels.Escrow](ctx, c, "/v1/query/escrows?"+url.Values{"party": {party}, "role": {role}}.Encode())
}

func (c *Client) EscrowsByStatus(ctx context.Context, status escrowmodels.Status) ([]escrowmodels.Escrow, error) {
	return list[escrowmodels.Escrow](ctx, c, "/v1/query/escrows?"+url.Values{"status": {string(status)}}.Encode())
}

// post sends body to the operation's endpoint, retrying version conflicts.
func post[T any](ctx context.Context, c *Client, op string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	requestID := uuid.NewString()
	policy := c.policy
	policy.OnRetry = func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "retrying ledger operation",
			"operation", op,
			"request_id", requestID,
			"wait", wait,
			"error", err,
		)
	}

	var out T
	err = retry.Do(ctx, policy, dErrors.Retryable, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/v1/invoke/"+op, requestID, payload, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var out T
	if err := c.do(ctx, http.MethodGet, path, uuid.NewString(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	out, err := get[[]T](ctx, c, path)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(request.HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.invoker != "" {
		req.Header.Set(request.HeaderInvoker, c.invoker)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "node unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode response")
	}
	return nil
}

// decodeError turns an error envelope back into a domain error.
func decodeError(resp *http.Response) error {
	var envelope httputil.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, httputil.MaxBodyBytes)).Decode(&envelope); err != nil || envelope.Error == "" {
		return dErrors.Newf(dErrors.CodeInternal, "unexpected status %d", resp.StatusCode)
	}
	msg := envelope.ErrorDescription
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return dErrors.New(envelope.Error, msg)
}
