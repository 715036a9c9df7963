// Package httptransport serves ledger operations over HTTP: one POST per
// state transition under /v1/invoke and reads under /v1/query.
package httptransport

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/ledger"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/httputil"
	"rotrust/pkg/platform/middleware/request"
)

type PropertyService interface {
	RegisterProperty(ctx context.Context, cmd propertyservice.RegisterCommand) (*propertymodels.Property, error)
	GetProperty(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, ledger.Version, error)
	GetHistory(ctx context.Context, propertyID id.PropertyID) ([]propertymodels.HistoryEntry, error)
	UpdateDetails(ctx context.Context, propertyID id.PropertyID, patch propertymodels.DetailsPatch) (*propertymodels.Property, error)
	UpdateStatus(ctx context.Context, propertyID id.PropertyID, status propertymodels.Status) (*propertymodels.Property, error)
	ApplyOwnershipTransfer(ctx context.Context, cmd propertyservice.DirectTransferCommand) (*propertymodels.Property, error)
}

type TransferService interface {
	CreateTransfer(ctx context.Context, cmd transferservice.CreateCommand) (*transfermodels.Transfer, error)
	CancelTransfer(ctx context.Context, transferID id.TransferID, reason string) (*transfermodels.Transfer, error)
	GetTransfer(ctx context.Context, transferID id.TransferID) (*transfermodels.Transfer, ledger.Version, error)
}

type EscrowService interface {
	CreateEscrow(ctx context.Context, cmd escrowservice.CreateCommand) (*escrowmodels.Escrow, error)
	AddPayment(ctx context.Context, escrowID id.EscrowID, cmd escrowservice.PaymentCommand) (*escrowmodels.Escrow, error)
	AddDocument(ctx context.Context, escrowID id.EscrowID, cmd escrowservice.DocumentCommand) (*escrowmodels.Escrow, error)
	MarkConditionMet(ctx context.Context, escrowID id.EscrowID, cmd escrowservice.ConditionCommand) (*escrowmodels.Escrow, error)
	CompleteEscrow(ctx context.Context, escrowID id.EscrowID) (*escrowmodels.Escrow, error)
	CancelEscrow(ctx context.Context, escrowID id.EscrowID, reason string) (*escrowmodels.Escrow, error)
	GetEscrow(ctx context.Context, escrowID id.EscrowID) (*escrowmodels.Escrow, ledger.Version, error)
}

type QueryService interface {
	EscrowsByProperty(ctx context.Context, propertyID id.PropertyID) iter.Seq2[*escrowmodels.Escrow, error]
	EscrowsByTransfer(ctx context.Context, transferID id.TransferID) iter.Seq2[*escrowmodels.Escrow, error]
	EscrowsByParty(ctx context.Context, party id.PartyID, role query.Role) iter.Seq2[*escrowmodels.Escrow, error]
	EscrowsByStatus(ctx context.Context, status escrowmodels.Status) iter.Seq2[*escrowmodels.Escrow, error]
	TransfersByProperty(ctx context.Context, propertyID id.PropertyID) iter.Seq2[*transfermodels.Transfer, error]
	TransfersByParty(ctx context.Context, party id.PartyID, role query.Role) iter.Seq2[*transfermodels.Transfer, error]
	PropertiesByOwner(ctx context.Context, owner id.PartyID) iter.Seq2[*propertymodels.Property, error]
}

// Handler maps HTTP requests onto the ledger services.
type Handler struct {
	logger     *slog.Logger
	properties PropertyService
	transfers  TransferService
	escrows    EscrowService
	queries    QueryService
}

// New creates a Handler.
func New(
	properties PropertyService,
	transfers TransferService,
	escrows EscrowService,
	queries QueryService,
	logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		properties: properties,
		transfers:  transfers,
		escrows:    escrows,
		queries:    queries,
	}
}

// Register mounts the invoke and query routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/invoke", func(r chi.Router) {
		r.Post("/RegisterProperty", handle(h, http.StatusCreated, h.registerProperty))
		r.Post("/UpdatePropertyDetails", handle(h, http.StatusOK, h.updatePropertyDetails))
		r.Post("/UpdatePropertyStatus", handle(h, http.StatusOK, h.updatePropertyStatus))
		r.Post("/ApplyOwnershipTransfer", handle(h, http.StatusOK, h.applyOwnershipTransfer))
		r.Post("/CreateTransfer", handle(h, http.StatusCreated, h.createTransfer))
		r.Post("/CancelTransfer", handle(h, http.StatusOK, h.cancelTransfer))
		r.Post("/CreateEscrow", handle(h, http.StatusCreated, h.createEscrow))
		r.Post("/AddPayment", handle(h, http.StatusOK, h.addPayment))
		r.Post("/AddDocument", handle(h, http.StatusOK, h.addDocument))
		r.Post("/MarkConditionMet", handle(h, http.StatusOK, h.markConditionMet))
		r.Post("/CompleteEscrow", handle(h, http.StatusOK, h.completeEscrow))
		r.Post("/CancelEscrow", handle(h, http.StatusOK, h.cancelEscrow))
	})
	r.Route("/v1/query", func(r chi.Router) {
		r.Get("/properties", h.handleListProperties)
		r.Get("/properties/{id}", h.handleGetProperty)
		r.Get("/properties/{id}/history", h.handleGetHistory)
		r.Get("/transfers", h.handleListTransfers)
		r.Get("/transfers/{id}", h.handleGetTransfer)
		r.Get("/escrows", h.handleListEscrows)
		r.Get("/escrows/{id}", h.handleGetEscrow)
	})
}

// handle decodes and validates a Req, runs fn, and writes its result with
// status.
func handle[Req any](h *Handler, status int, fn func(ctx context.Context, req *Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.reject(w, r, err)
			return
		}
		res, err := fn(r.Context(), &req)
		if err != nil {
			h.reject(w, r, err)
			return
		}
		httputil.WriteJSON(w, status, res)
	}
}

// reject logs and writes err. Business rejections were already logged by the
// ledger runner; only decode failures are logged here.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	if code := dErrors.CodeOf(err); code == dErrors.CodeBadRequest || code == dErrors.CodeValidation {
		ctx := r.Context()
		h.logger.WarnContext(ctx, "invalid request",
			"path", r.URL.Path,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) registerProperty(ctx context.Context, req *RegisterPropertyRequest) (any, error) {
	return h.properties.RegisterProperty(ctx, req.command())
}

func (h *Handler) updatePropertyDetails(ctx context.Context, req *UpdatePropertyDetailsRequest) (any, error) {
	return h.properties.UpdateDetails(ctx, id.PropertyID(req.PropertyID), req.Patch)
}

func (h *Handler) updatePropertyStatus(ctx context.Context, req *UpdatePropertyStatusRequest) (any, error) {
	return h.properties.UpdateStatus(ctx, id.PropertyID(req.PropertyID), propertymodels.Status(req.Status))
}

func (h *Handler) applyOwnershipTransfer(ctx context.Context, req *ApplyOwnershipTransferRequest) (any, error) {
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	return h.properties.ApplyOwnershipTransfer(ctx, cmd)
}

func (h *Handler) createTransfer(ctx context.Context, req *CreateTransferRequest) (any, error) {
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	return h.transfers.CreateTransfer(ctx, cmd)
}

func (h *Handler) cancelTransfer(ctx context.Context, req *CancelTransferRequest) (any, error) {
	return h.transfers.CancelTransfer(ctx, id.TransferID(req.TransferID), req.Reason)
}

func (h *Handler) createEscrow(ctx context.Context, req *CreateEscrowRequest) (any, error) {
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	return h.escrows.CreateEscrow(ctx, cmd)
}

func (h *Handler) addPayment(ctx context.Context, req *AddPaymentRequest) (any, error) {
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	return h.escrows.AddPayment(ctx, id.EscrowID(req.EscrowID), cmd)
}

func (h *Handler) addDocument(ctx context.Context, req *AddDocumentRequest) (any, error) {
	return h.escrows.AddDocument(ctx, id.EscrowID(req.EscrowID), req.command())
}

func (h *Handler) markConditionMet(ctx context.Context, req *MarkConditionMetRequest) (any, error) {
	return h.escrows.MarkConditionMet(ctx, id.EscrowID(req.EscrowID), req.command())
}

func (h *Handler) completeEscrow(ctx context.Context, req *CompleteEscrowRequest) (any, error) {
	return h.escrows.CompleteEscrow(ctx, id.EscrowID(req.EscrowID))
}

func (h *Handler) cancelEscrow(ctx context.Context, req *CancelEscrowRequest) (any, error) {
	return h.escrows.CancelEscrow(ctx, id.EscrowID(req.EscrowID), req.Reason)
}
