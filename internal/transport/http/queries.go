package httptransport

import (
	"iter"
	"net/http"

	"github.com/go-chi/chi/v5"

	escrowmodels "rotrust/internal/escrow/models"
	propertymodels "rotrust/internal/property/models"
	"rotrust/internal/query"
	transfermodels "rotrust/internal/transfer/models"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/httputil"
)

func (h *Handler) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, version, err := h.properties.GetProperty(r.Context(), id.PropertyID(chi.URLParam(r, "id")))
	if err != nil {
		h.reject(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Versioned[propertymodels.Property]{Value: p, Version: uint64(version)})
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.properties.GetHistory(r.Context(), id.PropertyID(chi.URLParam(r, "id")))
	if err != nil {
		h.reject(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	t, version, err := h.transfers.GetTransfer(r.Context(), id.TransferID(chi.URLParam(r, "id")))
	if err != nil {
		h.reject(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Versioned[transfermodels.Transfer]{Value: t, Version: uint64(version)})
}

func (h *Handler) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	e, version, err := h.escrows.GetEscrow(r.Context(), id.EscrowID(chi.URLParam(r, "id")))
	if err != nil {
		h.reject(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Versioned[escrowmodels.Escrow]{Value: e, Version: uint64(version)})
}

// handleListProperties serves ?owner=.
func (h *Handler) handleListProperties(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		h.reject(w, r, dErrors.New(dErrors.CodeBadRequest, "owner filter is required"))
		return
	}
	writeList(h, w, r, h.queries.PropertiesByOwner(r.Context(), id.PartyID(owner)))
}

// handleListTransfers serves ?property= or ?party=&role=.
func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("property") != "":
		writeList(h, w, r, h.queries.TransfersByProperty(r.Context(), id.PropertyID(q.Get("property"))))
	case q.Get("party") != "":
		role, err := query.ParseRole(q.Get("role"))
		if err != nil {
			h.reject(w, r, err)
			return
		}
		writeList(h, w, r, h.queries.TransfersByParty(r.Context(), id.PartyID(q.Get("party")), role))
	default:
		h.reject(w, r, dErrors.New(dErrors.CodeBadRequest, "one of property or party is required"))
	}
}

// handleListEscrows serves ?property=, ?transfer=, ?party=&role= or ?status=.
func (h *Handler) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("property") != "":
		writeList(h, w, r, h.queries.EscrowsByProperty(r.Context(), id.PropertyID(q.Get("property"))))
	case q.Get("transfer") != "":
		writeList(h, w, r, h.queries.EscrowsByTransfer(r.Context(), id.TransferID(q.Get("transfer"))))
	case q.Get("party") != "":
		role, err := query.ParseRole(q.Get("role"))
		if err != nil {
			h.reject(w, r, err)
			return
		}
		writeList(h, w, r, h.queries.EscrowsByParty(r.Context(), id.PartyID(q.Get("party")), role))
	case q.Get("status") != "":
		writeList(h, w, r, h.queries.EscrowsByStatus(r.Context(), escrowmodels.Status(q.Get("status"))))
	default:
		h.reject(w, r, dErrors.New(dErrors.CodeBadRequest, "one of property, transfer, party or status is required"))
	}
}

func writeList[T any](h *Handler, w http.ResponseWriter, r *http.Request, seq iter.Seq2[T, error]) {
	items, err := query.Collect(seq)
	if err != nil {
		h.reject(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}
