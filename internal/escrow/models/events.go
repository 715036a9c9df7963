package models

import (
	"github.com/shopspring/decimal"

	transfermodels "rotrust/internal/transfer/models"
	id "rotrust/pkg/domain"
)

// Created is the payload of an escrow creation event.
type Created struct {
	TransferID id.TransferID   `json:"transfer_id"`
	SellerID   id.PartyID      `json:"seller_id"`
	BuyerID    id.PartyID      `json:"buyer_id"`
	Price      decimal.Decimal `json:"price"`
	Conditions []string        `json:"conditions"`
}

// PaymentAdded is the payload of a payment event.
type PaymentAdded struct {
	PaymentID string                       `json:"payment_id"`
	Amount    decimal.Decimal              `json:"amount"`
	Method    transfermodels.PaymentMethod `json:"method"`
	TotalPaid decimal.Decimal              `json:"total_paid"`
	Status    Status                       `json:"status"`
}

// DocumentAttached is the payload of a document attestation event.
type DocumentAttached struct {
	DocumentID  string       `json:"document_id"`
	Kind        DocumentKind `json:"kind"`
	ContentHash string       `json:"content_hash"`
}

// ConditionMet is the payload of a condition attestation event.
type ConditionMet struct {
	ConditionID string     `json:"condition_id"`
	VerifierID  id.PartyID `json:"verifier_id"`
	Pending     int        `json:"pending_conditions"`
}

// Ready is the payload of the readiness event.
type Ready struct {
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// Completed is the payload of an escrow completion event.
type Completed struct {
	TransferID id.TransferID   `json:"transfer_id"`
	FromOwner  id.PartyID      `json:"from_owner"`
	ToOwner    id.PartyID      `json:"to_owner"`
	Price      decimal.Decimal `json:"price"`
}

// Cancelled is the payload of an escrow cancellation event.
type Cancelled struct {
	Reason         string `json:"reason"`
	PreviousStatus Status `json:"previous_status"`
}

// PendingConditions counts declared conditions not yet attested.
func (e *Escrow) PendingConditions() int {
	n := 0
	for _, met := range e.ConditionsMet {
		if !met {
			n++
		}
	}
	return n
}

// ConditionIDs lists declared condition ids in declaration order.
func (e *Escrow) ConditionIDs() []string {
	out := make([]string, len(e.Conditions))
	for i, c := range e.Conditions {
		out[i] = c.ID
	}
	return out
}
