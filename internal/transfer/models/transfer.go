package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further mutation is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentMethod is how the buyer intends to pay.
type PaymentMethod string

const (
	PaymentBankTransfer  PaymentMethod = "bank_transfer"
	PaymentEscrowAccount PaymentMethod = "escrow_account"
	PaymentMortgage      PaymentMethod = "mortgage"
	PaymentCash          PaymentMethod = "cash"
	PaymentOther         PaymentMethod = "other"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentBankTransfer, PaymentEscrowAccount, PaymentMortgage, PaymentCash, PaymentOther:
		return true
	}
	return false
}

const (
	maxNotesLen  = 2000
	maxReasonLen = 1000
)

// Transfer is one proposed sale of a property.
//
// Invariants:
//   - SellerID owned the property when the transfer was created
//   - Status leaves pending exactly once
//   - Completed only through escrow completion
type Transfer struct {
	ID                 id.TransferID   `json:"id"`
	PropertyID         id.PropertyID   `json:"property_id"`
	SellerID           id.PartyID      `json:"seller_id"`
	BuyerID            id.PartyID      `json:"buyer_id"`
	Price              decimal.Decimal `json:"price"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	Status             Status          `json:"status"`
	Notes              string          `json:"notes,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	EscrowID           id.EscrowID     `json:"escrow_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
}

// NewTransfer validates the sale terms and returns a pending transfer. The
// seller's ownership is checked by the caller against the ledger.
func NewTransfer(transferID id.TransferID, propertyID id.PropertyID, seller, buyer id.PartyID,
	price decimal.Decimal, method PaymentMethod, notes string, now time.Time,
) (*Transfer, error) {
	if seller == buyer {
		return nil, dErrors.New(dErrors.CodeValidation, "seller and buyer must differ")
	}
	if err := id.ValidateAmount("price", price); err != nil {
		return nil, err
	}
	if !method.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown payment method %q", method)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLen {
		return nil, dErrors.New(dErrors.CodeValidation, "notes too long")
	}
	return &Transfer{
		ID:            transferID,
		PropertyID:    propertyID,
		SellerID:      seller,
		BuyerID:       buyer,
		Price:         price,
		PaymentMethod: method,
		Status:        StatusPending,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidateReason normalizes an optional cancellation reason.
func ValidateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return "", dErrors.New(dErrors.CodeValidation, "cancellation reason too long")
	}
	return reason, nil
}

// CanCancel checks that the transfer is still pending.
func (t *Transfer) CanCancel() error {
	if t.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "transfer %s is %s", t.ID, t.Status)
	}
	return nil
}

// ApplyCancel records the cancellation.
func (t *Transfer) ApplyCancel(reason string, now time.Time) {
	t.Status = StatusCancelled
	t.CancellationReason = reason
	t.CancelledAt = &now
	t.UpdatedAt = now
}

// CanAttachEscrow checks that an escrow may be opened against the transfer.
func (t *Transfer) CanAttachEscrow() error {
	if t.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "transfer %s is %s", t.ID, t.Status)
	}
	if t.EscrowID != "" {
		return dErrors.Newf(dErrors.CodeInvalidState, "transfer %s already has escrow %s", t.ID, t.EscrowID)
	}
	return nil
}

// ApplyAttachEscrow links the escrow tracking this transfer.
func (t *Transfer) ApplyAttachEscrow(escrowID id.EscrowID, now time.Time) {
	t.EscrowID = escrowID
	t.UpdatedAt = now
}

// CanComplete checks that the transfer can be completed by its escrow.
func (t *Transfer) CanComplete() error {
	if t.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "transfer %s is %s", t.ID, t.Status)
	}
	return nil
}

// ApplyComplete marks the sale completed.
func (t *Transfer) ApplyComplete(now time.Time) {
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// Created is the payload of a transfer creation event.
type Created struct {
	SellerID      id.PartyID      `json:"seller_id"`
	BuyerID       id.PartyID      `json:"buyer_id"`
	Price         decimal.Decimal `json:"price"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// Cancelled is the payload of a transfer cancellation event.
type Cancelled struct {
	Reason   string      `json:"reason"`
	EscrowID id.EscrowID `json:"escrow_id,omitempty"`
}

// Completed is the payload of a transfer completion event.
type Completed struct {
	EscrowID id.EscrowID `json:"escrow_id"`
	BuyerID  id.PartyID  `json:"buyer_id"`
}
