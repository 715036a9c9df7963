package httptransport

import (
	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	id "rotrust/pkg/domain"
)

// Amounts travel as decimal strings so no float rounding happens on the wire.

type RegisterPropertyRequest struct {
	ID      string                 `json:"id" valid:"required"`
	Address string                 `json:"address" valid:"required"`
	OwnerID string                 `json:"owner_id" valid:"required"`
	Details propertymodels.Details `json:"details"`
}

func (r *RegisterPropertyRequest) command() propertyservice.RegisterCommand {
	return propertyservice.RegisterCommand{
		ID:      id.PropertyID(r.ID),
		Address: r.Address,
		OwnerID: id.PartyID(r.OwnerID),
		Details: r.Details,
	}
}

type UpdatePropertyDetailsRequest struct {
	PropertyID string                      `json:"property_id" valid:"required"`
	Patch      propertymodels.DetailsPatch `json:"patch"`
}

type UpdatePropertyStatusRequest struct {
	PropertyID string `json:"property_id" valid:"required"`
	Status     string `json:"status" valid:"required,in(active|pending|inactive)"`
}

type ApplyOwnershipTransferRequest struct {
	PropertyID    string `json:"property_id" valid:"required"`
	ExpectedOwner string `json:"expected_owner" valid:"required"`
	NewOwner      string `json:"new_owner" valid:"required"`
	Price         string `json:"price" valid:"required"`
}

func (r *ApplyOwnershipTransferRequest) command() (propertyservice.DirectTransferCommand, error) {
	price, err := id.ParseAmount("price", r.Price)
	if err != nil {
		return propertyservice.DirectTransferCommand{}, err
	}
	return propertyservice.DirectTransferCommand{
		PropertyID:    id.PropertyID(r.PropertyID),
		ExpectedOwner: id.PartyID(r.ExpectedOwner),
		NewOwner:      id.PartyID(r.NewOwner),
		Price:         price,
	}, nil
}

type CreateTransferRequest struct {
	ID            string `json:"id" valid:"required"`
	PropertyID    string `json:"property_id" valid:"required"`
	SellerID      string `json:"seller_id" valid:"required"`
	BuyerID       string `json:"buyer_id" valid:"required"`
	Price         string `json:"price" valid:"required"`
	PaymentMethod string `json:"payment_method" valid:"required"`
	Notes         string `json:"notes"`
}

func (r *CreateTransferRequest) command() (transferservice.CreateCommand, error) {
	price, err := id.ParseAmount("price", r.Price)
	if err != nil {
		return transferservice.CreateCommand{}, err
	}
	return transferservice.CreateCommand{
		ID:            id.TransferID(r.ID),
		PropertyID:    id.PropertyID(r.PropertyID),
		SellerID:      id.PartyID(r.SellerID),
		BuyerID:       id.PartyID(r.BuyerID),
		Price:         price,
		PaymentMethod: transfermodels.PaymentMethod(r.PaymentMethod),
		Notes:         r.Notes,
	}, nil
}

type CancelTransferRequest struct {
	TransferID string `json:"transfer_id" valid:"required"`
	Reason     string `json:"reason"`
}

type CreateEscrowRequest struct {
	ID         string                   `json:"id" valid:"required"`
	TransferID string                   `json:"transfer_id" valid:"required"`
	PropertyID string                   `json:"property_id" valid:"required"`
	SellerID   string                   `json:"seller_id" valid:"required"`
	BuyerID    string                   `json:"buyer_id" valid:"required"`
	Price      string                   `json:"price" valid:"required"`
	Conditions []escrowmodels.Condition `json:"conditions"`
}

func (r *CreateEscrowRequest) command() (escrowservice.CreateCommand, error) {
	price, err := id.ParseAmount("price", r.Price)
	if err != nil {
		return escrowservice.CreateCommand{}, err
	}
	return escrowservice.CreateCommand{
		ID:         id.EscrowID(r.ID),
		TransferID: id.TransferID(r.TransferID),
		PropertyID: id.PropertyID(r.PropertyID),
		SellerID:   id.PartyID(r.SellerID),
		BuyerID:    id.PartyID(r.BuyerID),
		Price:      price,
		Conditions: r.Conditions,
	}, nil
}

type AddPaymentRequest struct {
	EscrowID  string `json:"escrow_id" valid:"required"`
	PaymentID string `json:"payment_id" valid:"required"`
	Amount    string `json:"amount" valid:"required"`
	Method    string `json:"method" valid:"required"`
	PayerID   string `json:"payer_id"`
	Reference string `json:"reference"`
}

func (r *AddPaymentRequest) command() (escrowservice.PaymentCommand, error) {
	amount, err := id.ParseAmount("amount", r.Amount)
	if err != nil {
		return escrowservice.PaymentCommand{}, err
	}
	return escrowservice.PaymentCommand{
		PaymentID: r.PaymentID,
		Amount:    amount,
		Method:    transfermodels.PaymentMethod(r.Method),
		PayerID:   id.PartyID(r.PayerID),
		Reference: r.Reference,
	}, nil
}

type AddDocumentRequest struct {
	EscrowID         string            `json:"escrow_id" valid:"required"`
	DocumentID       string            `json:"document_id" valid:"required"`
	Kind             string            `json:"kind" valid:"required"`
	ContentHash      string            `json:"content_hash" valid:"required"`
	IssuingAuthority string            `json:"issuing_authority"`
	Metadata         map[string]string `json:"metadata"`
}

func (r *AddDocumentRequest) command() escrowservice.DocumentCommand {
	return escrowservice.DocumentCommand{
		DocumentID:       r.DocumentID,
		Kind:             escrowmodels.DocumentKind(r.Kind),
		ContentHash:      r.ContentHash,
		IssuingAuthority: r.IssuingAuthority,
		Metadata:         r.Metadata,
	}
}

type MarkConditionMetRequest struct {
	EscrowID    string `json:"escrow_id" valid:"required"`
	ConditionID string `json:"condition_id" valid:"required"`
	VerifierID  string `json:"verifier_id" valid:"required"`
	Notes       string `json:"notes"`
}

func (r *MarkConditionMetRequest) command() escrowservice.ConditionCommand {
	return escrowservice.ConditionCommand{
		ConditionID: r.ConditionID,
		VerifierID:  id.PartyID(r.VerifierID),
		Notes:       r.Notes,
	}
}

type CompleteEscrowRequest struct {
	EscrowID string `json:"escrow_id" valid:"required"`
}

type CancelEscrowRequest struct {
	EscrowID string `json:"escrow_id" valid:"required"`
	Reason   string `json:"reason"`
}

// Versioned pairs a record with the ledger version it was read at.
type Versioned[T any] struct {
	Value   *T     `json:"value"`
	Version uint64 `json:"version"`
}
