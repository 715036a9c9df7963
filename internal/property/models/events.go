package models

import (
	"github.com/shopspring/decimal"

	id "rotrust/pkg/domain"
)

// Registered is the payload of a property registration event.
type Registered struct {
	Address string     `json:"address"`
	OwnerID id.PartyID `json:"owner_id"`
	Type    Type       `json:"type"`
}

// DetailsUpdated is the payload of a details update event.
type DetailsUpdated struct {
	Details Details `json:"details"`
}

// StatusChanged is the payload of a registry status change event.
type StatusChanged struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// OwnershipTransferred is the payload of an ownership change event.
type OwnershipTransferred struct {
	Kind       TransferKind    `json:"kind"`
	FromOwner  id.PartyID      `json:"from_owner"`
	ToOwner    id.PartyID      `json:"to_owner"`
	Price      decimal.Decimal `json:"price"`
	TransferID id.TransferID   `json:"transfer_id,omitempty"`
	EscrowID   id.EscrowID     `json:"escrow_id,omitempty"`
}

// OwnershipTransferredFrom builds the event payload for a history entry.
func OwnershipTransferredFrom(e HistoryEntry) OwnershipTransferred {
	return OwnershipTransferred{
		Kind:       e.Type,
		FromOwner:  e.FromOwner,
		ToOwner:    e.ToOwner,
		Price:      e.Price,
		TransferID: e.TransferID,
		EscrowID:   e.EscrowID,
	}
}
