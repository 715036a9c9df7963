package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
)

// Status is the registry status of a property.
type Status string

const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusInactive Status = "inactive"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPending, StatusInactive:
		return true
	}
	return false
}

// TransferKind tags an ownership history entry.
type TransferKind string

const (
	TransferKindEscrowCompletion TransferKind = "escrow_completion"
	TransferKindDirect           TransferKind = "direct_transfer"
)

func (k TransferKind) IsValid() bool {
	return k == TransferKindEscrowCompletion || k == TransferKindDirect
}

const maxAddressLen = 512

// HistoryEntry records one ownership change.
type HistoryEntry struct {
	Type       TransferKind    `json:"type"`
	FromOwner  id.PartyID      `json:"from_owner"`
	ToOwner    id.PartyID      `json:"to_owner"`
	Price      decimal.Decimal `json:"price"`
	TransferID id.TransferID   `json:"transfer_id,omitempty"`
	EscrowID   id.EscrowID     `json:"escrow_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TransferMetadata describes why ownership is changing.
type TransferMetadata struct {
	Kind       TransferKind
	Price      decimal.Decimal
	TransferID id.TransferID
	EscrowID   id.EscrowID
}

// Property is the registry aggregate.
//
// Invariants:
//   - OwnerID equals the ToOwner of the last History entry, or RegistrantID
//     when History is empty
//   - History is append-only
//   - OwnerID changes only through ApplyOwnershipTransfer
type Property struct {
	ID           id.PropertyID  `json:"id"`
	Address      string         `json:"address"`
	OwnerID      id.PartyID     `json:"owner_id"`
	RegistrantID id.PartyID     `json:"registrant_id"`
	Details      Details        `json:"details"`
	Status       Status         `json:"status"`
	History      []HistoryEntry `json:"history"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewProperty registers a property owned by its registrant.
func NewProperty(propertyID id.PropertyID, address string, owner id.PartyID, details Details, now time.Time) (*Property, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "address is required")
	}
	if len(address) > maxAddressLen {
		return nil, dErrors.New(dErrors.CodeValidation, "address too long")
	}
	if err := details.Validate(now); err != nil {
		return nil, err
	}
	return &Property{
		ID:           propertyID,
		Address:      address,
		OwnerID:      owner,
		RegistrantID: owner,
		Details:      details,
		Status:       StatusActive,
		History:      []HistoryEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// OwnerConsistent reports whether OwnerID agrees with History.
func (p *Property) OwnerConsistent() bool {
	if len(p.History) == 0 {
		return p.OwnerID == p.RegistrantID
	}
	return p.OwnerID == p.History[len(p.History)-1].ToOwner
}

// CanUpdateDetails merges patch into the current details and validates the
// result. Use the returned value with ApplyDetails.
func (p *Property) CanUpdateDetails(patch DetailsPatch, now time.Time) (Details, error) {
	if patch.IsEmpty() {
		return Details{}, dErrors.New(dErrors.CodeValidation, "no detail fields to update")
	}
	merged := p.Details.Merge(patch)
	if err := merged.Validate(now); err != nil {
		return Details{}, err
	}
	return merged, nil
}

// ApplyDetails replaces the details. Owner, status and history are untouched.
func (p *Property) ApplyDetails(d Details, now time.Time) {
	p.Details = d
	p.UpdatedAt = now
}

// CanChangeStatus checks a registry status change.
func (p *Property) CanChangeStatus(to Status) error {
	if !to.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown property status %q", to)
	}
	if p.Status == to {
		return dErrors.Newf(dErrors.CodeInvalidState, "property is already %s", to)
	}
	return nil
}

// ApplyStatus sets the registry status.
func (p *Property) ApplyStatus(to Status, now time.Time) {
	p.Status = to
	p.UpdatedAt = now
}

// CanTransferOwnership checks the ledger-recorded owner against the owner the
// caller believes is current. It must run inside the same ledger transaction
// as the write.
func (p *Property) CanTransferOwnership(expectedOwner, newOwner id.PartyID) error {
	if p.OwnerID != expectedOwner {
		return dErrors.Newf(dErrors.CodeOwnershipMismatch,
			"property %s is owned by %s, not %s", p.ID, p.OwnerID, expectedOwner)
	}
	if newOwner == expectedOwner {
		return dErrors.New(dErrors.CodeValidation, "new owner must differ from current owner")
	}
	return nil
}

// ApplyOwnershipTransfer appends a history entry and moves ownership.
// Call CanTransferOwnership first.
func (p *Property) ApplyOwnershipTransfer(newOwner id.PartyID, meta TransferMetadata, now time.Time) HistoryEntry {
	entry := HistoryEntry{
		Type:       meta.Kind,
		FromOwner:  p.OwnerID,
		ToOwner:    newOwner,
		Price:      meta.Price,
		TransferID: meta.TransferID,
		EscrowID:   meta.EscrowID,
		Timestamp:  now,
	}
	p.History = append(p.History, entry)
	p.OwnerID = newOwner
	p.UpdatedAt = now
	return entry
}

// IsInactive reports whether the property is withdrawn from trading.
func (p *Property) IsInactive() bool {
	return p.Status == StatusInactive
}
