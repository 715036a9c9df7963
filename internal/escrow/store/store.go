// Package store persists Escrow records through a ledger transaction.
package store

import (
	"context"
	"errors"
	"iter"

	"rotrust/internal/escrow/models"
	"rotrust/internal/ledger"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/sentinel"
)

// DocType tags escrow records and their index entries.
const DocType = "escrow"

// Index fields.
const (
	FieldProperty = "property"
	FieldTransfer = "transfer"
	FieldSeller   = "seller"
	FieldBuyer    = "buyer"
	FieldStatus   = "status"
)

// Key returns the ledger key of an escrow.
func Key(escrowID id.EscrowID) string {
	return ledger.Key(DocType, escrowID.String())
}

// Get loads an escrow and the version it was read at.
func Get(ctx context.Context, txn ledger.Txn, escrowID id.EscrowID) (*models.Escrow, ledger.Version, error) {
	e, v, err := ledger.Load[models.Escrow](ctx, txn, Key(escrowID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ledger.Absent, dErrors.Newf(dErrors.CodeNotFound, "escrow %s not found", escrowID)
	}
	return e, v, err
}

// Exists reports whether escrowID is occupied.
func Exists(ctx context.Context, txn ledger.Txn, escrowID id.EscrowID) (bool, error) {
	_, err := txn.Get(ctx, Key(escrowID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create stages a new escrow.
func Create(ctx context.Context, txn ledger.Txn, e *models.Escrow) error {
	return Put(ctx, txn, e, ledger.Absent)
}

// Put stages e over the version the caller read.
func Put(ctx context.Context, txn ledger.Txn, e *models.Escrow, expected ledger.Version) error {
	return ledger.Save(ctx, txn, DocType, Key(e.ID), e, indexes(e), expected)
}

// ByProperty selects escrows of a property.
func ByProperty(propertyID id.PropertyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldProperty, Value: propertyID.String()}
}

// ByTransfer selects escrows tracking a transfer.
func ByTransfer(transferID id.TransferID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldTransfer, Value: transferID.String()}
}

// BySeller selects escrows where party sells.
func BySeller(party id.PartyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldSeller, Value: party.String()}
}

// ByBuyer selects escrows where party buys.
func ByBuyer(party id.PartyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldBuyer, Value: party.String()}
}

// ByStatus selects escrows in a lifecycle state.
func ByStatus(status models.Status) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldStatus, Value: string(status)}
}

// Decode adapts a record sequence to escrows.
func Decode(seq iter.Seq2[ledger.Record, error]) iter.Seq2[*models.Escrow, error] {
	return ledger.DecodeAll[models.Escrow](seq)
}

func indexes(e *models.Escrow) []ledger.IndexEntry {
	return []ledger.IndexEntry{
		{Field: FieldProperty, Value: e.PropertyID.String()},
		{Field: FieldTransfer, Value: e.TransferID.String()},
		{Field: FieldSeller, Value: e.SellerID.String()},
		{Field: FieldBuyer, Value: e.BuyerID.String()},
		{Field: FieldStatus, Value: string(e.Status)},
	}
}
