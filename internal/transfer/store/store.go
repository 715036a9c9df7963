// Package store persists Transfer records through a ledger transaction.
package store

import (
	"context"
	"errors"
	"iter"

	"rotrust/internal/ledger"
	"rotrust/internal/transfer/models"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/sentinel"
)

// DocType tags transfer records and their index entries.
const DocType = "transfer"

// Index fields.
const (
	FieldProperty = "property"
	FieldSeller   = "seller"
	FieldBuyer    = "buyer"
	FieldStatus   = "status"
)

// Key returns the ledger key of a transfer.
func Key(transferID id.TransferID) string {
	return ledger.Key(DocType, transferID.String())
}

// Get loads a transfer and the version it was read at.
func Get(ctx context.Context, txn ledger.Txn, transferID id.TransferID) (*models.Transfer, ledger.Version, error) {
	t, v, err := ledger.Load[models.Transfer](ctx, txn, Key(transferID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ledger.Absent, dErrors.Newf(dErrors.CodeNotFound, "transfer %s not found", transferID)
	}
	return t, v, err
}

// Exists reports whether transferID is occupied.
func Exists(ctx context.Context, txn ledger.Txn, transferID id.TransferID) (bool, error) {
	_, err := txn.Get(ctx, Key(transferID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create stages a new transfer.
func Create(ctx context.Context, txn ledger.Txn, t *models.Transfer) error {
	return Put(ctx, txn, t, ledger.Absent)
}

// Put stages t over the version the caller read.
func Put(ctx context.Context, txn ledger.Txn, t *models.Transfer, expected ledger.Version) error {
	return ledger.Save(ctx, txn, DocType, Key(t.ID), t, indexes(t), expected)
}

// ByProperty selects transfers of a property.
func ByProperty(propertyID id.PropertyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldProperty, Value: propertyID.String()}
}

// BySeller selects transfers where party sells.
func BySeller(party id.PartyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldSeller, Value: party.String()}
}

// ByBuyer selects transfers where party buys.
func ByBuyer(party id.PartyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldBuyer, Value: party.String()}
}

// ByStatus selects transfers in a lifecycle state.
func ByStatus(status models.Status) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldStatus, Value: string(status)}
}

// Decode adapts a record sequence to transfers.
func Decode(seq iter.Seq2[ledger.Record, error]) iter.Seq2[*models.Transfer, error] {
	return ledger.DecodeAll[models.Transfer](seq)
}

func indexes(t *models.Transfer) []ledger.IndexEntry {
	return []ledger.IndexEntry{
		{Field: FieldProperty, Value: t.PropertyID.String()},
		{Field: FieldSeller, Value: t.SellerID.String()},
		{Field: FieldBuyer, Value: t.BuyerID.String()},
		{Field: FieldStatus, Value: string(t.Status)},
	}
}
