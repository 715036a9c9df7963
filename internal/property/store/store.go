// Package store persists Property records through a ledger transaction.
package store

import (
	"context"
	"errors"
	"iter"

	"rotrust/internal/ledger"
	"rotrust/internal/property/models"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/sentinel"
)

// DocType tags property records and their index entries.
const DocType = "property"

// FieldOwner indexes properties by current owner.
const FieldOwner = "owner"

// Key returns the ledger key of a property.
func Key(propertyID id.PropertyID) string {
	return ledger.Key(DocType, propertyID.String())
}

// Get loads a property and the version it was read at.
func Get(ctx context.Context, txn ledger.Txn, propertyID id.PropertyID) (*models.Property, ledger.Version, error) {
	p, v, err := ledger.Load[models.Property](ctx, txn, Key(propertyID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ledger.Absent, dErrors.Newf(dErrors.CodeNotFound, "property %s not found", propertyID)
	}
	return p, v, err
}

// Exists reports whether propertyID is occupied. The key joins the read set
// either way, so a concurrent registration aborts the caller.
func Exists(ctx context.Context, txn ledger.Txn, propertyID id.PropertyID) (bool, error) {
	_, err := txn.Get(ctx, Key(propertyID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create stages a new property. It fails with a version conflict if the key
// is occupied.
func Create(ctx context.Context, txn ledger.Txn, p *models.Property) error {
	return Put(ctx, txn, p, ledger.Absent)
}

// Put stages p over the version the caller read.
func Put(ctx context.Context, txn ledger.Txn, p *models.Property, expected ledger.Version) error {
	return ledger.Save(ctx, txn, DocType, Key(p.ID), p, indexes(p), expected)
}

// ByOwner selects properties currently owned by owner.
func ByOwner(owner id.PartyID) ledger.Query {
	return ledger.Query{DocType: DocType, Field: FieldOwner, Value: owner.String()}
}

// Decode adapts a record sequence to properties.
func Decode(seq iter.Seq2[ledger.Record, error]) iter.Seq2[*models.Property, error] {
	return ledger.DecodeAll[models.Property](seq)
}

func indexes(p *models.Property) []ledger.IndexEntry {
	return []ledger.IndexEntry{{Field: FieldOwner, Value: p.OwnerID.String()}}
}
