// Package service implements the transfer record operations.
package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"rotrust/internal/events"
	"rotrust/internal/ledger"
	"rotrust/internal/platform/invoke"
	propertystore "rotrust/internal/property/store"
	"rotrust/internal/transfer/models"
	"rotrust/internal/transfer/store"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/requestcontext"
)

// Service manages transfers. Completion is not exposed here; it happens only
// as part of escrow completion.
type Service struct {
	runner *invoke.Runner
}

// New creates the transfer service over runner.
func New(runner *invoke.Runner) *Service {
	return &Service{runner: runner}
}

// CreateCommand carries the arguments of CreateTransfer.
type CreateCommand struct {
	ID            id.TransferID
	PropertyID    id.PropertyID
	SellerID      id.PartyID
	BuyerID       id.PartyID
	Price         decimal.Decimal
	PaymentMethod models.PaymentMethod
	Notes         string
}

// CreateTransfer records a pending sale. The seller must be the property's
// current owner at the time of the ledger read.
func (s *Service) CreateTransfer(ctx context.Context, cmd CreateCommand) (*models.Transfer, error) {
	if err := id.ValidateIDs(cmd.ID, cmd.PropertyID, cmd.SellerID, cmd.BuyerID); err != nil {
		return nil, err
	}

	var created *models.Transfer
	err := s.runner.Run(ctx, "CreateTransfer", transferAttrs(cmd.ID, cmd.PropertyID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			t, err := models.NewTransfer(cmd.ID, cmd.PropertyID, cmd.SellerID, cmd.BuyerID,
				cmd.Price, cmd.PaymentMethod, cmd.Notes, requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			exists, err := store.Exists(ctx, txn, cmd.ID)
			if err != nil {
				return err
			}
			if exists {
				return dErrors.Newf(dErrors.CodeAlreadyExists, "transfer %s already exists", cmd.ID)
			}
			p, _, err := propertystore.Get(ctx, txn, cmd.PropertyID)
			if err != nil {
				return err
			}
			if p.IsInactive() {
				return dErrors.Newf(dErrors.CodeInvalidState, "property %s is inactive", p.ID)
			}
			if p.OwnerID != cmd.SellerID {
				return dErrors.Newf(dErrors.CodeOwnershipMismatch,
					"property %s is owned by %s, not %s", p.ID, p.OwnerID, cmd.SellerID)
			}
			if err := store.Create(ctx, txn, t); err != nil {
				return err
			}
			created = t
			return out.Add(events.TransferCreated, events.AggregateTransfer, t.ID.String(), t.PropertyID.String(),
				models.Created{SellerID: t.SellerID, BuyerID: t.BuyerID, Price: t.Price, PaymentMethod: t.PaymentMethod})
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CancelTransfer cancels a pending transfer. An escrow still tracking it can
// no longer complete.
func (s *Service) CancelTransfer(ctx context.Context, transferID id.TransferID, reason string) (*models.Transfer, error) {
	if err := id.ValidateIDs(transferID); err != nil {
		return nil, err
	}
	reason, err := models.ValidateReason(reason)
	if err != nil {
		return nil, err
	}

	var cancelled *models.Transfer
	err = s.runner.Run(ctx, "CancelTransfer", transferAttrs(transferID, ""),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			t, version, err := store.Get(ctx, txn, transferID)
			if err != nil {
				return err
			}
			if err := t.CanCancel(); err != nil {
				return err
			}
			cancelled, err = Cancel(ctx, txn, out, t, version, reason)
			return err
		})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// GetTransfer returns the committed transfer.
func (s *Service) GetTransfer(ctx context.Context, transferID id.TransferID) (*models.Transfer, ledger.Version, error) {
	if err := id.ValidateIDs(transferID); err != nil {
		return nil, ledger.Absent, err
	}
	var (
		t       *models.Transfer
		version ledger.Version
	)
	err := s.runner.Read(ctx, "GetTransfer", transferAttrs(transferID, ""), func(ctx context.Context, txn ledger.Txn) error {
		var err error
		t, version, err = store.Get(ctx, txn, transferID)
		return err
	})
	if err != nil {
		return nil, ledger.Absent, err
	}
	return t, version, nil
}

// Cancel stages the cancellation of t inside txn. Callers have checked
// CanCancel.
func Cancel(ctx context.Context, txn ledger.Txn, out *events.Batch, t *models.Transfer,
	version ledger.Version, reason string,
) (*models.Transfer, error) {
	t.ApplyCancel(reason, requestcontext.Now(ctx))
	if err := store.Put(ctx, txn, t, version); err != nil {
		return nil, err
	}
	return t, out.Add(events.TransferCancelled, events.AggregateTransfer, t.ID.String(), t.PropertyID.String(),
		models.Cancelled{Reason: reason, EscrowID: t.EscrowID})
}

// Complete stages the completion of t inside txn.
func Complete(ctx context.Context, txn ledger.Txn, out *events.Batch, t *models.Transfer, version ledger.Version) error {
	if err := t.CanComplete(); err != nil {
		return err
	}
	t.ApplyComplete(requestcontext.Now(ctx))
	if err := store.Put(ctx, txn, t, version); err != nil {
		return err
	}
	return out.Add(events.TransferCompleted, events.AggregateTransfer, t.ID.String(), t.PropertyID.String(),
		models.Completed{EscrowID: t.EscrowID, BuyerID: t.BuyerID})
}

func transferAttrs(transferID id.TransferID, propertyID id.PropertyID) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("transfer.id", transferID.String())}
	if propertyID != "" {
		attrs = append(attrs, attribute.String("property.id", propertyID.String()))
	}
	return attrs
}
