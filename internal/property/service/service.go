// Package service implements the property registry operations.
package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"rotrust/internal/events"
	"rotrust/internal/ledger"
	"rotrust/internal/platform/invoke"
	"rotrust/internal/property/models"
	"rotrust/internal/property/store"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/requestcontext"
)

// Service is the property registry.
type Service struct {
	runner *invoke.Runner
}

// New creates the registry over runner.
func New(runner *invoke.Runner) *Service {
	return &Service{runner: runner}
}

// RegisterCommand carries the arguments of RegisterProperty.
type RegisterCommand struct {
	ID      id.PropertyID
	Address string
	OwnerID id.PartyID
	Details models.Details
}

// DirectTransferCommand carries the arguments of a standalone ownership
// transfer.
type DirectTransferCommand struct {
	PropertyID    id.PropertyID
	ExpectedOwner id.PartyID
	NewOwner      id.PartyID
	Price         decimal.Decimal
}

// RegisterProperty creates a property owned by its registrant.
func (s *Service) RegisterProperty(ctx context.Context, cmd RegisterCommand) (*models.Property, error) {
	if err := id.ValidateIDs(cmd.ID, cmd.OwnerID); err != nil {
		return nil, err
	}

	var registered *models.Property
	err := s.runner.Run(ctx, "RegisterProperty", propertyAttrs(cmd.ID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			exists, err := store.Exists(ctx, txn, cmd.ID)
			if err != nil {
				return err
			}
			if exists {
				return dErrors.Newf(dErrors.CodeAlreadyExists, "property %s already exists", cmd.ID)
			}
			p, err := models.NewProperty(cmd.ID, cmd.Address, cmd.OwnerID, cmd.Details, requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			if err := store.Create(ctx, txn, p); err != nil {
				return err
			}
			registered = p
			return out.Add(events.PropertyRegistered, events.AggregateProperty, p.ID.String(), p.ID.String(),
				models.Registered{Address: p.Address, OwnerID: p.OwnerID, Type: p.Details.Type})
		})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// GetProperty returns the committed property and its ledger version.
func (s *Service) GetProperty(ctx context.Context, propertyID id.PropertyID) (*models.Property, ledger.Version, error) {
	if err := id.ValidateIDs(propertyID); err != nil {
		return nil, ledger.Absent, err
	}
	var (
		p       *models.Property
		version ledger.Version
	)
	err := s.runner.Read(ctx, "GetProperty", propertyAttrs(propertyID), func(ctx context.Context, txn ledger.Txn) error {
		var err error
		p, version, err = store.Get(ctx, txn, propertyID)
		return err
	})
	if err != nil {
		return nil, ledger.Absent, err
	}
	return p, version, nil
}

// GetHistory returns the ownership history, oldest first.
func (s *Service) GetHistory(ctx context.Context, propertyID id.PropertyID) ([]models.HistoryEntry, error) {
	p, _, err := s.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return p.History, nil
}

// UpdateDetails merges patch into the property's details.
func (s *Service) UpdateDetails(ctx context.Context, propertyID id.PropertyID, patch models.DetailsPatch) (*models.Property, error) {
	if err := id.ValidateIDs(propertyID); err != nil {
		return nil, err
	}
	var updated *models.Property
	err := s.runner.Run(ctx, "UpdatePropertyDetails", propertyAttrs(propertyID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			p, version, err := store.Get(ctx, txn, propertyID)
			if err != nil {
				return err
			}
			now := requestcontext.Now(ctx)
			details, err := p.CanUpdateDetails(patch, now)
			if err != nil {
				return err
			}
			p.ApplyDetails(details, now)
			if err := store.Put(ctx, txn, p, version); err != nil {
				return err
			}
			updated = p
			return out.Add(events.PropertyDetailsUpdated, events.AggregateProperty, p.ID.String(), p.ID.String(),
				models.DetailsUpdated{Details: p.Details})
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus changes the registry status.
func (s *Service) UpdateStatus(ctx context.Context, propertyID id.PropertyID, status models.Status) (*models.Property, error) {
	if err := id.ValidateIDs(propertyID); err != nil {
		return nil, err
	}
	var updated *models.Property
	err := s.runner.Run(ctx, "UpdatePropertyStatus", propertyAttrs(propertyID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			p, version, err := store.Get(ctx, txn, propertyID)
			if err != nil {
				return err
			}
			if err := p.CanChangeStatus(status); err != nil {
				return err
			}
			from := p.Status
			p.ApplyStatus(status, requestcontext.Now(ctx))
			if err := store.Put(ctx, txn, p, version); err != nil {
				return err
			}
			updated = p
			return out.Add(events.PropertyStatusChanged, events.AggregateProperty, p.ID.String(), p.ID.String(),
				models.StatusChanged{From: from, To: status})
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyOwnershipTransfer moves ownership outside of an escrow. The owner check
// and the write happen in one ledger transaction.
func (s *Service) ApplyOwnershipTransfer(ctx context.Context, cmd DirectTransferCommand) (*models.Property, error) {
	if err := id.ValidateIDs(cmd.PropertyID, cmd.ExpectedOwner, cmd.NewOwner); err != nil {
		return nil, err
	}
	if !cmd.Price.IsZero() {
		if err := id.ValidateAmount("price", cmd.Price); err != nil {
			return nil, err
		}
	}
	var updated *models.Property
	err := s.runner.Run(ctx, "ApplyOwnershipTransfer", propertyAttrs(cmd.PropertyID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			p, _, err := TransferOwnership(ctx, txn, out, cmd.PropertyID, cmd.ExpectedOwner, cmd.NewOwner,
				models.TransferMetadata{Kind: models.TransferKindDirect, Price: cmd.Price})
			updated = p
			return err
		})
	if err != nil {
		return nil, err
	}
	s.runner.Metrics().IncrementOwnershipTransfers()
	return updated, nil
}

// TransferOwnership re-reads the property inside txn, checks the recorded
// owner against expectedOwner, and stages the new owner with a history entry.
// It is the only path that changes a property's owner.
func TransferOwnership(ctx context.Context, txn ledger.Txn, out *events.Batch, propertyID id.PropertyID,
	expectedOwner, newOwner id.PartyID, meta models.TransferMetadata,
) (*models.Property, models.HistoryEntry, error) {
	p, version, err := store.Get(ctx, txn, propertyID)
	if err != nil {
		return nil, models.HistoryEntry{}, err
	}
	if err := p.CanTransferOwnership(expectedOwner, newOwner); err != nil {
		return nil, models.HistoryEntry{}, err
	}
	entry := p.ApplyOwnershipTransfer(newOwner, meta, requestcontext.Now(ctx))
	if err := store.Put(ctx, txn, p, version); err != nil {
		return nil, models.HistoryEntry{}, err
	}
	if err := out.Add(events.OwnershipTransferred, events.AggregateProperty, p.ID.String(), p.ID.String(),
		models.OwnershipTransferredFrom(entry)); err != nil {
		return nil, models.HistoryEntry{}, err
	}
	return p, entry, nil
}

func propertyAttrs(propertyID id.PropertyID) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("property.id", propertyID.String())}
}
