// Package service implements the escrow state machine operations.
//
// Every operation runs as one ledger transaction: it reads the current
// versions of the records it touches, applies the model's Can*/Apply* pair,
// and stages the new versions. CompleteEscrow is the only operation that
// writes three aggregates, and it does so in a single transaction.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"rotrust/internal/escrow/models"
	"rotrust/internal/escrow/store"
	"rotrust/internal/events"
	"rotrust/internal/ledger"
	"rotrust/internal/platform/invoke"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	propertystore "rotrust/internal/property/store"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	transferstore "rotrust/internal/transfer/store"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/requestcontext"
)

// Service runs the escrow state machine.
type Service struct {
	runner *invoke.Runner
	policy models.ReadinessPolicy
}

// Option configures the service.
type Option func(*Service)

// WithReadinessPolicy selects which operations re-evaluate readiness.
func WithReadinessPolicy(p models.ReadinessPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// New creates the escrow service over runner.
func New(runner *invoke.Runner, opts ...Option) *Service {
	s := &Service{runner: runner, policy: models.ReadinessOnCondition}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the readiness policy in force.
func (s *Service) Policy() models.ReadinessPolicy {
	return s.policy
}

// CreateCommand carries the arguments of CreateEscrow.
type CreateCommand struct {
	ID         id.EscrowID
	TransferID id.TransferID
	PropertyID id.PropertyID
	SellerID   id.PartyID
	BuyerID    id.PartyID
	Price      decimal.Decimal
	Conditions []models.Condition
}

// PaymentCommand carries the arguments of AddPayment.
type PaymentCommand struct {
	PaymentID string
	Amount    decimal.Decimal
	Method    transfermodels.PaymentMethod
	PayerID   id.PartyID
	Reference string
}

// DocumentCommand carries the arguments of AddDocument.
type DocumentCommand struct {
	DocumentID       string
	Kind             models.DocumentKind
	ContentHash      string
	IssuingAuthority string
	Metadata         map[string]string
}

// ConditionCommand carries the arguments of MarkConditionMet.
type ConditionCommand struct {
	ConditionID string
	VerifierID  id.PartyID
	Notes       string
}

// CreateEscrow opens an escrow for a pending transfer. The seller must still
// own the property.
func (s *Service) CreateEscrow(ctx context.Context, cmd CreateCommand) (*models.Escrow, error) {
	if err := id.ValidateIDs(cmd.ID, cmd.TransferID, cmd.PropertyID, cmd.SellerID, cmd.BuyerID); err != nil {
		return nil, err
	}

	var created *models.Escrow
	err := s.runner.Run(ctx, "CreateEscrow", escrowAttrs(cmd.ID, cmd.PropertyID),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			now := requestcontext.Now(ctx)
			e, err := models.NewEscrow(models.Terms{
				ID:         cmd.ID,
				TransferID: cmd.TransferID,
				PropertyID: cmd.PropertyID,
				SellerID:   cmd.SellerID,
				BuyerID:    cmd.BuyerID,
				Price:      cmd.Price,
				Conditions: cmd.Conditions,
			}, s.policy, now)
			if err != nil {
				return err
			}
			exists, err := store.Exists(ctx, txn, cmd.ID)
			if err != nil {
				return err
			}
			if exists {
				return dErrors.Newf(dErrors.CodeAlreadyExists, "escrow %s already exists", cmd.ID)
			}
			t, transferVersion, err := transferstore.Get(ctx, txn, cmd.TransferID)
			if err != nil {
				return err
			}
			p, _, err := propertystore.Get(ctx, txn, cmd.PropertyID)
			if err != nil {
				return err
			}
			if p.OwnerID != cmd.SellerID {
				return dErrors.Newf(dErrors.CodeOwnershipMismatch,
					"property %s is owned by %s, not %s", p.ID, p.OwnerID, cmd.SellerID)
			}
			if err := t.CanAttachEscrow(); err != nil {
				return err
			}
			if err := matchTransfer(e, t); err != nil {
				return err
			}
			if err := store.Create(ctx, txn, e); err != nil {
				return err
			}
			t.ApplyAttachEscrow(e.ID, now)
			if err := transferstore.Put(ctx, txn, t, transferVersion); err != nil {
				return err
			}
			created = e
			return out.Add(events.EscrowCreated, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.Created{
					TransferID: e.TransferID,
					SellerID:   e.SellerID,
					BuyerID:    e.BuyerID,
					Price:      e.Price,
					Conditions: e.ConditionIDs(),
				})
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddPayment records a partial payment. The first payment moves the escrow
// to in_progress.
func (s *Service) AddPayment(ctx context.Context, escrowID id.EscrowID, cmd PaymentCommand) (*models.Escrow, error) {
	return s.mutate(ctx, "AddPayment", escrowID,
		func(ctx context.Context, out *events.Batch, e *models.Escrow) error {
			p := models.Payment{
				ID:        cmd.PaymentID,
				Amount:    cmd.Amount,
				Method:    cmd.Method,
				PayerID:   cmd.PayerID,
				Reference: cmd.Reference,
			}
			if err := e.CanAddPayment(p); err != nil {
				return err
			}
			now := requestcontext.Now(ctx)
			e.ApplyPayment(p, now)
			if err := out.Add(events.PaymentAdded, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.PaymentAdded{
					PaymentID: p.ID,
					Amount:    p.Amount,
					Method:    p.Method,
					TotalPaid: e.TotalPaid(),
					Status:    e.Status,
				}); err != nil {
				return err
			}
			return s.evaluate(out, e, now, false)
		})
}

// AddDocument attaches a document attestation. It does not affect conditions.
func (s *Service) AddDocument(ctx context.Context, escrowID id.EscrowID, cmd DocumentCommand) (*models.Escrow, error) {
	d := models.Document{
		ID:               cmd.DocumentID,
		Kind:             cmd.Kind,
		ContentHash:      cmd.ContentHash,
		IssuingAuthority: cmd.IssuingAuthority,
		Metadata:         cmd.Metadata,
	}
	return s.mutate(ctx, "AddDocument", escrowID,
		func(ctx context.Context, out *events.Batch, e *models.Escrow) error {
			if err := e.CanAddDocument(d); err != nil {
				return err
			}
			if err := d.Normalize(); err != nil {
				return err
			}
			now := requestcontext.Now(ctx)
			e.ApplyDocument(d, now)
			if err := out.Add(events.DocumentAttached, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.DocumentAttached{DocumentID: d.ID, Kind: d.Kind, ContentHash: d.ContentHash}); err != nil {
				return err
			}
			return s.evaluate(out, e, now, false)
		})
}

// MarkConditionMet records a verifier's attestation of a declared condition
// and re-evaluates readiness.
func (s *Service) MarkConditionMet(ctx context.Context, escrowID id.EscrowID, cmd ConditionCommand) (*models.Escrow, error) {
	v := models.Verification{ConditionID: cmd.ConditionID, VerifierID: cmd.VerifierID, Notes: cmd.Notes}.Normalized()
	return s.mutate(ctx, "MarkConditionMet", escrowID,
		func(ctx context.Context, out *events.Batch, e *models.Escrow) error {
			if err := e.CanMarkConditionMet(v); err != nil {
				return err
			}
			now := requestcontext.Now(ctx)
			e.ApplyConditionMet(v, now)
			if err := out.Add(events.ConditionMet, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.ConditionMet{ConditionID: v.ConditionID, VerifierID: v.VerifierID, Pending: e.PendingConditions()}); err != nil {
				return err
			}
			return s.evaluate(out, e, now, true)
		})
}

// CompleteEscrow moves ownership to the buyer and completes the transfer and
// the escrow in one ledger transaction. The property owner is re-read here,
// so a sale that lost a race to a competing completion fails with
// ownership_mismatch and writes nothing.
func (s *Service) CompleteEscrow(ctx context.Context, escrowID id.EscrowID) (*models.Escrow, error) {
	if err := id.ValidateIDs(escrowID); err != nil {
		return nil, err
	}

	var completed *models.Escrow
	err := s.runner.Run(ctx, "CompleteEscrow", escrowAttrs(escrowID, ""),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			e, version, err := store.Get(ctx, txn, escrowID)
			if err != nil {
				return err
			}
			if err := e.CanComplete(); err != nil {
				return err
			}
			if !e.IsFullyPaid() || !e.AllConditionsMet() {
				return dErrors.Newf(dErrors.CodeInvariantViolation, "escrow %s is ready but not satisfied", e.ID)
			}
			t, transferVersion, err := transferstore.Get(ctx, txn, e.TransferID)
			if err != nil {
				return err
			}
			if err := t.CanComplete(); err != nil {
				return err
			}
			_, entry, err := propertyservice.TransferOwnership(ctx, txn, out, e.PropertyID, e.SellerID, e.BuyerID,
				propertymodels.TransferMetadata{
					Kind:       propertymodels.TransferKindEscrowCompletion,
					Price:      e.Price,
					TransferID: e.TransferID,
					EscrowID:   e.ID,
				})
			if err != nil {
				return err
			}
			if err := transferservice.Complete(ctx, txn, out, t, transferVersion); err != nil {
				return err
			}
			e.ApplyComplete(requestcontext.Now(ctx))
			if err := store.Put(ctx, txn, e, version); err != nil {
				return err
			}
			completed = e
			return out.Add(events.EscrowCompleted, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.Completed{
					TransferID: e.TransferID,
					FromOwner:  entry.FromOwner,
					ToOwner:    entry.ToOwner,
					Price:      e.Price,
				})
		})
	if err != nil {
		return nil, err
	}
	s.runner.Metrics().IncrementEscrowsCompleted()
	s.runner.Metrics().IncrementOwnershipTransfers()
	return completed, nil
}

// CancelEscrow cancels a non-terminal escrow and, unless it already
// completed, its transfer.
func (s *Service) CancelEscrow(ctx context.Context, escrowID id.EscrowID, reason string) (*models.Escrow, error) {
	if err := id.ValidateIDs(escrowID); err != nil {
		return nil, err
	}
	reason, err := transfermodels.ValidateReason(reason)
	if err != nil {
		return nil, err
	}

	var cancelled *models.Escrow
	err = s.runner.Run(ctx, "CancelEscrow", escrowAttrs(escrowID, ""),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			e, version, err := store.Get(ctx, txn, escrowID)
			if err != nil {
				return err
			}
			if err := e.CanCancel(); err != nil {
				return err
			}
			previous := e.Status
			e.ApplyCancel(reason, requestcontext.Now(ctx))
			if err := store.Put(ctx, txn, e, version); err != nil {
				return err
			}
			t, transferVersion, err := transferstore.Get(ctx, txn, e.TransferID)
			if err != nil {
				return err
			}
			if t.CanCancel() == nil {
				if _, err := transferservice.Cancel(ctx, txn, out, t, transferVersion, reason); err != nil {
					return err
				}
			}
			cancelled = e
			return out.Add(events.EscrowCancelled, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
				models.Cancelled{Reason: reason, PreviousStatus: previous})
		})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// GetEscrow returns the committed escrow and its ledger version.
func (s *Service) GetEscrow(ctx context.Context, escrowID id.EscrowID) (*models.Escrow, ledger.Version, error) {
	if err := id.ValidateIDs(escrowID); err != nil {
		return nil, ledger.Absent, err
	}
	var (
		e       *models.Escrow
		version ledger.Version
	)
	err := s.runner.Read(ctx, "GetEscrow", escrowAttrs(escrowID, ""), func(ctx context.Context, txn ledger.Txn) error {
		var err error
		e, version, err = store.Get(ctx, txn, escrowID)
		return err
	})
	if err != nil {
		return nil, ledger.Absent, err
	}
	return e, version, nil
}

// mutate loads an escrow, lets fn change it, and stages the new version.
func (s *Service) mutate(ctx context.Context, op string, escrowID id.EscrowID,
	fn func(ctx context.Context, out *events.Batch, e *models.Escrow) error,
) (*models.Escrow, error) {
	if err := id.ValidateIDs(escrowID); err != nil {
		return nil, err
	}
	var updated *models.Escrow
	err := s.runner.Run(ctx, op, escrowAttrs(escrowID, ""),
		func(ctx context.Context, txn ledger.Txn, out *events.Batch) error {
			e, version, err := store.Get(ctx, txn, escrowID)
			if err != nil {
				return err
			}
			if err := fn(ctx, out, e); err != nil {
				return err
			}
			if err := store.Put(ctx, txn, e, version); err != nil {
				return err
			}
			updated = e
			return nil
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// evaluate applies the readiness policy. conditionMarked is true when the
// caller is MarkConditionMet.
func (s *Service) evaluate(out *events.Batch, e *models.Escrow, now time.Time, conditionMarked bool) error {
	if !conditionMarked && s.policy != models.ReadinessOnEveryMutation {
		return nil
	}
	if !e.EvaluateReadiness(now) {
		return nil
	}
	return out.Add(events.EscrowReady, events.AggregateEscrow, e.ID.String(), e.PropertyID.String(),
		models.Ready{TotalPaid: e.TotalPaid()})
}

// matchTransfer checks that the escrow repeats the transfer's terms.
func matchTransfer(e *models.Escrow, t *transfermodels.Transfer) error {
	switch {
	case e.PropertyID != t.PropertyID:
		return dErrors.Newf(dErrors.CodeValidation, "transfer %s is for property %s", t.ID, t.PropertyID)
	case e.SellerID != t.SellerID:
		return dErrors.Newf(dErrors.CodeValidation, "transfer %s seller is %s", t.ID, t.SellerID)
	case e.BuyerID != t.BuyerID:
		return dErrors.Newf(dErrors.CodeValidation, "transfer %s buyer is %s", t.ID, t.BuyerID)
	case !e.Price.Equal(t.Price):
		return dErrors.Newf(dErrors.CodeValidation, "transfer %s price is %s", t.ID, t.Price.StringFixed(id.MoneyScale))
	}
	return nil
}

func escrowAttrs(escrowID id.EscrowID, propertyID id.PropertyID) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("escrow.id", escrowID.String())}
	if propertyID != "" {
		attrs = append(attrs, attribute.String("property.id", propertyID.String()))
	}
	return attrs
}
