// Package query answers read-only index lookups over committed ledger state.
//
// Every lookup returns a lazy sequence. Ranging over it again re-runs the
// lookup, so a sequence can be kept and iterated later for a fresh snapshot.
// Results are not linearizable with concurrent writes.
package query

import (
	"context"
	"iter"
	"strings"

	escrowmodels "rotrust/internal/escrow/models"
	escrowstore "rotrust/internal/escrow/store"
	"rotrust/internal/ledger"
	"rotrust/internal/platform/invoke"
	propertymodels "rotrust/internal/property/models"
	propertystore "rotrust/internal/property/store"
	transfermodels "rotrust/internal/transfer/models"
	transferstore "rotrust/internal/transfer/store"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
)

// Role selects which side of a sale a party query matches.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
	RoleAny    Role = "any"
)

// ParseRole accepts seller, buyer or any. Empty means any.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "", RoleAny:
		return RoleAny, nil
	case RoleSeller, RoleBuyer:
		return r, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown party role %q", s)
}

// Service runs index lookups.
type Service struct {
	store ledger.Store
}

// New creates a query service over store.
func New(store ledger.Store) *Service {
	return &Service{store: store}
}

// EscrowsByProperty lists escrows opened against a property.
func (s *Service) EscrowsByProperty(ctx context.Context, propertyID id.PropertyID) iter.Seq2[*escrowmodels.Escrow, error] {
	if err := propertyID.Validate(); err != nil {
		return fail[*escrowmodels.Escrow](err)
	}
	return escrowstore.Decode(s.lookup(ctx, escrowstore.ByProperty(propertyID)))
}

// EscrowsByTransfer lists escrows tracking a transfer.
func (s *Service) EscrowsByTransfer(ctx context.Context, transferID id.TransferID) iter.Seq2[*escrowmodels.Escrow, error] {
	if err := transferID.Validate(); err != nil {
		return fail[*escrowmodels.Escrow](err)
	}
	return escrowstore.Decode(s.lookup(ctx, escrowstore.ByTransfer(transferID)))
}

// EscrowsByParty lists escrows where party is seller, buyer, or either.
func (s *Service) EscrowsByParty(ctx context.Context, party id.PartyID, role Role) iter.Seq2[*escrowmodels.Escrow, error] {
	if err := party.Validate(); err != nil {
		return fail[*escrowmodels.Escrow](err)
	}
	return escrowstore.Decode(s.byRole(ctx, role, escrowstore.BySeller(party), escrowstore.ByBuyer(party)))
}

// EscrowsByStatus lists escrows in a lifecycle state.
func (s *Service) EscrowsByStatus(ctx context.Context, status escrowmodels.Status) iter.Seq2[*escrowmodels.Escrow, error] {
	return escrowstore.Decode(s.lookup(ctx, escrowstore.ByStatus(status)))
}

// TransfersByProperty lists transfers of a property.
func (s *Service) TransfersByProperty(ctx context.Context, propertyID id.PropertyID) iter.Seq2[*transfermodels.Transfer, error] {
	if err := propertyID.Validate(); err != nil {
		return fail[*transfermodels.Transfer](err)
	}
	return transferstore.Decode(s.lookup(ctx, transferstore.ByProperty(propertyID)))
}

// TransfersByParty lists transfers where party is seller, buyer, or either.
func (s *Service) TransfersByParty(ctx context.Context, party id.PartyID, role Role) iter.Seq2[*transfermodels.Transfer, error] {
	if err := party.Validate(); err != nil {
		return fail[*transfermodels.Transfer](err)
	}
	return transferstore.Decode(s.byRole(ctx, role, transferstore.BySeller(party), transferstore.ByBuyer(party)))
}

// PropertiesByOwner lists properties currently owned by owner.
func (s *Service) PropertiesByOwner(ctx context.Context, owner id.PartyID) iter.Seq2[*propertymodels.Property, error] {
	if err := owner.Validate(); err != nil {
		return fail[*propertymodels.Property](err)
	}
	return propertystore.Decode(s.lookup(ctx, propertystore.ByOwner(owner)))
}

// lookup runs one index query and translates infrastructure errors.
func (s *Service) lookup(ctx context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		for rec, err := range s.store.Query(ctx, q) {
			if err != nil {
				yield(ledger.Record{}, invoke.Translate(err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// byRole chains the seller and buyer lookups for RoleAny, skipping keys
// already yielded.
func (s *Service) byRole(ctx context.Context, role Role, seller, buyer ledger.Query) iter.Seq2[ledger.Record, error] {
	switch role {
	case RoleSeller:
		return s.lookup(ctx, seller)
	case RoleBuyer:
		return s.lookup(ctx, buyer)
	case RoleAny, "":
	default:
		return fail[ledger.Record](dErrors.Newf(dErrors.CodeValidation, "unknown party role %q", role))
	}
	return func(yield func(ledger.Record, error) bool) {
		seen := make(map[string]struct{})
		for _, q := range []ledger.Query{seller, buyer} {
			for rec, err := range s.lookup(ctx, q) {
				if err != nil {
					yield(ledger.Record{}, err)
					return
				}
				if _, dup := seen[rec.Key]; dup {
					continue
				}
				seen[rec.Key] = struct{}{}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func fail[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
