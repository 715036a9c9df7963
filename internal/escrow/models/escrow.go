package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	pstrings "rotrust/pkg/platform/strings"
)

// Status is the escrow lifecycle state. States advance in declaration order;
// cancelled is reachable from any non-terminal state.
type Status string

const (
	StatusCreated            Status = "created"
	StatusInProgress         Status = "in_progress"
	StatusReadyForCompletion Status = "ready_for_completion"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// IsTerminal reports whether the escrow can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AcceptsEvidence reports whether payments, documents and condition
// attestations may still be recorded.
func (s Status) AcceptsEvidence() bool {
	return s == StatusCreated || s == StatusInProgress
}

// ReadinessPolicy selects which operations re-evaluate readiness.
type ReadinessPolicy string

const (
	// ReadinessOnCondition re-evaluates only when a condition is marked met.
	ReadinessOnCondition ReadinessPolicy = "on_condition"
	// ReadinessOnEveryMutation re-evaluates after every accepted payment,
	// document or condition.
	ReadinessOnEveryMutation ReadinessPolicy = "every_mutation"
)

// ParseReadinessPolicy accepts the configuration spelling of a policy.
func ParseReadinessPolicy(s string) (ReadinessPolicy, error) {
	switch p := ReadinessPolicy(strings.TrimSpace(strings.ToLower(s))); p {
	case "", ReadinessOnCondition:
		return ReadinessOnCondition, nil
	case ReadinessOnEveryMutation:
		return p, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown readiness policy %q", s)
}

// Escrow tracks the evidence a sale must accumulate before ownership moves.
//
// Invariants:
//   - ConditionsMet has exactly one entry per declared condition
//   - Payments, Documents and Verifications are append-only
//   - TotalPaid never exceeds Price by the tolerance or more
//   - Status only advances, except for cancellation
type Escrow struct {
	ID                 id.EscrowID     `json:"id"`
	TransferID         id.TransferID   `json:"transfer_id"`
	PropertyID         id.PropertyID   `json:"property_id"`
	SellerID           id.PartyID      `json:"seller_id"`
	BuyerID            id.PartyID      `json:"buyer_id"`
	Price              decimal.Decimal `json:"price"`
	Conditions         []Condition     `json:"conditions"`
	ConditionsMet      map[string]bool `json:"conditions_met"`
	Payments           []Payment       `json:"payments"`
	Documents          []Document      `json:"documents"`
	Verifications      []Verification  `json:"verifications"`
	Status             Status          `json:"status"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ReadyAt            *time.Time      `json:"ready_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
}

// Terms are the sale terms an escrow is opened for.
type Terms struct {
	ID         id.EscrowID
	TransferID id.TransferID
	PropertyID id.PropertyID
	SellerID   id.PartyID
	BuyerID    id.PartyID
	Price      decimal.Decimal
	Conditions []Condition
}

// NewEscrow validates the terms and returns an escrow in the created state.
// Condition ids are trimmed and duplicates collapsed, keeping the first
// declaration.
func NewEscrow(terms Terms, policy ReadinessPolicy, now time.Time) (*Escrow, error) {
	if err := id.ValidateAmount("price", terms.Price); err != nil {
		return nil, err
	}
	if terms.SellerID == terms.BuyerID {
		return nil, dErrors.New(dErrors.CodeValidation, "seller and buyer must differ")
	}
	conditions := pstrings.DedupeBy(terms.Conditions, func(c Condition) (Condition, string) {
		c.ID = strings.TrimSpace(c.ID)
		c.Description = strings.TrimSpace(c.Description)
		return c, c.ID
	})
	if len(conditions) == 0 && policy != ReadinessOnEveryMutation {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one condition is required")
	}
	met := make(map[string]bool, len(conditions))
	for i := range conditions {
		if err := conditions[i].Validate(); err != nil {
			return nil, err
		}
		met[conditions[i].ID] = false
	}
	return &Escrow{
		ID:            terms.ID,
		TransferID:    terms.TransferID,
		PropertyID:    terms.PropertyID,
		SellerID:      terms.SellerID,
		BuyerID:       terms.BuyerID,
		Price:         terms.Price,
		Conditions:    conditions,
		ConditionsMet: met,
		Payments:      []Payment{},
		Documents:     []Document{},
		Verifications: []Verification{},
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TotalPaid sums the recorded payments exactly.
func (e *Escrow) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range e.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Outstanding is the amount still due, never negative.
func (e *Escrow) Outstanding() decimal.Decimal {
	rest := e.Price.Sub(e.TotalPaid())
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// AllConditionsMet reports whether every declared condition is attested.
func (e *Escrow) AllConditionsMet() bool {
	for _, met := range e.ConditionsMet {
		if !met {
			return false
		}
	}
	return true
}

// IsFullyPaid reports whether the paid total matches the price within the
// tolerance.
func (e *Escrow) IsFullyPaid() bool {
	return id.WithinTolerance(e.TotalPaid(), e.Price)
}

func (e *Escrow) requireEvidenceState(op string) error {
	if !e.Status.AcceptsEvidence() {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s: escrow %s is %s", op, e.ID, e.Status)
	}
	return nil
}

// CanAddPayment checks a payment against the escrow state and price.
func (e *Escrow) CanAddPayment(p Payment) error {
	if err := e.requireEvidenceState("add payment"); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	for _, existing := range e.Payments {
		if existing.ID == p.ID {
			return dErrors.Newf(dErrors.CodeAlreadyExists, "payment %s already recorded", p.ID)
		}
	}
	over := e.TotalPaid().Add(p.Amount).Sub(e.Price)
	if over.GreaterThanOrEqual(id.Tolerance) {
		return dErrors.Newf(dErrors.CodeValidation,
			"payment of %s exceeds the outstanding %s", p.Amount.StringFixed(id.MoneyScale), e.Outstanding().StringFixed(id.MoneyScale))
	}
	return nil
}

// ApplyPayment appends the payment. The first payment moves a created escrow
// to in_progress.
func (e *Escrow) ApplyPayment(p Payment, now time.Time) {
	wasUnpaid := e.TotalPaid().IsZero()
	p.Timestamp = now
	e.Payments = append(e.Payments, p)
	if wasUnpaid && e.Status == StatusCreated && e.TotalPaid().IsPositive() {
		e.Status = StatusInProgress
	}
	e.UpdatedAt = now
}

// CanAddDocument checks a normalized document against the escrow state.
func (e *Escrow) CanAddDocument(d Document) error {
	if err := e.requireEvidenceState("add document"); err != nil {
		return err
	}
	for _, existing := range e.Documents {
		if existing.ID == d.ID {
			return dErrors.Newf(dErrors.CodeAlreadyExists, "document %s already attached", d.ID)
		}
	}
	return nil
}

// ApplyDocument appends the attestation. It does not affect status.
func (e *Escrow) ApplyDocument(d Document, now time.Time) {
	d.Timestamp = now
	e.Documents = append(e.Documents, d)
	e.UpdatedAt = now
}

// CanMarkConditionMet checks that the condition was declared and the escrow
// still accepts attestations.
func (e *Escrow) CanMarkConditionMet(v Verification) error {
	if err := e.requireEvidenceState("mark condition"); err != nil {
		return err
	}
	v = v.Normalized()
	if _, ok := e.ConditionsMet[v.ConditionID]; !ok {
		return dErrors.Newf(dErrors.CodeUnknownCondition, "condition %q was not declared for escrow %s", v.ConditionID, e.ID)
	}
	return v.Validate()
}

// ApplyConditionMet records the attestation. Attesting an already met
// condition appends a further verification.
func (e *Escrow) ApplyConditionMet(v Verification, now time.Time) {
	v = v.Normalized()
	v.Timestamp = now
	e.ConditionsMet[v.ConditionID] = true
	e.Verifications = append(e.Verifications, v)
	e.UpdatedAt = now
}

// EvaluateReadiness advances to ready_for_completion when every condition is
// met and the price is paid. It reports whether the status changed.
func (e *Escrow) EvaluateReadiness(now time.Time) bool {
	if !e.Status.AcceptsEvidence() || !e.AllConditionsMet() || !e.IsFullyPaid() {
		return false
	}
	e.Status = StatusReadyForCompletion
	e.ReadyAt = &now
	e.UpdatedAt = now
	return true
}

// CanComplete checks that the escrow is ready.
func (e *Escrow) CanComplete() error {
	if e.Status != StatusReadyForCompletion {
		return dErrors.Newf(dErrors.CodeInvalidState, "escrow %s is %s, not ready for completion", e.ID, e.Status)
	}
	return nil
}

// ApplyComplete marks the escrow completed.
func (e *Escrow) ApplyComplete(now time.Time) {
	e.Status = StatusCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now
}

// CanCancel rejects terminal escrows.
func (e *Escrow) CanCancel() error {
	if e.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "escrow %s is already %s", e.ID, e.Status)
	}
	return nil
}

// ApplyCancel records the cancellation.
func (e *Escrow) ApplyCancel(reason string, now time.Time) {
	e.Status = StatusCancelled
	e.CancellationReason = reason
	e.CancelledAt = &now
	e.UpdatedAt = now
}
