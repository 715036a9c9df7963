package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transfermodels "rotrust/internal/transfer/models"
	dErrors "rotrust/pkg/domain-errors"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func newTestEscrow(t *testing.T, policy ReadinessPolicy, conditions ...Condition) *Escrow {
	t.Helper()
	e, err := NewEscrow(Terms{
		ID:         "E1",
		TransferID: "T1",
		PropertyID: "P1",
		SellerID:   "alice",
		BuyerID:    "bob",
		Price:      decimal.RequireFromString("120000.00"),
		Conditions: conditions,
	}, policy, testNow)
	require.NoError(t, err)
	return e
}

func payment(paymentID, amount string) Payment {
	return Payment{ID: paymentID, Amount: decimal.RequireFromString(amount), Method: transfermodels.PaymentBankTransfer}
}

func TestNewEscrow(t *testing.T) {
	t.Run("initializes every condition as unmet", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition,
			Condition{ID: " c1 ", Kind: ConditionNotaryApproval},
			Condition{ID: "c2"},
			Condition{ID: "c1", Kind: ConditionBankApproval},
		)
		assert.Equal(t, map[string]bool{"c1": false, "c2": false}, e.ConditionsMet)
		assert.Equal(t, []string{"c1", "c2"}, e.ConditionIDs())
		assert.Equal(t, ConditionNotaryApproval, e.Conditions[0].Kind)
		assert.Equal(t, ConditionCustom, e.Conditions[1].Kind)
		assert.Equal(t, StatusCreated, e.Status)
	})

	t.Run("default policy requires a condition", func(t *testing.T) {
		_, err := NewEscrow(Terms{ID: "E1", SellerID: "a", BuyerID: "b", Price: decimal.NewFromInt(1)}, ReadinessOnCondition, testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("every-mutation policy allows no conditions", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnEveryMutation)
		assert.Empty(t, e.ConditionsMet)
	})

	t.Run("rejects unknown condition kind", func(t *testing.T) {
		_, err := NewEscrow(Terms{
			ID: "E1", SellerID: "a", BuyerID: "b", Price: decimal.NewFromInt(1),
			Conditions: []Condition{{ID: "c1", Kind: "astrology"}},
		}, ReadinessOnCondition, testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestEscrow_Payments(t *testing.T) {
	t.Run("first payment moves to in_progress", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		p := payment("pay-1", "70000.00")
		require.NoError(t, e.CanAddPayment(p))
		e.ApplyPayment(p, testNow)
		assert.Equal(t, StatusInProgress, e.Status)
		assert.True(t, e.TotalPaid().Equal(decimal.RequireFromString("70000")))
		assert.True(t, e.Outstanding().Equal(decimal.RequireFromString("50000")))
	})

	t.Run("overpayment is rejected", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		e.ApplyPayment(payment("pay-1", "70000.00"), testNow)
		err := e.CanAddPayment(payment("pay-2", "50000.01"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("duplicate payment id already exists", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		e.ApplyPayment(payment("pay-1", "100.00"), testNow)
		err := e.CanAddPayment(payment("pay-1", "100.00"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		err := e.CanAddPayment(payment("pay-1", "-5"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("payments do not make the escrow ready on their own", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		e.ApplyConditionMet(Verification{ConditionID: "c1", VerifierID: "notary"}, testNow)
		e.ApplyPayment(payment("pay-1", "120000.00"), testNow)
		assert.Equal(t, StatusInProgress, e.Status)
	})
}

func TestEscrow_Readiness(t *testing.T) {
	e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
	e.ApplyPayment(payment("pay-1", "70000.00"), testNow)
	e.ApplyPayment(payment("pay-2", "50000.00"), testNow)

	require.NoError(t, e.CanMarkConditionMet(Verification{ConditionID: "c1", VerifierID: "notary"}))
	e.ApplyConditionMet(Verification{ConditionID: "c1", VerifierID: "notary"}, testNow)
	assert.True(t, e.EvaluateReadiness(testNow))
	assert.Equal(t, StatusReadyForCompletion, e.Status)
	assert.NotNil(t, e.ReadyAt)

	t.Run("ready escrow refuses further evidence", func(t *testing.T) {
		assert.True(t, dErrors.HasCode(e.CanAddPayment(payment("pay-3", "0.01")), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(e.CanAddDocument(Document{ID: "d1"}), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(
			e.CanMarkConditionMet(Verification{ConditionID: "c1", VerifierID: "bank"}), dErrors.CodeInvalidState))
	})

	t.Run("evaluation is not repeated", func(t *testing.T) {
		assert.False(t, e.EvaluateReadiness(testNow))
	})
}

func TestEscrow_Conditions(t *testing.T) {
	e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"}, Condition{ID: "c2"})

	t.Run("undeclared condition is unknown", func(t *testing.T) {
		err := e.CanMarkConditionMet(Verification{ConditionID: "c9", VerifierID: "notary"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCondition))
	})

	t.Run("re-attesting appends a verification", func(t *testing.T) {
		e.ApplyConditionMet(Verification{ConditionID: "c1", VerifierID: "notary"}, testNow)
		require.NoError(t, e.CanMarkConditionMet(Verification{ConditionID: "c1", VerifierID: "bank"}))
		e.ApplyConditionMet(Verification{ConditionID: "c1", VerifierID: "bank"}, testNow)
		assert.Len(t, e.Verifications, 2)
		assert.Equal(t, 1, e.PendingConditions())
	})
}

func TestEscrow_ConditionIDsAreTrimmed(t *testing.T) {
	e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: " c1 "})

	for _, raw := range []string{" c1 ", "c1", "\tc1"} {
		require.NoError(t, e.CanMarkConditionMet(Verification{ConditionID: raw, VerifierID: "notary"}), "condition %q", raw)
	}

	e.ApplyConditionMet(Verification{ConditionID: " c1 ", VerifierID: "notary", Notes: " signed "}, testNow)
	assert.Equal(t, map[string]bool{"c1": true}, e.ConditionsMet)
	assert.Equal(t, "c1", e.Verifications[0].ConditionID)
	assert.Equal(t, "signed", e.Verifications[0].Notes)
}

func TestEscrow_Tolerance(t *testing.T) {
	e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
	e.ApplyPayment(payment("pay-1", "119999.99"), testNow)
	assert.False(t, e.IsFullyPaid(), "a one cent shortfall is not within tolerance")

	e.ApplyPayment(payment("pay-2", "0.01"), testNow)
	assert.True(t, e.IsFullyPaid())
}

func TestEscrow_Documents(t *testing.T) {
	t.Run("hash is normalized and validated", func(t *testing.T) {
		d := Document{ID: "d1", Kind: DocumentSaleContract, ContentHash: "  " + "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"}
		require.NoError(t, d.Normalize())
		assert.Equal(t, testHash, d.ContentHash)
	})

	t.Run("short hash is rejected", func(t *testing.T) {
		d := Document{ID: "d1", Kind: DocumentSaleContract, ContentHash: "abc123"}
		assert.True(t, dErrors.HasCode(d.Normalize(), dErrors.CodeValidation))
	})

	t.Run("documents do not change status", func(t *testing.T) {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		d := Document{ID: "d1", Kind: DocumentLandBookExtract, ContentHash: testHash}
		require.NoError(t, e.CanAddDocument(d))
		e.ApplyDocument(d, testNow)
		assert.Equal(t, StatusCreated, e.Status)
		assert.True(t, dErrors.HasCode(e.CanAddDocument(d), dErrors.CodeAlreadyExists))
	})
}

func TestEscrow_Cancel(t *testing.T) {
	for _, status := range []Status{StatusCreated, StatusInProgress, StatusReadyForCompletion} {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		e.Status = status
		assert.NoError(t, e.CanCancel(), status)
	}
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		e := newTestEscrow(t, ReadinessOnCondition, Condition{ID: "c1"})
		e.Status = status
		assert.True(t, dErrors.HasCode(e.CanCancel(), dErrors.CodeInvalidState), status)
	}
}

func TestParseReadinessPolicy(t *testing.T) {
	p, err := ParseReadinessPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReadinessOnCondition, p)

	p, err = ParseReadinessPolicy("EVERY_MUTATION")
	require.NoError(t, err)
	assert.Equal(t, ReadinessOnEveryMutation, p)

	_, err = ParseReadinessPolicy("whenever")
	assert.Error(t, err)
}
