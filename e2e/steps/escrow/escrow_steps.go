package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	escrowmodels "rotrust/internal/escrow/models"
	propertymodels "rotrust/internal/property/models"
	httptransport "rotrust/internal/transport/http"
	"rotrust/pkg/client"
	dErrors "rotrust/pkg/domain-errors"
)

// TestContext is the part of the scenario context these steps use.
type TestContext interface {
	Client() *client.Client
	Record(err error)
	LastError() error
}

// RegisterSteps registers property, transfer and escrow steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &escrowSteps{tc: tc}

	ctx.Step(`^a property "([^"]*)" owned by "([^"]*)"$`, steps.propertyOwnedBy)
	ctx.Step(`^a pending transfer "([^"]*)" of "([^"]*)" from "([^"]*)" to "([^"]*)" for "([^"]*)"$`, steps.pendingTransfer)
	ctx.Step(`^an escrow "([^"]*)" for transfer "([^"]*)" with conditions "([^"]*)"$`, steps.escrowForTransfer)

	ctx.Step(`^"([^"]*)" pays "([^"]*)" into escrow "([^"]*)"$`, steps.pays)
	ctx.Step(`^condition "([^"]*)" of escrow "([^"]*)" is verified by "([^"]*)"$`, steps.verifyCondition)
	ctx.Step(`^escrow "([^"]*)" is completed$`, steps.complete)
	ctx.Step(`^escrow "([^"]*)" is cancelled because "([^"]*)"$`, steps.cancel)
	ctx.Step(`^"([^"]*)" sells "([^"]*)" directly to "([^"]*)" for "([^"]*)"$`, steps.directSale)

	ctx.Step(`^the operation succeeds$`, steps.operationSucceeds)
	ctx.Step(`^the operation fails with "([^"]*)"$`, steps.operationFailsWith)
	ctx.Step(`^escrow "([^"]*)" has status "([^"]*)"$`, steps.escrowHasStatus)
	ctx.Step(`^transfer "([^"]*)" has status "([^"]*)"$`, steps.transferHasStatus)
	ctx.Step(`^property "([^"]*)" is owned by "([^"]*)"$`, steps.propertyOwnedByNow)
}

type escrowSteps struct {
	tc       TestContext
	payments int
}

func (s *escrowSteps) propertyOwnedBy(ctx context.Context, propertyID, owner string) error {
	_, err := s.tc.Client().RegisterProperty(ctx, httptransport.RegisterPropertyRequest{
		ID:      propertyID,
		Address: "Calea Victoriei 1, Bucuresti",
		OwnerID: owner,
		Details: propertymodels.Details{Type: propertymodels.TypeApartment, SizeSqm: decimal.NewFromInt(70)},
	})
	return err
}

func (s *escrowSteps) pendingTransfer(ctx context.Context, transferID, propertyID, seller, buyer, price string) error {
	_, err := s.tc.Client().CreateTransfer(ctx, httptransport.CreateTransferRequest{
		ID:            transferID,
		PropertyID:    propertyID,
		SellerID:      seller,
		BuyerID:       buyer,
		Price:         price,
		PaymentMethod: "escrow_account",
	})
	return err
}

func (s *escrowSteps) escrowForTransfer(ctx context.Context, escrowID, transferID, conditions string) error {
	t, err := s.tc.Client().GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	var conds []escrowmodels.Condition
	for c := range strings.SplitSeq(conditions, ",") {
		if c = strings.TrimSpace(c); c != "" {
			conds = append(conds, escrowmodels.Condition{ID: c, Kind: escrowmodels.ConditionCustom})
		}
	}
	_, err = s.tc.Client().CreateEscrow(ctx, httptransport.CreateEscrowRequest{
		ID:         escrowID,
		TransferID: transferID,
		PropertyID: t.Value.PropertyID.String(),
		SellerID:   t.Value.SellerID.String(),
		BuyerID:    t.Value.BuyerID.String(),
		Price:      t.Value.Price.String(),
		Conditions: conds,
	})
	return err
}

func (s *escrowSteps) pays(ctx context.Context, payer, amount, escrowID string) error {
	s.payments++
	_, err := s.tc.Client().AddPayment(ctx, httptransport.AddPaymentRequest{
		EscrowID:  escrowID,
		PaymentID: fmt.Sprintf("pay-%d", s.payments),
		Amount:    amount,
		Method:    "bank_transfer",
		PayerID:   payer,
	})
	s.tc.Record(err)
	return nil
}

func (s *escrowSteps) verifyCondition(ctx context.Context, conditionID, escrowID, verifier string) error {
	_, err := s.tc.Client().MarkConditionMet(ctx, httptransport.MarkConditionMetRequest{
		EscrowID:    escrowID,
		ConditionID: conditionID,
		VerifierID:  verifier,
	})
	s.tc.Record(err)
	return nil
}

func (s *escrowSteps) complete(ctx context.Context, escrowID string) error {
	_, err := s.tc.Client().CompleteEscrow(ctx, escrowID)
	s.tc.Record(err)
	return nil
}

func (s *escrowSteps) cancel(ctx context.Context, escrowID, reason string) error {
	_, err := s.tc.Client().CancelEscrow(ctx, escrowID, reason)
	s.tc.Record(err)
	return nil
}

func (s *escrowSteps) directSale(ctx context.Context, seller, propertyID, buyer, price string) error {
	_, err := s.tc.Client().ApplyOwnershipTransfer(ctx, httptransport.ApplyOwnershipTransferRequest{
		PropertyID:    propertyID,
		ExpectedOwner: seller,
		NewOwner:      buyer,
		Price:         price,
	})
	s.tc.Record(err)
	return nil
}

func (s *escrowSteps) operationSucceeds(context.Context) error {
	if err := s.tc.LastError(); err != nil {
		return fmt.Errorf("expected success, got %w", err)
	}
	return nil
}

func (s *escrowSteps) operationFailsWith(_ context.Context, code string) error {
	err := s.tc.LastError()
	if err == nil {
		return fmt.Errorf("expected %s, got success", code)
	}
	if got := dErrors.CodeOf(err); string(got) != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, err)
	}
	return nil
}

func (s *escrowSteps) escrowHasStatus(ctx context.Context, escrowID, status string) error {
	e, err := s.tc.Client().GetEscrow(ctx, escrowID)
	if err != nil {
		return err
	}
	if string(e.Value.Status) != status {
		return fmt.Errorf("escrow %s: expected status %s, got %s", escrowID, status, e.Value.Status)
	}
	return nil
}

func (s *escrowSteps) transferHasStatus(ctx context.Context, transferID, status string) error {
	t, err := s.tc.Client().GetTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if string(t.Value.Status) != status {
		return fmt.Errorf("transfer %s: expected status %s, got %s", transferID, status, t.Value.Status)
	}
	return nil
}

func (s *escrowSteps) propertyOwnedByNow(ctx context.Context, propertyID, owner string) error {
	p, err := s.tc.Client().GetProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	if p.Value.OwnerID.String() != owner {
		return fmt.Errorf("property %s: expected owner %s, got %s", propertyID, owner, p.Value.OwnerID)
	}
	return nil
}
