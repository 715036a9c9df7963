package query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/ledger/memory"
	"rotrust/internal/platform/invoke"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/testutil"
)

var price = decimal.RequireFromString("95000.00")

type QuerySuite struct {
	suite.Suite
	ctx        context.Context
	properties *propertyservice.Service
	transfers  *transferservice.Service
	escrows    *escrowservice.Service
	query      *Service
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

func (s *QuerySuite) SetupTest() {
	s.ctx = testutil.Invocation(context.Background(), "req-query", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := memory.New()
	runner, err := invoke.New(store)
	s.Require().NoError(err)
	s.properties = propertyservice.New(runner)
	s.transfers = transferservice.New(runner)
	s.escrows = escrowservice.New(runner)
	s.query = New(store)

	for _, p := range []struct {
		id    id.PropertyID
		owner id.PartyID
	}{{"P1", "alice"}, {"P2", "alice"}, {"P3", "bob"}} {
		_, err := s.properties.RegisterProperty(s.ctx, propertyservice.RegisterCommand{
			ID:      p.id,
			Address: "Address of " + p.id.String(),
			OwnerID: p.owner,
			Details: propertymodels.Details{Type: propertymodels.TypeHouse, SizeSqm: decimal.NewFromInt(100)},
		})
		s.Require().NoError(err)
	}
}

func (s *QuerySuite) sale(escrowID id.EscrowID, transferID id.TransferID, propertyID id.PropertyID, seller, buyer id.PartyID) {
	_, err := s.transfers.CreateTransfer(s.ctx, transferservice.CreateCommand{
		ID: transferID, PropertyID: propertyID, SellerID: seller, BuyerID: buyer,
		Price: price, PaymentMethod: transfermodels.PaymentEscrowAccount,
	})
	s.Require().NoError(err)
	_, err = s.escrows.CreateEscrow(s.ctx, escrowservice.CreateCommand{
		ID: escrowID, TransferID: transferID, PropertyID: propertyID, SellerID: seller, BuyerID: buyer,
		Price: price, Conditions: []escrowmodels.Condition{{ID: "c1"}},
	})
	s.Require().NoError(err)
}

func escrowIDs(escrows []*escrowmodels.Escrow) []id.EscrowID {
	out := make([]id.EscrowID, len(escrows))
	for i, e := range escrows {
		out[i] = e.ID
	}
	return out
}

func (s *QuerySuite) TestEscrowsByProperty() {
	s.sale("E1", "T1", "P1", "alice", "bob")
	s.sale("E2", "T2", "P1", "alice", "carol")
	s.sale("E3", "T3", "P2", "alice", "carol")

	got, err := Collect(s.query.EscrowsByProperty(s.ctx, "P1"))
	s.Require().NoError(err)
	s.Equal([]id.EscrowID{"E1", "E2"}, escrowIDs(got))

	got, err = Collect(s.query.EscrowsByProperty(s.ctx, "P9"))
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *QuerySuite) TestEscrowsByParty() {
	s.sale("E1", "T1", "P1", "alice", "bob")
	s.sale("E2", "T2", "P3", "bob", "carol")

	s.Run("seller", func() {
		got, err := Collect(s.query.EscrowsByParty(s.ctx, "bob", RoleSeller))
		s.Require().NoError(err)
		s.Equal([]id.EscrowID{"E2"}, escrowIDs(got))
	})

	s.Run("buyer", func() {
		got, err := Collect(s.query.EscrowsByParty(s.ctx, "bob", RoleBuyer))
		s.Require().NoError(err)
		s.Equal([]id.EscrowID{"E1"}, escrowIDs(got))
	})

	s.Run("any", func() {
		got, err := Collect(s.query.EscrowsByParty(s.ctx, "bob", RoleAny))
		s.Require().NoError(err)
		s.ElementsMatch([]id.EscrowID{"E1", "E2"}, escrowIDs(got))
	})

	s.Run("unknown role", func() {
		_, err := Collect(s.query.EscrowsByParty(s.ctx, "bob", "notary"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *QuerySuite) TestEscrowsByTransfer() {
	s.sale("E1", "T1", "P1", "alice", "bob")

	got, err := Collect(s.query.EscrowsByTransfer(s.ctx, "T1"))
	s.Require().NoError(err)
	s.Equal([]id.EscrowID{"E1"}, escrowIDs(got))
}

func (s *QuerySuite) TestSequencesAreRestartable() {
	seq := s.query.EscrowsByStatus(s.ctx, escrowmodels.StatusCancelled)

	s.sale("E1", "T1", "P1", "alice", "bob")
	got, err := Collect(seq)
	s.Require().NoError(err)
	s.Empty(got)

	_, err = s.escrows.CancelEscrow(s.ctx, "E1", "buyer withdrew")
	s.Require().NoError(err)

	got, err = Collect(seq)
	s.Require().NoError(err)
	s.Equal([]id.EscrowID{"E1"}, escrowIDs(got))

	created, err := Collect(s.query.EscrowsByStatus(s.ctx, escrowmodels.StatusCreated))
	s.Require().NoError(err)
	s.Empty(created, "status index follows the record")
}

func (s *QuerySuite) TestTransfers() {
	s.sale("E1", "T1", "P1", "alice", "bob")
	s.sale("E2", "T2", "P3", "bob", "carol")

	byProperty, err := Collect(s.query.TransfersByProperty(s.ctx, "P3"))
	s.Require().NoError(err)
	s.Require().Len(byProperty, 1)
	s.Equal(id.TransferID("T2"), byProperty[0].ID)

	byParty, err := Collect(s.query.TransfersByParty(s.ctx, "bob", RoleAny))
	s.Require().NoError(err)
	s.Len(byParty, 2)
}

func (s *QuerySuite) TestPropertiesByOwnerFollowsOwnership() {
	owned, err := Collect(s.query.PropertiesByOwner(s.ctx, "alice"))
	s.Require().NoError(err)
	s.Len(owned, 2)

	_, err = s.properties.ApplyOwnershipTransfer(s.ctx, propertyservice.DirectTransferCommand{
		PropertyID: "P2", ExpectedOwner: "alice", NewOwner: "bob",
	})
	s.Require().NoError(err)

	owned, err = Collect(s.query.PropertiesByOwner(s.ctx, "alice"))
	s.Require().NoError(err)
	s.Require().Len(owned, 1)
	s.Equal(id.PropertyID("P1"), owned[0].ID)

	owned, err = Collect(s.query.PropertiesByOwner(s.ctx, "bob"))
	s.Require().NoError(err)
	s.Len(owned, 2)
}

func (s *QuerySuite) TestInvalidIDFailsLazily() {
	_, err := Collect(s.query.EscrowsByProperty(s.ctx, "bad/id"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *QuerySuite) TestParseRole() {
	r, err := ParseRole(" Seller ")
	s.Require().NoError(err)
	s.Equal(RoleSeller, r)

	r, err = ParseRole("")
	s.Require().NoError(err)
	s.Equal(RoleAny, r)

	_, err = ParseRole("landlord")
	s.Error(err)
}
