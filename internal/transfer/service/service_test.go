package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"rotrust/internal/events"
	"rotrust/internal/ledger/memory"
	"rotrust/internal/platform/invoke"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/transfer/models"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	publisher  *events.MemoryPublisher
	properties *propertyservice.Service
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = testutil.Invocation(context.Background(), "req-transfer", time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	s.publisher = events.NewMemoryPublisher()

	runner, err := invoke.New(memory.New(), invoke.WithPublisher(s.publisher))
	s.Require().NoError(err)
	s.properties = propertyservice.New(runner)
	s.service = New(runner)

	_, err = s.properties.RegisterProperty(s.ctx, propertyservice.RegisterCommand{
		ID:      "P1",
		Address: "Bulevardul Unirii 5",
		OwnerID: "alice",
		Details: propertymodels.Details{Type: propertymodels.TypeHouse, SizeSqm: decimal.NewFromInt(120)},
	})
	s.Require().NoError(err)
	s.publisher.Reset()
}

func (s *ServiceSuite) command(transferID id.TransferID) CreateCommand {
	return CreateCommand{
		ID:            transferID,
		PropertyID:    "P1",
		SellerID:      "alice",
		BuyerID:       "bob",
		Price:         decimal.RequireFromString("120000.00"),
		PaymentMethod: models.PaymentBankTransfer,
		Notes:         "  first viewing went well ",
	}
}

func (s *ServiceSuite) TestCreateTransfer() {
	s.Run("creates a pending transfer", func() {
		t, err := s.service.CreateTransfer(s.ctx, s.command("T1"))
		s.Require().NoError(err)
		s.Equal(models.StatusPending, t.Status)
		s.Equal("first viewing went well", t.Notes)
		s.Equal([]events.Type{events.TransferCreated}, s.publisher.Types())
	})

	s.Run("duplicate id already exists", func() {
		_, err := s.service.CreateTransfer(s.ctx, s.command("T1"))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("seller must own the property", func() {
		cmd := s.command("T2")
		cmd.SellerID = "mallory"
		_, err := s.service.CreateTransfer(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipMismatch))
	})

	s.Run("unknown property is not found", func() {
		cmd := s.command("T3")
		cmd.PropertyID = "P404"
		_, err := s.service.CreateTransfer(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("terms are validated", func() {
		cases := map[string]func(*CreateCommand){
			"zero price":      func(c *CreateCommand) { c.Price = decimal.Zero },
			"sub-cent price":  func(c *CreateCommand) { c.Price = decimal.RequireFromString("10.001") },
			"self sale":       func(c *CreateCommand) { c.BuyerID = c.SellerID },
			"unknown method":  func(c *CreateCommand) { c.PaymentMethod = "barter" },
			"malformed buyer": func(c *CreateCommand) { c.BuyerID = "" },
		}
		for name, mutate := range cases {
			cmd := s.command("T4")
			mutate(&cmd)
			_, err := s.service.CreateTransfer(s.ctx, cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})

	s.Run("inactive property is rejected", func() {
		_, err := s.properties.UpdateStatus(s.ctx, "P1", propertymodels.StatusInactive)
		s.Require().NoError(err)
		_, err = s.service.CreateTransfer(s.ctx, s.command("T5"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestCancelTransfer() {
	_, err := s.service.CreateTransfer(s.ctx, s.command("T1"))
	s.Require().NoError(err)

	s.Run("reason too long", func() {
		_, err := s.service.CancelTransfer(s.ctx, "T1", strings.Repeat("x", 1001))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("cancels a pending transfer", func() {
		t, err := s.service.CancelTransfer(s.ctx, "T1", "buyer withdrew")
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, t.Status)
		s.Equal("buyer withdrew", t.CancellationReason)
		s.NotNil(t.CancelledAt)
	})

	s.Run("reason is optional", func() {
		_, err := s.service.CreateTransfer(s.ctx, s.command("T2"))
		s.Require().NoError(err)
		t, err := s.service.CancelTransfer(s.ctx, "T2", "")
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, t.Status)
		s.Empty(t.CancellationReason)
	})

	s.Run("cancelled is terminal", func() {
		_, err := s.service.CancelTransfer(s.ctx, "T1", "again")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		t, _, err := s.service.GetTransfer(s.ctx, "T1")
		s.Require().NoError(err)
		s.Equal("buyer withdrew", t.CancellationReason)
	})

	s.Run("missing transfer is not found", func() {
		_, err := s.service.CancelTransfer(s.ctx, "T404", "gone")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
