package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/events"
	"rotrust/internal/ledger/memory"
	"rotrust/internal/platform/invoke"
	"rotrust/internal/platform/metrics"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/middleware/request"
	"rotrust/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	publisher *events.MemoryPublisher
	router    http.Handler
	ready     error
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := prometheus.NewRegistry()
	s.publisher = events.NewMemoryPublisher()
	s.ready = nil

	runner, err := invoke.New(store,
		invoke.WithLogger(logger),
		invoke.WithMetrics(metrics.New(reg)),
		invoke.WithPublisher(s.publisher),
	)
	s.Require().NoError(err)

	h := New(
		propertyservice.New(runner),
		transferservice.New(runner),
		escrowservice.New(runner),
		query.New(store),
		logger,
	)
	s.router = NewRouter(h, logger, reg, func(context.Context) error { return s.ready })
}

func (s *HandlerSuite) post(path string, body any) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
}

func (s *HandlerSuite) seedSale() {
	testutil.AssertStatus(s.T(), s.post("/v1/invoke/RegisterProperty", RegisterPropertyRequest{
		ID:      "RO-IS-3",
		Address: "Bd. Stefan cel Mare 8, Iasi",
		OwnerID: "alice",
		Details: propertymodels.Details{Type: propertymodels.TypeApartment, SizeSqm: decimal.RequireFromString("64")},
	}), http.StatusCreated)
	testutil.AssertStatus(s.T(), s.post("/v1/invoke/CreateTransfer", CreateTransferRequest{
		ID: "T1", PropertyID: "RO-IS-3", SellerID: "alice", BuyerID: "bob",
		Price: "120000", PaymentMethod: "escrow_account",
	}), http.StatusCreated)
	testutil.AssertStatus(s.T(), s.post("/v1/invoke/CreateEscrow", CreateEscrowRequest{
		ID: "E1", TransferID: "T1", PropertyID: "RO-IS-3", SellerID: "alice", BuyerID: "bob",
		Price:      "120000",
		Conditions: []escrowmodels.Condition{{ID: "c1", Kind: escrowmodels.ConditionNotaryApproval}},
	}), http.StatusCreated)
}

func (s *HandlerSuite) TestEscrowLifecycle() {
	s.seedSale()

	for _, p := range []AddPaymentRequest{
		{EscrowID: "E1", PaymentID: "p1", Amount: "70000", Method: "bank_transfer", PayerID: "bob"},
		{EscrowID: "E1", PaymentID: "p2", Amount: "50000", Method: "bank_transfer", PayerID: "bob"},
	} {
		testutil.AssertStatusOK(s.T(), s.post("/v1/invoke/AddPayment", p))
	}
	rr := s.post("/v1/invoke/MarkConditionMet", MarkConditionMetRequest{EscrowID: "E1", ConditionID: "c1", VerifierID: "notary-1"})
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", string(escrowmodels.StatusReadyForCompletion))

	rr = s.post("/v1/invoke/CompleteEscrow", CompleteEscrowRequest{EscrowID: "E1"})
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", string(escrowmodels.StatusCompleted))

	rr = s.get("/v1/query/properties/RO-IS-3")
	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[Versioned[propertymodels.Property]](s.T(), rr)
	s.Equal("bob", got.Value.OwnerID.String())
	s.NotZero(got.Version)

	rr = s.get("/v1/query/transfers/T1")
	t := testutil.UnmarshalResponse[Versioned[transfermodels.Transfer]](s.T(), rr)
	s.Equal(transfermodels.StatusCompleted, t.Value.Status)

	rr = s.get("/v1/query/properties/RO-IS-3/history")
	history := testutil.UnmarshalResponse[[]propertymodels.HistoryEntry](s.T(), rr)
	s.Len(*history, 1)
}

func (s *HandlerSuite) TestErrorMapping() {
	s.seedSale()

	s.Run("malformed body", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/invoke/CompleteEscrow", `{"escrow_id":`))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeBadRequest)
	})

	s.Run("missing required field", func() {
		rr := s.post("/v1/invoke/CancelEscrow", CancelEscrowRequest{Reason: "buyer withdrew"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeValidation)
	})

	s.Run("unknown condition", func() {
		rr := s.post("/v1/invoke/MarkConditionMet", MarkConditionMetRequest{EscrowID: "E1", ConditionID: "c9", VerifierID: "notary-1"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeUnknownCondition)
	})

	s.Run("missing escrow", func() {
		rr := s.get("/v1/query/escrows/E404")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, dErrors.CodeNotFound)
	})

	s.Run("duplicate id", func() {
		rr := s.post("/v1/invoke/CreateTransfer", CreateTransferRequest{
			ID: "T1", PropertyID: "RO-IS-3", SellerID: "alice", BuyerID: "carol",
			Price: "1000", PaymentMethod: "cash",
		})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, dErrors.CodeAlreadyExists)
	})

	s.Run("completion before readiness", func() {
		rr := s.post("/v1/invoke/CompleteEscrow", CompleteEscrowRequest{EscrowID: "E1"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, dErrors.CodeInvalidState)
		s.False(testutil.UnmarshalErrorResponse(s.T(), s.post("/v1/invoke/CompleteEscrow", CompleteEscrowRequest{EscrowID: "E1"})).Retryable)
	})

	s.Run("non-numeric amount", func() {
		rr := s.post("/v1/invoke/AddPayment", AddPaymentRequest{EscrowID: "E1", PaymentID: "p1", Amount: "lots", Method: "cash"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeValidation)
	})

	s.Run("cancellation without a reason", func() {
		rr := s.post("/v1/invoke/CancelEscrow", CancelEscrowRequest{EscrowID: "E1"})
		testutil.AssertStatusOK(s.T(), rr)
		cancelled := testutil.UnmarshalResponse[escrowmodels.Escrow](s.T(), rr)
		s.Equal(escrowmodels.StatusCancelled, cancelled.Status)
		s.Empty(cancelled.CancellationReason)

		testutil.AssertErrorCode(s.T(), s.post("/v1/invoke/CancelEscrow", CancelEscrowRequest{EscrowID: "E1"}), dErrors.CodeInvalidState)
	})
}

func (s *HandlerSuite) TestQueries() {
	s.seedSale()

	s.Run("escrows by buyer", func() {
		rr := s.get("/v1/query/escrows?party=bob&role=buyer")
		testutil.AssertStatusOK(s.T(), rr)
		list := testutil.UnmarshalResponse[[]escrowmodels.Escrow](s.T(), rr)
		s.Require().Len(*list, 1)
		s.Equal("E1", (*list)[0].ID.String())
	})

	s.Run("escrows by seller role finds none for the buyer", func() {
		rr := s.get("/v1/query/escrows?party=bob&role=seller")
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`[]`, rr.Body.String())
	})

	s.Run("transfers by property", func() {
		rr := s.get("/v1/query/transfers?property=RO-IS-3")
		list := testutil.UnmarshalResponse[[]transfermodels.Transfer](s.T(), rr)
		s.Len(*list, 1)
	})

	s.Run("properties by owner", func() {
		rr := s.get("/v1/query/properties?owner=alice")
		list := testutil.UnmarshalResponse[[]propertymodels.Property](s.T(), rr)
		s.Len(*list, 1)
	})

	s.Run("filter is required", func() {
		testutil.AssertStatusAndError(s.T(), s.get("/v1/query/escrows"), http.StatusBadRequest, dErrors.CodeBadRequest)
	})

	s.Run("unknown role", func() {
		testutil.AssertStatusAndError(s.T(), s.get("/v1/query/transfers?party=bob&role=agent"), http.StatusBadRequest, dErrors.CodeValidation)
	})
}

func (s *HandlerSuite) TestEventsCarryRequestMetadata() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/invoke/RegisterProperty", RegisterPropertyRequest{
		ID: "RO-TM-1", Address: "Piata Victoriei 1, Timisoara", OwnerID: "alice",
		Details: propertymodels.Details{Type: propertymodels.TypeLand, SizeSqm: decimal.RequireFromString("500")},
	})
	req.Header.Set(request.HeaderRequestID, "req-77")
	req.Header.Set(request.HeaderInvoker, "LandRegistryMSP")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.Equal("req-77", rr.Header().Get(request.HeaderRequestID))

	evs := s.publisher.Events()
	s.Require().Len(evs, 1)
	s.Equal(events.PropertyRegistered, evs[0].Type)
	s.Equal("req-77", evs[0].RequestID)
	s.Equal("LandRegistryMSP", evs[0].Invoker)
}

func (s *HandlerSuite) TestOperationalEndpoints() {
	testutil.AssertStatusOK(s.T(), s.get("/healthz"))
	testutil.AssertStatusOK(s.T(), s.get("/readyz"))

	s.ready = errors.New("connection refused")
	testutil.AssertStatus(s.T(), s.get("/readyz"), http.StatusServiceUnavailable)

	s.post("/v1/invoke/CompleteEscrow", CompleteEscrowRequest{EscrowID: "E404"})
	rr := s.get("/metrics")
	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), `operation="CompleteEscrow"`)
}
