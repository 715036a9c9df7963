package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/ledger/memory"
	"rotrust/internal/platform/invoke"
	"rotrust/internal/platform/metrics"
	propertymodels "rotrust/internal/property/models"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transfermodels "rotrust/internal/transfer/models"
	transferservice "rotrust/internal/transfer/service"
	httptransport "rotrust/internal/transport/http"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/httputil"
	"rotrust/pkg/platform/middleware/request"
	"rotrust/pkg/platform/retry"
	"rotrust/pkg/testutil"
)

func fastRetries() retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
		MaxRetries:      5,
	}
}

func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := prometheus.NewRegistry()
	runner, err := invoke.New(store, invoke.WithLogger(logger), invoke.WithMetrics(metrics.New(reg)))
	require.NoError(t, err)

	h := httptransport.New(
		propertyservice.New(runner),
		transferservice.New(runner),
		escrowservice.New(runner),
		query.New(store),
		logger,
	)
	srv := httptest.NewServer(httptransport.NewRouter(h, logger, reg, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstNode(t *testing.T) {
	ctx := context.Background()
	c := New(newNode(t).URL, WithRetryPolicy(fastRetries()), WithInvoker("BankOrgMSP"))

	testutil.Given(t, "a registered property with a pending sale in escrow", func(t *testing.T) {
		_, err := c.RegisterProperty(ctx, httptransport.RegisterPropertyRequest{
			ID: "RO-BV-2", Address: "Str. Republicii 5, Brasov", OwnerID: "alice",
			Details: propertymodels.Details{Type: propertymodels.TypeHouse, SizeSqm: decimal.RequireFromString("180")},
		})
		require.NoError(t, err)
		_, err = c.CreateTransfer(ctx, httptransport.CreateTransferRequest{
			ID: "T1", PropertyID: "RO-BV-2", SellerID: "alice", BuyerID: "bob",
			Price: "250000", PaymentMethod: "mortgage",
		})
		require.NoError(t, err)
		e, err := c.CreateEscrow(ctx, httptransport.CreateEscrowRequest{
			ID: "E1", TransferID: "T1", PropertyID: "RO-BV-2", SellerID: "alice", BuyerID: "bob",
			Price: "250000",
			Conditions: []escrowmodels.Condition{
				{ID: "bank", Kind: escrowmodels.ConditionMortgageApproval},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, escrowmodels.StatusCreated, e.Status)

		testutil.When(t, "the buyer pays in full and the bank approves", func(t *testing.T) {
			_, err := c.AddPayment(ctx, httptransport.AddPaymentRequest{
				EscrowID: "E1", PaymentID: "p1", Amount: "250000", Method: "mortgage", PayerID: "bob",
			})
			require.NoError(t, err)
			e, err := c.MarkConditionMet(ctx, httptransport.MarkConditionMetRequest{
				EscrowID: "E1", ConditionID: "bank", VerifierID: "bank-officer-1",
			})
			require.NoError(t, err)
			assert.Equal(t, escrowmodels.StatusReadyForCompletion, e.Status)

			testutil.Then(t, "completion moves ownership to the buyer", func(t *testing.T) {
				_, err := c.CompleteEscrow(ctx, "E1")
				require.NoError(t, err)

				p, err := c.GetProperty(ctx, "RO-BV-2")
				require.NoError(t, err)
				assert.Equal(t, "bob", p.Value.OwnerID.String())

				tr, err := c.GetTransfer(ctx, "T1")
				require.NoError(t, err)
				assert.Equal(t, transfermodels.StatusCompleted, tr.Value.Status)

				owned, err := c.PropertiesByOwner(ctx, "bob")
				require.NoError(t, err)
				assert.Len(t, owned, 1)
			})

			testutil.Then(t, "a second completion is rejected without retries", func(t *testing.T) {
				_, err := c.CompleteEscrow(ctx, "E1")
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
			})
		})
	})
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := New(newNode(t).URL, WithRetryPolicy(fastRetries()))

	_, err := c.GetEscrow(ctx, "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	_, err = c.CancelTransfer(ctx, "T9", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

func TestClientRetriesVersionConflicts(t *testing.T) {
	var (
		mu         sync.Mutex
		calls      int
		requestIDs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		requestIDs = append(requestIDs, r.Header.Get(request.HeaderRequestID))
		mu.Unlock()
		if n < 3 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeVersionConflict, "concurrent write"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, escrowmodels.Escrow{ID: "E1", Status: escrowmodels.StatusCompleted})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryPolicy(fastRetries()))
	e, err := c.CompleteEscrow(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, escrowmodels.StatusCompleted, e.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
	require.Len(t, requestIDs, 3)
	assert.Equal(t, requestIDs[0], requestIDs[1])
	assert.Equal(t, requestIDs[0], requestIDs[2])
}

func TestClientGivesUpOnPersistentConflicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeVersionConflict, "concurrent write"))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryPolicy(fastRetries()))
	_, err := c.CompleteEscrow(context.Background(), "E1")
	assert.True(t, dErrors.Retryable(err), "got %v", err)
}
