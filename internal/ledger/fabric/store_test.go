package fabric

import (
	"testing"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/stretchr/testify/suite"

	"rotrust/internal/ledger"
	"rotrust/internal/ledger/ledgertest"
)

func TestFabricLedger(t *testing.T) {
	suite.Run(t, &ledgertest.Suite{
		NewStore: func() ledger.Store {
			stub := shimtest.NewMockStub("rotrust", nil)
			stub.MockTransactionStart("tx-conformance")
			return New(stub)
		},
		Caps: ledgertest.Caps{Interleaved: true},
	})
}
