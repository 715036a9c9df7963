package leveldb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"rotrust/internal/ledger"
	"rotrust/internal/ledger/ledgertest"
)

func TestLevelDBLedger(t *testing.T) {
	suite.Run(t, &ledgertest.Suite{
		NewStore: func() ledger.Store {
			backend, err := Open(t.TempDir(), false)
			require.NoError(t, err)
			t.Cleanup(func() { _ = backend.Close() })
			return ledger.NewEngine(backend)
		},
		Caps: ledgertest.Caps{Interleaved: true, Concurrent: true},
	})
}
