// Package fabric runs the ledger port on a Hyperledger Fabric chaincode stub.
// The peer's own MVCC validation is the authoritative conflict check; the
// version envelope keeps the port's version numbers and index bookkeeping
// identical to the other backends.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

// indexObjectType prefixes every composite index key.
const indexObjectType = "rotrust~idx"

type envelope struct {
	DocType string              `json:"docType"`
	Version ledger.Version      `json:"version"`
	Value   json.RawMessage     `json:"value"`
	Indexes []ledger.IndexEntry `json:"indexes,omitempty"`
}

// Backend reads and writes world state through one transaction's stub.
// A Backend must not outlive the invocation that created it.
type Backend struct {
	stub shim.ChaincodeStubInterface
}

var _ ledger.Backend = (*Backend)(nil)

// NewBackend binds to the stub of the current invocation.
func NewBackend(stub shim.ChaincodeStubInterface) *Backend {
	return &Backend{stub: stub}
}

// New returns a ledger bound to stub. The peer enforces the endorsement
// timeout, so the engine's default is disabled.
func New(stub shim.ChaincodeStubInterface) *ledger.Engine {
	return ledger.NewEngine(NewBackend(stub), ledger.WithTxTimeout(0))
}

func (b *Backend) load(key string) (*envelope, error) {
	raw, err := b.stub.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", key, err, sentinel.ErrInvalidState)
	}
	return &env, nil
}

func (b *Backend) Read(_ context.Context, key string) (ledger.Record, error) {
	env, err := b.load(key)
	if err != nil {
		return ledger.Record{}, err
	}
	return ledger.Record{Key: key, Value: env.Value, Version: env.Version}, nil
}

func (b *Backend) Scan(_ context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		it, err := b.stub.GetStateByPartialCompositeKey(indexObjectType, []string{q.DocType, q.Field, q.Value})
		if err != nil {
			yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
			return
		}
		defer it.Close()

		for it.HasNext() {
			kv, err := it.Next()
			if err != nil {
				yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
				return
			}
			_, attrs, err := b.stub.SplitCompositeKey(kv.Key)
			if err != nil || len(attrs) != 4 {
				yield(ledger.Record{}, fmt.Errorf("malformed index key %q: %w", kv.Key, sentinel.ErrInvalidState))
				return
			}
			rec, err := b.Read(context.Background(), attrs[3])
			if err != nil {
				yield(ledger.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Commit puts every staged write into the transaction's write set. Reads are
// re-checked against the stub so a buggy caller fails at endorsement rather
// than at peer validation.
func (b *Backend) Commit(_ context.Context, reads map[string]ledger.Version, writes []ledger.Write) error {
	for key, base := range reads {
		var current ledger.Version
		env, err := b.load(key)
		if err == nil {
			current = env.Version
		}
		if current != base {
			return fmt.Errorf("commit %s: read version %d, committed %d: %w", key, base, current, sentinel.ErrVersionConflict)
		}
	}

	for _, w := range writes {
		if w.Expected != ledger.Absent {
			old, err := b.load(w.Key)
			if err != nil {
				return err
			}
			for _, ix := range old.Indexes {
				ck, err := b.stub.CreateCompositeKey(indexObjectType, []string{old.DocType, ix.Field, ix.Value, w.Key})
				if err != nil {
					return fmt.Errorf("index key %s: %w", w.Key, err)
				}
				if err := b.stub.DelState(ck); err != nil {
					return fmt.Errorf("delete index %s: %w", ck, err)
				}
			}
		}

		raw, err := json.Marshal(envelope{
			DocType: w.DocType,
			Version: w.Expected + 1,
			Value:   w.Value,
			Indexes: w.Indexes,
		})
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Key, err)
		}
		if err := b.stub.PutState(w.Key, raw); err != nil {
			return fmt.Errorf("put state %s: %w", w.Key, err)
		}
		for _, ix := range w.Indexes {
			ck, err := b.stub.CreateCompositeKey(indexObjectType, []string{w.DocType, ix.Field, ix.Value, w.Key})
			if err != nil {
				return fmt.Errorf("index key %s: %w", w.Key, err)
			}
			if err := b.stub.PutState(ck, []byte{0x00}); err != nil {
				return fmt.Errorf("put index %s: %w", ck, err)
			}
		}
	}
	return nil
}
