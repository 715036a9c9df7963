// Package ledger defines the versioned state-store port every aggregate is
// persisted through, and the engine that turns a backend's primitive reads,
// scans and commits into serializable optimistic transactions.
//
// Contract:
//   - Every record carries a Version; 0 means the key is absent.
//   - A Put names the version it expects to replace. Expected == 0 is
//     create-only. A mismatch is rejected with sentinel.ErrVersionConflict.
//   - Inside a transaction, Get observes the transaction's own staged writes.
//   - At commit every key read or written is re-validated against committed
//     state. Any drift aborts the whole transaction; nothing is persisted.
//   - Secondary index entries travel with the value and are replaced
//     atomically with it.
package ledger

import (
	"context"
	"iter"
)

// Version is the per-key commit counter.
type Version uint64

// Absent is the version of a key that has never been written.
const Absent Version = 0

// Record is a committed (or staged) value and its version.
type Record struct {
	Key     string
	Value   []byte
	Version Version
}

// IndexEntry is one secondary-index field carried by a write.
type IndexEntry struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Write stages a new value for Key.
type Write struct {
	Key      string
	DocType  string
	Value    []byte
	Indexes  []IndexEntry
	Expected Version
}

// Query selects records of DocType whose index Field equals Value.
type Query struct {
	DocType string
	Field   string
	Value   string
}

// Txn is the view a single ledger transaction has of state.
type Txn interface {
	// Get returns the visible record or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Put stages w, failing with sentinel.ErrVersionConflict when
	// w.Expected differs from the version visible to this transaction.
	Put(ctx context.Context, w Write) error
	// Query reads committed index matches and adds them to the read set.
	Query(ctx context.Context, q Query) iter.Seq2[Record, error]
}

// Store runs transactions and serves read-only index queries.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, txn Txn) error) error
	// Query re-executes the lookup on every iteration of the returned
	// sequence. Results are ordered by key and reflect committed state at
	// iteration time.
	Query(ctx context.Context, q Query) iter.Seq2[Record, error]
}

// Key builds the ledger key for an aggregate id.
func Key(docType, id string) string {
	return docType + "/" + id
}
