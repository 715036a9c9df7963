package ledger

import (
	"context"
	"iter"
	"time"
)

// DefaultTxTimeout bounds a transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// Backend is the primitive surface a storage technology provides.
type Backend interface {
	// Read returns committed state or sentinel.ErrNotFound.
	Read(ctx context.Context, key string) (Record, error)
	// Scan returns committed index matches ordered by key.
	Scan(ctx context.Context, q Query) iter.Seq2[Record, error]
	// Commit validates reads against committed versions and applies writes
	// (each at Expected+1) atomically, or returns sentinel.ErrVersionConflict
	// and applies nothing.
	Commit(ctx context.Context, reads map[string]Version, writes []Write) error
}

// Engine adapts a Backend to Store.
type Engine struct {
	backend Backend
	timeout time.Duration
}

var _ Store = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTxTimeout overrides DefaultTxTimeout. Zero disables the default.
func WithTxTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// NewEngine wraps backend.
func NewEngine(backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{backend: backend, timeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunInTx runs fn against a fresh buffer and commits its writes. fn's error
// is returned unchanged and nothing is persisted. A transaction with no
// writes commits nothing.
func (e *Engine) RunInTx(ctx context.Context, fn func(ctx context.Context, txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok && e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	buf := NewBuffer(e.backend)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	writes := buf.Writes()
	if len(writes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.backend.Commit(ctx, buf.ReadSet(), writes)
}

func (e *Engine) Query(ctx context.Context, q Query) iter.Seq2[Record, error] {
	return e.backend.Scan(ctx, q)
}
