// Package memory is an in-process ledger backend with the same
// version-checked contract as the replicated backends. It backs unit tests
// and single-node development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

type entry struct {
	docType string
	value   []byte
	version ledger.Version
	indexes []ledger.IndexEntry
}

type indexKey struct {
	docType, field, value string
}

// Backend holds committed state behind a single RWMutex.
type Backend struct {
	mu      sync.RWMutex
	records map[string]entry
	index   map[indexKey]map[string]struct{}
}

var _ ledger.Backend = (*Backend)(nil)

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		records: make(map[string]entry),
		index:   make(map[indexKey]map[string]struct{}),
	}
}

// New returns a ready-to-use in-memory ledger.
func New(opts ...ledger.EngineOption) *ledger.Engine {
	return ledger.NewEngine(NewBackend(), opts...)
}

func (b *Backend) Read(_ context.Context, key string) (ledger.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.records[key]
	if !ok {
		return ledger.Record{}, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	return ledger.Record{Key: key, Value: bytes.Clone(e.value), Version: e.version}, nil
}

func (b *Backend) Scan(_ context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		b.mu.RLock()
		keys := make([]string, 0, len(b.index[indexKey{q.DocType, q.Field, q.Value}]))
		for k := range b.index[indexKey{q.DocType, q.Field, q.Value}] {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		recs := make([]ledger.Record, 0, len(keys))
		for _, k := range keys {
			e := b.records[k]
			recs = append(recs, ledger.Record{Key: k, Value: bytes.Clone(e.value), Version: e.version})
		}
		b.mu.RUnlock()

		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (b *Backend) Commit(_ context.Context, reads map[string]ledger.Version, writes []ledger.Write) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, base := range reads {
		if current := b.records[key].version; current != base {
			return fmt.Errorf("commit %s: read version %d, committed %d: %w", key, base, current, sentinel.ErrVersionConflict)
		}
	}

	for _, w := range writes {
		if old, ok := b.records[w.Key]; ok {
			b.unindex(w.Key, old)
		}
		e := entry{
			docType: w.DocType,
			value:   w.Value,
			version: w.Expected + 1,
			indexes: w.Indexes,
		}
		b.records[w.Key] = e
		for _, ix := range e.indexes {
			k := indexKey{e.docType, ix.Field, ix.Value}
			if b.index[k] == nil {
				b.index[k] = make(map[string]struct{})
			}
			b.index[k][w.Key] = struct{}{}
		}
	}
	return nil
}

// Len reports the number of committed keys.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

func (b *Backend) unindex(key string, e entry) {
	for _, ix := range e.indexes {
		k := indexKey{e.docType, ix.Field, ix.Value}
		delete(b.index[k], key)
		if len(b.index[k]) == 0 {
			delete(b.index, k)
		}
	}
}
