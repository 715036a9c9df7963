package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"rotrust/pkg/platform/sentinel"
)

// Buffer is a Txn that tracks a read set and stages writes in memory until
// the owning engine commits them.
type Buffer struct {
	backend Backend
	bases   map[string]Version
	staged  map[string]Write
	order   []string
}

var _ Txn = (*Buffer)(nil)

// NewBuffer starts an empty transaction view over backend.
func NewBuffer(backend Backend) *Buffer {
	return &Buffer{
		backend: backend,
		bases:   make(map[string]Version),
		staged:  make(map[string]Write),
	}
}

func (b *Buffer) Get(ctx context.Context, key string) (Record, error) {
	if w, ok := b.staged[key]; ok {
		return Record{Key: key, Value: bytes.Clone(w.Value), Version: w.Expected + 1}, nil
	}
	return b.observe(ctx, key)
}

func (b *Buffer) Put(ctx context.Context, w Write) error {
	visible, err := b.visible(ctx, w.Key)
	if err != nil {
		return err
	}
	if w.Expected != visible {
		return fmt.Errorf("put %s: expected version %d, visible %d: %w", w.Key, w.Expected, visible, sentinel.ErrVersionConflict)
	}
	if _, ok := b.staged[w.Key]; !ok {
		b.order = append(b.order, w.Key)
	}
	w.Expected = b.bases[w.Key]
	w.Value = bytes.Clone(w.Value)
	w.Indexes = slices.Clone(w.Indexes)
	b.staged[w.Key] = w
	return nil
}

func (b *Buffer) Query(ctx context.Context, q Query) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range b.backend.Scan(ctx, q) {
			if err == nil {
				err = b.note(rec.Key, rec.Version)
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ReadSet returns the committed version observed for every key touched.
func (b *Buffer) ReadSet() map[string]Version {
	out := make(map[string]Version, len(b.bases))
	for k, v := range b.bases {
		out[k] = v
	}
	return out
}

// Writes returns staged writes in first-staged order. Each Expected is the
// committed base version the write must replace.
func (b *Buffer) Writes() []Write {
	out := make([]Write, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.staged[k])
	}
	return out
}

func (b *Buffer) visible(ctx context.Context, key string) (Version, error) {
	if w, ok := b.staged[key]; ok {
		return w.Expected + 1, nil
	}
	if v, ok := b.bases[key]; ok {
		return v, nil
	}
	rec, err := b.observe(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Absent, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.Version, nil
}

func (b *Buffer) observe(ctx context.Context, key string) (Record, error) {
	rec, err := b.backend.Read(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		if nerr := b.note(key, Absent); nerr != nil {
			return Record{}, nerr
		}
		return Record{}, err
	}
	if err != nil {
		return Record{}, err
	}
	if err := b.note(key, rec.Version); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// note records the first committed version seen for key. Seeing a different
// committed version later in the same transaction means another writer
// committed in between.
func (b *Buffer) note(key string, v Version) error {
	if prev, ok := b.bases[key]; ok {
		if prev != v {
			return fmt.Errorf("read %s: version moved from %d to %d: %w", key, prev, v, sentinel.ErrVersionConflict)
		}
		return nil
	}
	b.bases[key] = v
	return nil
}
