package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"rotrust/pkg/platform/sentinel"
)

// Load reads key through txn and decodes it as JSON into a T.
func Load[T any](ctx context.Context, txn Txn, key string) (*T, Version, error) {
	rec, err := txn.Get(ctx, key)
	if err != nil {
		return nil, Absent, err
	}
	v, err := Decode[T](rec)
	if err != nil {
		return nil, Absent, err
	}
	return v, rec.Version, nil
}

// Decode unmarshals a record value. Undecodable state is reported as
// sentinel.ErrInvalidState.
func Decode[T any](rec Record) (*T, error) {
	var v T
	if err := json.Unmarshal(rec.Value, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", rec.Key, err, sentinel.ErrInvalidState)
	}
	return &v, nil
}

// Save encodes v as JSON and stages it under key.
func Save(ctx context.Context, txn Txn, docType, key string, v any, indexes []IndexEntry, expected Version) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Put(ctx, Write{
		Key:      key,
		DocType:  docType,
		Value:    raw,
		Indexes:  indexes,
		Expected: expected,
	})
}

// DecodeAll maps a record sequence to decoded values. Iteration stops at the
// first error.
func DecodeAll[T any](seq iter.Seq2[Record, error]) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			v, err := Decode[T](rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
