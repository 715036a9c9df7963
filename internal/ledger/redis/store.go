// Package redis is a ledger backend on Redis. Each record is a hash holding
// value, version, doc type and its index entries; index entries are sets of
// record keys. Commits run under WATCH so any concurrent change to a key in
// the read set aborts the MULTI block.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
	fieldDocType = "doc_type"
	fieldIndexes = "indexes"
)

// Backend persists ledger state in Redis under a key prefix.
type Backend struct {
	client *redis.Client
	prefix string
}

var _ ledger.Backend = (*Backend)(nil)

// NewBackend wraps client. prefix namespaces every key, e.g. "rotrust".
func NewBackend(client *redis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

// New returns a Redis-backed ledger.
func New(client *redis.Client, prefix string, opts ...ledger.EngineOption) *ledger.Engine {
	return ledger.NewEngine(NewBackend(client, prefix), opts...)
}

func (b *Backend) stateKey(key string) string {
	return b.prefix + ":state:" + key
}

func (b *Backend) indexKey(docType, field, value string) string {
	return strings.Join([]string{b.prefix, "idx", docType, field, value}, ":")
}

func (b *Backend) Read(ctx context.Context, key string) (ledger.Record, error) {
	vals, err := b.client.HMGet(ctx, b.stateKey(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read %s: %w", key, err)
	}
	if vals[0] == nil || vals[1] == nil {
		return ledger.Record{}, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	value, _ := vals[0].(string)
	rawVersion, _ := vals[1].(string)
	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read %s version: %v: %w", key, err, sentinel.ErrInvalidState)
	}
	return ledger.Record{Key: key, Value: []byte(value), Version: ledger.Version(version)}, nil
}

func (b *Backend) Scan(ctx context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		keys, err := b.client.SMembers(ctx, b.indexKey(q.DocType, q.Field, q.Value)).Result()
		if err != nil {
			yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
			return
		}
		slices.Sort(keys)
		for _, k := range keys {
			rec, err := b.Read(ctx, k)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (b *Backend) Commit(ctx context.Context, reads map[string]ledger.Version, writes []ledger.Write) error {
	watched := make([]string, 0, len(reads))
	for k := range reads {
		watched = append(watched, b.stateKey(k))
	}
	slices.Sort(watched)

	txf := func(tx *redis.Tx) error {
		for key, base := range reads {
			current, err := tx.HGet(ctx, b.stateKey(key), fieldVersion).Uint64()
			if errors.Is(err, redis.Nil) {
				current = 0
			} else if err != nil {
				return fmt.Errorf("validate %s: %w", key, err)
			}
			if ledger.Version(current) != base {
				return fmt.Errorf("validate %s: read version %d, committed %d: %w", key, base, current, sentinel.ErrVersionConflict)
			}
		}

		previous := make(map[string][]ledger.IndexEntry, len(writes))
		for _, w := range writes {
			if w.Expected == ledger.Absent {
				continue
			}
			raw, err := tx.HGet(ctx, b.stateKey(w.Key), fieldIndexes).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("load indexes %s: %w", w.Key, err)
			}
			var old []ledger.IndexEntry
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &old); err != nil {
					return fmt.Errorf("decode indexes %s: %v: %w", w.Key, err, sentinel.ErrInvalidState)
				}
			}
			previous[w.Key] = old
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				idx, err := json.Marshal(w.Indexes)
				if err != nil {
					return fmt.Errorf("encode indexes %s: %w", w.Key, err)
				}
				pipe.HSet(ctx, b.stateKey(w.Key),
					fieldValue, w.Value,
					fieldVersion, uint64(w.Expected+1),
					fieldDocType, w.DocType,
					fieldIndexes, idx,
				)
				for _, ix := range previous[w.Key] {
					pipe.SRem(ctx, b.indexKey(w.DocType, ix.Field, ix.Value), w.Key)
				}
				for _, ix := range w.Indexes {
					pipe.SAdd(ctx, b.indexKey(w.DocType, ix.Field, ix.Value), w.Key)
				}
			}
			return nil
		})
		return err
	}

	err := b.client.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("commit: %v: %w", err, sentinel.ErrVersionConflict)
	}
	return err
}
