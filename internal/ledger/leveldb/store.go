// Package leveldb is an embedded ledger backend on goleveldb for single-node
// deployments. Commits are serialized by a mutex and written as one batch.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

const (
	statePrefix = "s/"
	indexPrefix = "i/"
	sep         = "\x00"
)

type envelope struct {
	DocType string              `json:"doc_type"`
	Version ledger.Version      `json:"version"`
	Value   []byte              `json:"value"`
	Indexes []ledger.IndexEntry `json:"indexes,omitempty"`
}

// Backend is a persistent LevelDB ledger.
type Backend struct {
	db   *leveldb.DB
	sync bool

	commitMu sync.Mutex
}

var _ ledger.Backend = (*Backend)(nil)

// Open creates or opens a LevelDB database at path. With syncWrites every
// commit is fsynced before returning.
func Open(path string, syncWrites bool) (*Backend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Backend{db: db, sync: syncWrites}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func stateKey(key string) []byte {
	return []byte(statePrefix + key)
}

func indexKey(docType, field, value, key string) []byte {
	return []byte(indexPrefix + docType + sep + field + sep + value + sep + key)
}

func indexScanPrefix(q ledger.Query) []byte {
	return []byte(indexPrefix + q.DocType + sep + q.Field + sep + q.Value + sep)
}

type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

func load(g getter, key string) (*envelope, error) {
	raw, err := g.Get(stateKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", key, err, sentinel.ErrInvalidState)
	}
	return &env, nil
}

func (b *Backend) Read(_ context.Context, key string) (ledger.Record, error) {
	env, err := load(b.db, key)
	if err != nil {
		return ledger.Record{}, err
	}
	return ledger.Record{Key: key, Value: env.Value, Version: env.Version}, nil
}

func (b *Backend) Scan(_ context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		snap, err := b.db.GetSnapshot()
		if err != nil {
			yield(ledger.Record{}, fmt.Errorf("snapshot: %w", err))
			return
		}
		defer snap.Release()

		prefix := indexScanPrefix(q)
		it := snap.NewIterator(util.BytesPrefix(prefix), nil)
		defer it.Release()

		for it.Next() {
			key := string(it.Key()[len(prefix):])
			env, err := load(snap, key)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				yield(ledger.Record{}, err)
				return
			}
			if !yield(ledger.Record{Key: key, Value: env.Value, Version: env.Version}, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
		}
	}
}

func (b *Backend) Commit(_ context.Context, reads map[string]ledger.Version, writes []ledger.Write) error {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()

	for key, base := range reads {
		var current ledger.Version
		env, err := load(b.db, key)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
		case err != nil:
			return err
		default:
			current = env.Version
		}
		if current != base {
			return fmt.Errorf("commit %s: read version %d, committed %d: %w", key, base, current, sentinel.ErrVersionConflict)
		}
	}

	batch := new(leveldb.Batch)
	for _, w := range writes {
		if w.Expected != ledger.Absent {
			old, err := load(b.db, w.Key)
			if err != nil {
				return err
			}
			for _, ix := range old.Indexes {
				batch.Delete(indexKey(old.DocType, ix.Field, ix.Value, w.Key))
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
		batch.Put(stateKey(w.Key), raw)
		for _, ix := range w.Indexes {
			batch.Put(indexKey(w.DocType, ix.Field, ix.Value, w.Key), nil)
		}
	}

	if err := b.db.Write(batch, &opt.WriteOptions{Sync: b.sync}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}
