// Package postgres is a ledger backend on PostgreSQL. Versions live in the
// ledger_state row; commits use conditional writes inside one SQL
// transaction so a stale base version affects zero rows and aborts.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/lib/pq"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// PostgreSQL error classes that mean "another transaction won".
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

// Backend persists ledger state in PostgreSQL.
// This backend is pure I/O; domain rules belong in the services.
type Backend struct {
	db *sql.DB
}

var _ ledger.Backend = (*Backend)(nil)

// NewBackend wraps an open database handle.
func NewBackend(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// New returns a PostgreSQL-backed ledger.
func New(db *sql.DB, opts ...ledger.EngineOption) *ledger.Engine {
	return ledger.NewEngine(NewBackend(db), opts...)
}

// Migrate creates the ledger tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, key string) (ledger.Record, error) {
	rec := ledger.Record{Key: key}
	var version int64
	err := b.db.QueryRowContext(ctx, `SELECT value, version FROM ledger_state WHERE key = $1`, key).
		Scan(&rec.Value, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
		}
		return ledger.Record{}, fmt.Errorf("read %s: %w", key, err)
	}
	rec.Version = ledger.Version(version)
	return rec, nil
}

func (b *Backend) Scan(ctx context.Context, q ledger.Query) iter.Seq2[ledger.Record, error] {
	return func(yield func(ledger.Record, error) bool) {
		query := `
			SELECT s.key, s.value, s.version
			FROM ledger_index i
			JOIN ledger_state s ON s.key = i.key
			WHERE i.doc_type = $1 AND i.field = $2 AND i.value = $3
			ORDER BY s.key
		`
		rows, err := b.db.QueryContext(ctx, query, q.DocType, q.Field, q.Value)
		if err != nil {
			yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec ledger.Record
			var version int64
			if err := rows.Scan(&rec.Key, &rec.Value, &version); err != nil {
				yield(ledger.Record{}, fmt.Errorf("scan %s.%s row: %w", q.DocType, q.Field, err))
				return
			}
			rec.Version = ledger.Version(version)
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(ledger.Record{}, fmt.Errorf("scan %s.%s: %w", q.DocType, q.Field, err))
		}
	}
}

func (b *Backend) Commit(ctx context.Context, reads map[string]ledger.Version, writes []ledger.Write) (err error) {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	written := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		written[w.Key] = struct{}{}
	}

	// Lock read-only keys in key order before writing anything.
	readKeys := make([]string, 0, len(reads))
	for k := range reads {
		if _, ok := written[k]; !ok {
			readKeys = append(readKeys, k)
		}
	}
	slices.Sort(readKeys)
	for _, k := range readKeys {
		if err = validateRead(ctx, tx, k, reads[k]); err != nil {
			return translate(err)
		}
	}

	ordered := slices.Clone(writes)
	slices.SortFunc(ordered, func(a, b ledger.Write) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	for _, w := range ordered {
		if err = applyWrite(ctx, tx, w); err != nil {
			return translate(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func validateRead(ctx context.Context, tx *sql.Tx, key string, base ledger.Version) error {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM ledger_state WHERE key = $1 FOR SHARE`, key).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current = 0
	} else if err != nil {
		return fmt.Errorf("validate %s: %w", key, err)
	}
	if ledger.Version(current) != base {
		return fmt.Errorf("validate %s: read version %d, committed %d: %w", key, base, current, sentinel.ErrVersionConflict)
	}
	return nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, w ledger.Write) error {
	var res sql.Result
	var err error
	if w.Expected == ledger.Absent {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_state (key, doc_type, value, version)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (key) DO NOTHING
		`, w.Key, w.DocType, w.Value)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE ledger_state
			SET doc_type = $2, value = $3, version = version + 1, updated_at = now()
			WHERE key = $1 AND version = $4
		`, w.Key, w.DocType, w.Value, int64(w.Expected))
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", w.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s: %w", w.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("write %s at version %d: %w", w.Key, w.Expected, sentinel.ErrVersionConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_index WHERE key = $1`, w.Key); err != nil {
		return fmt.Errorf("reindex %s: %w", w.Key, err)
	}
	for _, ix := range w.Indexes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_index (doc_type, field, value, key)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, w.DocType, ix.Field, ix.Value, w.Key)
		if err != nil {
			return fmt.Errorf("index %s %s=%s: %w", w.Key, ix.Field, ix.Value, err)
		}
	}
	return nil
}

// translate maps lock-contention failures onto the version-conflict sentinel
// so callers see one retryable error class.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%v: %w", err, sentinel.ErrVersionConflict)
		}
	}
	return err
}
