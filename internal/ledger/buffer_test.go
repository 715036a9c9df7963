package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rotrust/internal/ledger"
	"rotrust/internal/ledger/memory"
	"rotrust/pkg/platform/sentinel"
)

type doc struct {
	Owner string `json:"owner"`
}

func seed(t *testing.T, backend *memory.Backend, key, owner string) {
	t.Helper()
	err := ledger.NewEngine(backend).RunInTx(context.Background(), func(ctx context.Context, txn ledger.Txn) error {
		return ledger.Save(ctx, txn, "doc", key, doc{Owner: owner}, []ledger.IndexEntry{{Field: "owner", Value: owner}}, ledger.Absent)
	})
	require.NoError(t, err)
}

func TestBuffer_PutChecksVisibleVersion(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, "doc/1", "alice")

	buf := ledger.NewBuffer(backend)
	ctx := context.Background()

	err := buf.Put(ctx, ledger.Write{Key: "doc/1", Value: []byte(`{}`), Expected: ledger.Absent})
	assert.ErrorIs(t, err, sentinel.ErrVersionConflict, "create-only write over an existing key")

	require.NoError(t, buf.Put(ctx, ledger.Write{Key: "doc/1", Value: []byte(`{}`), Expected: 1}))
	assert.Equal(t, map[string]ledger.Version{"doc/1": 1}, buf.ReadSet())

	writes := buf.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, ledger.Version(1), writes[0].Expected, "commit expects the committed base")
}

func TestBuffer_MissingKeyJoinsReadSet(t *testing.T) {
	buf := ledger.NewBuffer(memory.NewBackend())

	_, err := buf.Get(context.Background(), "doc/ghost")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.Equal(t, map[string]ledger.Version{"doc/ghost": ledger.Absent}, buf.ReadSet())
}

func TestBuffer_QueryJoinsReadSet(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, "doc/1", "alice")
	seed(t, backend, "doc/2", "alice")

	buf := ledger.NewBuffer(backend)
	var keys []string
	for rec, err := range buf.Query(context.Background(), ledger.Query{DocType: "doc", Field: "owner", Value: "alice"}) {
		require.NoError(t, err)
		keys = append(keys, rec.Key)
	}

	assert.Equal(t, []string{"doc/1", "doc/2"}, keys)
	assert.Len(t, buf.ReadSet(), 2)
}

func TestLoadAndSave(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, txn ledger.Txn) error {
		return ledger.Save(ctx, txn, "doc", ledger.Key("doc", "7"), doc{Owner: "bob"}, nil, ledger.Absent)
	}))

	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, txn ledger.Txn) error {
		d, v, err := ledger.Load[doc](ctx, txn, "doc/7")
		require.NoError(t, err)
		assert.Equal(t, "bob", d.Owner)
		assert.Equal(t, ledger.Version(1), v)
		return nil
	}))
}

func TestLoad_UndecodableStateIsInvalid(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, txn ledger.Txn) error {
		return txn.Put(ctx, ledger.Write{Key: "doc/bad", DocType: "doc", Value: []byte("{not json")})
	}))

	err := store.RunInTx(ctx, func(ctx context.Context, txn ledger.Txn) error {
		_, _, err := ledger.Load[doc](ctx, txn, "doc/bad")
		return err
	})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestEngine_DefaultTimeout(t *testing.T) {
	store := memory.New(ledger.WithTxTimeout(50 * time.Millisecond))

	err := store.RunInTx(context.Background(), func(ctx context.Context, _ ledger.Txn) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}
