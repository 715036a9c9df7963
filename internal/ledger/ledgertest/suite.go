// Package ledgertest holds the conformance suite every ledger backend runs.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/suite"

	"rotrust/internal/ledger"
	"rotrust/pkg/platform/sentinel"
)

// Caps switches off scenarios a backend cannot express. The Fabric stub, for
// example, has no second concurrent transaction to interleave with.
type Caps struct {
	Interleaved bool
	Concurrent  bool
}

// Suite verifies the ledger.Store contract. Embed or run it directly with a
// NewStore factory that returns an empty store.
type Suite struct {
	suite.Suite
	NewStore func() ledger.Store
	Caps     Caps

	store ledger.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *Suite) put(key string, value string, expected ledger.Version, indexes ...ledger.IndexEntry) error {
	return s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		return txn.Put(ctx, ledger.Write{
			Key:      key,
			DocType:  "doc",
			Value:    []byte(value),
			Indexes:  indexes,
			Expected: expected,
		})
	})
}

func (s *Suite) get(key string) (ledger.Record, error) {
	var rec ledger.Record
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		var err error
		rec, err = txn.Get(ctx, key)
		return err
	})
	return rec, err
}

func (s *Suite) keys(q ledger.Query) []string {
	var out []string
	for rec, err := range s.store.Query(s.ctx, q) {
		s.Require().NoError(err)
		out = append(out, rec.Key)
	}
	return out
}

// =============================================================================
// Versioning
// =============================================================================

func (s *Suite) TestCreateOnly() {
	s.Require().NoError(s.put("doc/a", `"v1"`, ledger.Absent))

	err := s.put("doc/a", `"v1-again"`, ledger.Absent)
	s.ErrorIs(err, sentinel.ErrVersionConflict)

	rec, err := s.get("doc/a")
	s.Require().NoError(err)
	s.Equal(`"v1"`, string(rec.Value))
	s.Equal(ledger.Version(1), rec.Version)
}

func (s *Suite) TestGetMissing() {
	_, err := s.get("doc/missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestUpdateRequiresCurrentVersion() {
	s.Require().NoError(s.put("doc/a", `"v1"`, ledger.Absent))
	s.Require().NoError(s.put("doc/a", `"v2"`, 1))

	s.Run("stale expected version is rejected", func() {
		err := s.put("doc/a", `"stale"`, 1)
		s.ErrorIs(err, sentinel.ErrVersionConflict)
	})

	s.Run("committed value is the last accepted write", func() {
		rec, err := s.get("doc/a")
		s.Require().NoError(err)
		s.Equal(`"v2"`, string(rec.Value))
		s.Equal(ledger.Version(2), rec.Version)
	})
}

func (s *Suite) TestReadYourWrites() {
	s.Require().NoError(s.put("doc/a", `"v1"`, ledger.Absent))

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		rec, err := txn.Get(ctx, "doc/a")
		s.Require().NoError(err)
		s.Require().NoError(txn.Put(ctx, ledger.Write{Key: "doc/a", DocType: "doc", Value: []byte(`"v2"`), Expected: rec.Version}))

		staged, err := txn.Get(ctx, "doc/a")
		s.Require().NoError(err)
		s.Equal(`"v2"`, string(staged.Value))
		s.Equal(ledger.Version(2), staged.Version)

		return txn.Put(ctx, ledger.Write{Key: "doc/a", DocType: "doc", Value: []byte(`"v3"`), Expected: staged.Version})
	})
	s.Require().NoError(err)

	rec, err := s.get("doc/a")
	s.Require().NoError(err)
	s.Equal(`"v3"`, string(rec.Value))
	s.Equal(ledger.Version(2), rec.Version, "one transaction bumps the version once")
}

// =============================================================================
// Atomicity
// =============================================================================

func (s *Suite) TestRollbackOnError() {
	boom := errors.New("business rule failed")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		s.Require().NoError(txn.Put(ctx, ledger.Write{Key: "doc/a", DocType: "doc", Value: []byte(`1`)}))
		s.Require().NoError(txn.Put(ctx, ledger.Write{Key: "doc/b", DocType: "doc", Value: []byte(`2`)}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.get("doc/a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.get("doc/b")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestMultiKeyCommitAbortsOnConflict() {
	if !s.Caps.Interleaved {
		s.T().Skip("backend cannot interleave transactions")
	}
	s.Require().NoError(s.put("doc/owner", `"alice"`, ledger.Absent))

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		rec, err := txn.Get(ctx, "doc/owner")
		s.Require().NoError(err)

		// A competing writer commits between our read and our commit.
		s.Require().NoError(s.put("doc/owner", `"carol"`, rec.Version))

		s.Require().NoError(txn.Put(ctx, ledger.Write{Key: "doc/owner", DocType: "doc", Value: []byte(`"bob"`), Expected: rec.Version}))
		return txn.Put(ctx, ledger.Write{Key: "doc/receipt", DocType: "doc", Value: []byte(`"sold"`)})
	})
	s.ErrorIs(err, sentinel.ErrVersionConflict)

	rec, err := s.get("doc/owner")
	s.Require().NoError(err)
	s.Equal(`"carol"`, string(rec.Value))
	_, err = s.get("doc/receipt")
	s.ErrorIs(err, sentinel.ErrNotFound, "no partial commit")
}

func (s *Suite) TestReadOnlyKeyIsValidated() {
	if !s.Caps.Interleaved {
		s.T().Skip("backend cannot interleave transactions")
	}
	s.Require().NoError(s.put("doc/property", `"alice"`, ledger.Absent))

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
		rec, err := txn.Get(ctx, "doc/property")
		s.Require().NoError(err)
		s.Require().NoError(s.put("doc/property", `"bob"`, rec.Version))
		return txn.Put(ctx, ledger.Write{Key: "doc/transfer", DocType: "doc", Value: []byte(`"seller=alice"`)})
	})
	s.ErrorIs(err, sentinel.ErrVersionConflict)

	_, err = s.get("doc/transfer")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.store.RunInTx(ctx, func(context.Context, ledger.Txn) error {
		s.Fail("fn must not run")
		return nil
	})
	s.ErrorIs(err, context.Canceled)
}

// =============================================================================
// Index
// =============================================================================

func (s *Suite) TestIndexFollowsValue() {
	owner := func(v string) ledger.IndexEntry { return ledger.IndexEntry{Field: "owner", Value: v} }
	byOwner := func(v string) ledger.Query { return ledger.Query{DocType: "doc", Field: "owner", Value: v} }

	s.Require().NoError(s.put("doc/p2", `"p2"`, ledger.Absent, owner("alice")))
	s.Require().NoError(s.put("doc/p1", `"p1"`, ledger.Absent, owner("alice")))
	s.Require().NoError(s.put("doc/p3", `"p3"`, ledger.Absent, owner("bob")))

	s.Run("results are ordered by key", func() {
		s.Equal([]string{"doc/p1", "doc/p2"}, s.keys(byOwner("alice")))
	})

	s.Require().NoError(s.put("doc/p1", `"p1"`, 1, owner("bob")))

	s.Run("old entry removed with the update", func() {
		s.Equal([]string{"doc/p2"}, s.keys(byOwner("alice")))
		s.Equal([]string{"doc/p1", "doc/p3"}, s.keys(byOwner("bob")))
	})

	s.Run("sequence is restartable", func() {
		seq := s.store.Query(s.ctx, byOwner("bob"))
		var first, second []string
		for rec, err := range seq {
			s.Require().NoError(err)
			first = append(first, rec.Key)
		}
		for rec, err := range seq {
			s.Require().NoError(err)
			second = append(second, rec.Key)
		}
		s.Equal(first, second)
	})

	s.Run("no match", func() {
		s.Empty(s.keys(byOwner("nobody")))
	})
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *Suite) TestConcurrentWritersExactlyOneWinsPerVersion() {
	if !s.Caps.Concurrent {
		s.T().Skip("backend is single-writer")
	}
	s.Require().NoError(s.put("doc/counter", `0`, ledger.Absent))

	const writers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.store.RunInTx(s.ctx, func(ctx context.Context, txn ledger.Txn) error {
				rec, err := txn.Get(ctx, "doc/counter")
				if err != nil {
					return err
				}
				return txn.Put(ctx, ledger.Write{Key: "doc/counter", DocType: "doc", Value: []byte(fmt.Sprint(i)), Expected: rec.Version})
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrVersionConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.GreaterOrEqual(wins.Load(), int32(1))
	s.Equal(int32(writers), wins.Load()+conflicts.Load())

	rec, err := s.get("doc/counter")
	s.Require().NoError(err)
	s.Equal(ledger.Version(1+wins.Load()), rec.Version, "every win bumps the version exactly once")
}
