package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerobudget/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *SQLiteRepository, owner string) (core.Account, core.Category) {
	t.Helper()
	var (
		acc core.Account
		cat core.Category
	)
	err := repo.Update(context.Background(), owner, func(tx Tx) error {
		var err error
		acc, err = tx.InsertAccount(context.Background(), core.Account{
			Name: "Checking", Balance: core.MustParseMoney("1000"), CreatedAt: testNow, UpdatedAt: testNow,
		})
		if err != nil {
			return err
		}
		cat, err = tx.InsertCategory(context.Background(), core.Category{Name: "Groceries", CreatedAt: testNow})
		return err
	})
	require.NoError(t, err)
	return acc, cat
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(path))
}

func TestAccountsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := seed(t, repo, "alice")

	err := repo.View(ctx, "alice", func(tx Tx) error {
		got, err := tx.Account(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Checking", got.Name)
		assert.Equal(t, "alice", got.Owner)
		assert.Equal(t, "1000.00", got.Balance.String())
		assert.True(t, got.CreatedAt.Equal(testNow))
		return nil
	})
	require.NoError(t, err)

	// Other owners cannot see the account.
	err = repo.View(ctx, "bob", func(tx Tx) error {
		_, err := tx.Account(ctx, acc.ID)
		return err
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDuplicateNameIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seed(t, repo, "alice")

	err := repo.Update(ctx, "alice", func(tx Tx) error {
		_, err := tx.InsertCategory(ctx, core.Category{Name: "Groceries", CreatedAt: testNow})
		return err
	})
	assert.ErrorIs(t, err, core.ErrConflict)

	// Same name for another owner is fine.
	seed(t, repo, "bob")
}

func TestUpdateRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, cat := seed(t, repo, "alice")

	boom := errors.New("boom")
	err := repo.Update(ctx, "alice", func(tx Tx) error {
		if _, err := tx.InsertAllocation(ctx, core.Allocation{
			CategoryID: cat.ID, AccountID: acc.ID, Amount: core.MustParseMoney("10"),
			Kind: core.AllocationAllocate, AllocatedAt: testNow,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = repo.View(ctx, "alice", func(tx Tx) error {
		allocations, err := tx.Allocations(ctx)
		require.NoError(t, err)
		assert.Empty(t, allocations)
		return nil
	})
	require.NoError(t, err)
}

func TestAllocationsAndTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, cat := seed(t, repo, "alice")

	err := repo.Update(ctx, "alice", func(tx Tx) error {
		_, err := tx.InsertAllocation(ctx, core.Allocation{
			CategoryID: cat.ID, AccountID: acc.ID, Amount: core.MustParseMoney("-25.50"),
			Kind: core.AllocationMoveOut, MoveID: "m-1", AllocatedAt: testNow,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertTransaction(ctx, core.Transaction{
			AccountID: acc.ID, CategoryID: &cat.ID, Type: core.Expense,
			Amount: core.MustParseMoney("12.34"), Description: "milk", Date: core.NewDate(testNow),
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertTransaction(ctx, core.Transaction{
			AccountID: acc.ID, Type: core.Income, Amount: core.MustParseMoney("100"),
			Date: core.NewDate(testNow.AddDate(0, 0, 1)),
		})
		return err
	})
	require.NoError(t, err)

	err = repo.View(ctx, "alice", func(tx Tx) error {
		allocations, err := tx.Allocations(ctx)
		require.NoError(t, err)
		require.Len(t, allocations, 1)
		assert.Equal(t, "-25.50", allocations[0].Amount.String())
		assert.Equal(t, core.AllocationMoveOut, allocations[0].Kind)
		assert.Equal(t, "m-1", allocations[0].MoveID)
		assert.Equal(t, "Groceries", allocations[0].CategoryName)
		assert.Equal(t, "Checking", allocations[0].AccountName)

		transactions, err := tx.Transactions(ctx)
		require.NoError(t, err)
		require.Len(t, transactions, 2)
		assert.Equal(t, core.Income, transactions[0].Type, "newest date first")
		assert.Nil(t, transactions[0].CategoryID)
		assert.Equal(t, "Groceries", transactions[1].CategoryName)
		assert.Equal(t, "2025-01-15", transactions[1].Date.String())
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteReferencedAccountIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, cat := seed(t, repo, "alice")

	require.NoError(t, repo.Update(ctx, "alice", func(tx Tx) error {
		_, err := tx.InsertAllocation(ctx, core.Allocation{
			CategoryID: cat.ID, AccountID: acc.ID, Amount: core.MustParseMoney("5"),
			Kind: core.AllocationAllocate, AllocatedAt: testNow,
		})
		return err
	}))

	err := repo.Update(ctx, "alice", func(tx Tx) error { return tx.DeleteAccount(ctx, acc.ID) })
	assert.ErrorIs(t, err, core.ErrConflict)

	err = repo.Update(ctx, "alice", func(tx Tx) error { return tx.DeleteTransaction(ctx, 999) })
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecordEventIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e := EventRecord{
		ID: "0b7f3c0e-1111-4c5e-9a0e-2a7c1d2e3f40", Type: "allocation.created", Owner: "alice",
		EntityID: 3, Amount: core.MustParseMoney("200"), OccurredAt: testNow,
	}
	written, err := repo.RecordEvent(ctx, e)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.RecordEvent(ctx, e)
	require.NoError(t, err)
	assert.False(t, written)

	events, err := repo.ListEvents(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "200.00", events[0].Amount.String())
	assert.True(t, events[0].OccurredAt.Equal(testNow))
}

func TestListEventsLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"e1", "e2", "e3"} {
		_, err := repo.RecordEvent(ctx, EventRecord{
			ID: id, Type: "account.created", Owner: "alice",
			OccurredAt: testNow.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	for _, limit := range []int{0, -1} {
		events, err := repo.ListEvents(ctx, "alice", limit)
		require.NoError(t, err)
		assert.Len(t, events, 3, "limit %d means no limit", limit)
	}

	events, err := repo.ListEvents(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
}

func TestOutOfRangeAmountsAreRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, _ := seed(t, repo, "alice")

	tooLarge := core.MustParseMoney("999999999999999.99").Add(core.MustParseMoney("0.01"))
	err := repo.Update(ctx, "alice", func(tx Tx) error {
		acc.Balance = tooLarge
		return tx.UpdateAccount(ctx, acc)
	})
	require.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrAmountOutOfRange)

	_, err = repo.RecordEvent(ctx, EventRecord{ID: "big", Owner: "alice", Amount: tooLarge, OccurredAt: testNow})
	assert.ErrorIs(t, err, core.ErrAmountOutOfRange)

	err = repo.View(ctx, "alice", func(tx Tx) error {
		stored, err := tx.Account(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "1000.00", stored.Balance.String())
		return nil
	})
	require.NoError(t, err)
}

func TestRecordEventDoesNotLog(t *testing.T) {
	repo := newTestRepo(t)
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })

	written, err := repo.RecordEvent(context.Background(), EventRecord{ID: "quiet", Owner: "alice", OccurredAt: testNow})
	require.NoError(t, err)
	assert.True(t, written)
	assert.Empty(t, buf.String(), "the audit worker owns the log line for recorded events")
}
