package storage

import (
	"context"
	"time"

	"zerobudget/internal/core"
)

// Ports implemented by the SQLite repository and the in-memory store.
type (
	// Store runs owner-scoped units of work. Update commits every write made
	// by fn or none of them; View sees a consistent snapshot.
	Store interface {
		Update(ctx context.Context, owner string, fn func(Tx) error) error
		View(ctx context.Context, owner string, fn func(Tx) error) error
		Ping(ctx context.Context) error
		Close() error
	}

	// Tx exposes one owner's ledger inside a unit of work. Lookups of
	// missing ids return a core not_found error; duplicate names return a
	// core conflict error.
	Tx interface {
		Accounts(ctx context.Context) ([]core.Account, error)
		Account(ctx context.Context, id int64) (core.Account, error)
		InsertAccount(ctx context.Context, a core.Account) (core.Account, error)
		UpdateAccount(ctx context.Context, a core.Account) error
		DeleteAccount(ctx context.Context, id int64) error

		Categories(ctx context.Context) ([]core.Category, error)
		Category(ctx context.Context, id int64) (core.Category, error)
		InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, id int64) error

		// Allocations returns entries newest first with names resolved.
		Allocations(ctx context.Context) ([]core.Allocation, error)
		InsertAllocation(ctx context.Context, a core.Allocation) (core.Allocation, error)

		// Transactions returns records by date, newest first.
		Transactions(ctx context.Context) ([]core.Transaction, error)
		Transaction(ctx context.Context, id int64) (core.Transaction, error)
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id int64) error
	}

	// EventLog persists the audit trail written by the ledger worker.
	EventLog interface {
		// RecordEvent stores e unless an event with the same ID exists and
		// reports whether a row was written.
		RecordEvent(ctx context.Context, e EventRecord) (bool, error)
		ListEvents(ctx context.Context, owner string, limit int) ([]EventRecord, error)
	}
)

// EventRecord is one row of the audit trail.
type EventRecord struct {
	ID         string
	Type       string
	Owner      string
	EntityID   int64
	Amount     core.Money
	OccurredAt time.Time
	RecordedAt time.Time
}

// timeLayout is the TEXT encoding of timestamps in SQLite.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
