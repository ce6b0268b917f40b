package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"zerobudget/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the durable Store. Writes run in BEGIN IMMEDIATE
// transactions so concurrent writers serialize on the database lock.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ Store    = (*SQLiteRepository)(nil)
	_ EventLog = (*SQLiteRepository)(nil)
)

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Update(ctx context.Context, owner string, fn func(Tx) error) error {
	return r.inTx(ctx, owner, fn)
}

func (r *SQLiteRepository) View(ctx context.Context, owner string, fn func(Tx) error) error {
	return r.inTx(ctx, owner, fn)
}

func (r *SQLiteRepository) inTx(ctx context.Context, owner string, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, owner: owner}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecordEvent implements EventLog
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e EventRecord) (bool, error) {
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	amount, err := centsOf(e.Amount, "amount")
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, event_type, owner, entity_id, amount_cents, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, e.Owner, e.EntityID, amount, formatTime(e.OccurredAt), formatTime(recordedAt))
	if err != nil {
		return false, fmt.Errorf("insert ledger event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger event rows affected: %w", err)
	}
	return n > 0, nil
}

// ListEvents implements EventLog
func (r *SQLiteRepository) ListEvents(ctx context.Context, owner string, limit int) ([]EventRecord, error) {
	// SQLite reads a negative LIMIT as no limit.
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, owner, entity_id, amount_cents, occurred_at, recorded_at
		FROM ledger_events
		WHERE owner = ?
		ORDER BY occurred_at DESC, id
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var (
			e                      EventRecord
			occurredAt, recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Owner, &e.EntityID, &e.Amount, &occurredAt, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type sqlTx struct {
	tx    *sql.Tx
	owner string
}

type scanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, owner, name, balance_cents, created_at, updated_at`

func scanAccount(s scanner) (core.Account, error) {
	var (
		a                    core.Account
		createdAt, updatedAt string
		err                  error
	)
	if err = s.Scan(&a.ID, &a.Owner, &a.Name, &a.Balance, &createdAt, &updatedAt); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return a, fmt.Errorf("parse updated_at: %w", err)
	}
	return a, nil
}

func (t *sqlTx) Accounts(ctx context.Context) ([]core.Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner = ? ORDER BY id`, t.owner)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (t *sqlTx) Account(ctx context.Context, id int64) (core.Account, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner = ? AND id = ?`, t.owner, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, core.NotFound("account", id)
	}
	if err != nil {
		return a, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (t *sqlTx) InsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Owner = t.owner
	balance, err := centsOf(a.Balance, "balance")
	if err != nil {
		return a, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (owner, name, balance_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.Owner, a.Name, balance, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return a, mapWriteError(err, "account", "create account")
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return a, fmt.Errorf("account id: %w", err)
	}
	return a, nil
}

func (t *sqlTx) UpdateAccount(ctx context.Context, a core.Account) error {
	balance, err := centsOf(a.Balance, "balance")
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET name = ?, balance_cents = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		a.Name, balance, formatTime(a.UpdatedAt), t.owner, a.ID)
	if err != nil {
		return mapWriteError(err, "account", "update account")
	}
	return expectRow(res, "account", a.ID)
}

func (t *sqlTx) DeleteAccount(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE owner = ? AND id = ?`, t.owner, id)
	if err != nil {
		return mapWriteError(err, "account", "delete account")
	}
	return expectRow(res, "account", id)
}

const categoryColumns = `id, owner, name, created_at`

func scanCategory(s scanner) (core.Category, error) {
	var (
		c         core.Category
		createdAt string
		err       error
	)
	if err = s.Scan(&c.ID, &c.Owner, &c.Name, &createdAt); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, fmt.Errorf("parse created_at: %w", err)
	}
	return c, nil
}

func (t *sqlTx) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner = ? ORDER BY id`, t.owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (t *sqlTx) Category(ctx context.Context, id int64) (core.Category, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner = ? AND id = ?`, t.owner, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.NotFound("category", id)
	}
	if err != nil {
		return c, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (t *sqlTx) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Owner = t.owner
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (owner, name, created_at) VALUES (?, ?, ?)`,
		c.Owner, c.Name, formatTime(c.CreatedAt))
	if err != nil {
		return c, mapWriteError(err, "category", "create category")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return c, fmt.Errorf("category id: %w", err)
	}
	return c, nil
}

func (t *sqlTx) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE categories SET name = ? WHERE owner = ? AND id = ?`, c.Name, t.owner, c.ID)
	if err != nil {
		return mapWriteError(err, "category", "rename category")
	}
	return expectRow(res, "category", c.ID)
}

func (t *sqlTx) DeleteCategory(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE owner = ? AND id = ?`, t.owner, id)
	if err != nil {
		return mapWriteError(err, "category", "delete category")
	}
	return expectRow(res, "category", id)
}

func (t *sqlTx) Allocations(ctx context.Context) ([]core.Allocation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT al.id, al.owner, al.category_id, c.name, al.account_id, a.name,
		       al.amount_cents, al.kind, COALESCE(al.move_id, ''), al.allocated_at
		FROM allocations al
		JOIN categories c ON c.id = al.category_id
		JOIN accounts a ON a.id = al.account_id
		WHERE al.owner = ?
		ORDER BY al.id DESC`, t.owner)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	allocations := []core.Allocation{}
	for rows.Next() {
		var (
			a           core.Allocation
			kind        string
			allocatedAt string
		)
		if err := rows.Scan(&a.ID, &a.Owner, &a.CategoryID, &a.CategoryName, &a.AccountID, &a.AccountName,
			&a.Amount, &kind, &a.MoveID, &allocatedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.Kind = core.AllocationKind(kind)
		if a.AllocatedAt, err = parseTime(allocatedAt); err != nil {
			return nil, fmt.Errorf("parse allocated_at: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (t *sqlTx) InsertAllocation(ctx context.Context, a core.Allocation) (core.Allocation, error) {
	a.Owner = t.owner
	var moveID sql.NullString
	if a.MoveID != "" {
		moveID = sql.NullString{String: a.MoveID, Valid: true}
	}
	amount, err := centsOf(a.Amount, "amount")
	if err != nil {
		return a, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO allocations (owner, category_id, account_id, amount_cents, kind, move_id, allocated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Owner, a.CategoryID, a.AccountID, amount, string(a.Kind), moveID, formatTime(a.AllocatedAt))
	if err != nil {
		return a, mapWriteError(err, "allocation", "create allocation")
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return a, fmt.Errorf("allocation id: %w", err)
	}
	return a, nil
}

const transactionSelect = `
	SELECT t.id, t.owner, t.account_id, a.name, t.category_id, COALESCE(c.name, ''),
	       t.transaction_type, t.amount_cents, t.description, t.date
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tr         core.Transaction
		categoryID sql.NullInt64
		typ, date  string
		err        error
	)
	if err = s.Scan(&tr.ID, &tr.Owner, &tr.AccountID, &tr.AccountName, &categoryID, &tr.CategoryName,
		&typ, &tr.Amount, &tr.Description, &date); err != nil {
		return tr, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		tr.CategoryID = &id
	}
	tr.Type = core.TransactionType(typ)
	if tr.Date, err = core.ParseDate(date); err != nil {
		return tr, fmt.Errorf("parse date: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) Transactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx,
		transactionSelect+` WHERE t.owner = ? ORDER BY t.date DESC, t.id DESC`, t.owner)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, tr)
	}
	return transactions, rows.Err()
}

func (t *sqlTx) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, transactionSelect+` WHERE t.owner = ? AND t.id = ?`, t.owner, id)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tr, core.NotFound("transaction", id)
	}
	if err != nil {
		return tr, fmt.Errorf("get transaction: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr core.Transaction) (core.Transaction, error) {
	tr.Owner = t.owner
	var categoryID sql.NullInt64
	if tr.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *tr.CategoryID, Valid: true}
	}
	amount, err := centsOf(tr.Amount, "amount")
	if err != nil {
		return tr, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (owner, account_id, category_id, transaction_type, amount_cents, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.Owner, tr.AccountID, categoryID, string(tr.Type), amount, tr.Description,
		tr.Date.String(), formatTime(time.Now()))
	if err != nil {
		return tr, mapWriteError(err, "transaction", "create transaction")
	}
	if tr.ID, err = res.LastInsertId(); err != nil {
		return tr, fmt.Errorf("transaction id: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE owner = ? AND id = ?`, t.owner, id)
	if err != nil {
		return mapWriteError(err, "transaction", "delete transaction")
	}
	return expectRow(res, "transaction", id)
}

// centsOf converts an amount for an INTEGER cents column. Amounts that do
// not fit are a validation error on field.
func centsOf(m core.Money, field string) (int64, error) {
	cents, err := m.StoredCents()
	if err != nil {
		return 0, core.FieldError(field, err)
	}
	return cents, nil
}

func expectRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

// mapWriteError turns constraint violations into core errors.
func mapWriteError(err error, entity, op string) error {
	switch {
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE constraint failed"):
		return core.Conflict("name", fmt.Sprintf("%s with this name already exists", entity))
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY constraint failed"):
		return core.Conflict("", fmt.Sprintf("%s is still referenced by other ledger entries", entity))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConstraint(err error, code int, marker string) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == code {
		return true
	}
	return strings.Contains(err.Error(), marker)
}
