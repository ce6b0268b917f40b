// Package memory is a non-durable Store used by tests and the memory backend.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"zerobudget/internal/core"
	"zerobudget/internal/storage"
)

var errReadOnly = errors.New("memory: write inside View")

type state struct {
	seq          map[string]int64
	accounts     map[int64]core.Account
	categories   map[int64]core.Category
	allocations  map[int64]core.Allocation
	transactions map[int64]core.Transaction
	events       map[string]storage.EventRecord
}

func newState() *state {
	return &state{
		seq:          map[string]int64{},
		accounts:     map[int64]core.Account{},
		categories:   map[int64]core.Category{},
		allocations:  map[int64]core.Allocation{},
		transactions: map[int64]core.Transaction{},
		events:       map[string]storage.EventRecord{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:          maps.Clone(s.seq),
		accounts:     maps.Clone(s.accounts),
		categories:   maps.Clone(s.categories),
		allocations:  maps.Clone(s.allocations),
		transactions: maps.Clone(s.transactions),
		events:       maps.Clone(s.events),
	}
}

// Store keeps the whole ledger in memory. Each Update works on a private
// copy that replaces the current snapshot only when fn succeeds.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *state
}

var (
	_ storage.Store    = (*Store)(nil)
	_ storage.EventLog = (*Store)(nil)
)

func New() *Store {
	return &Store{current: newState()}
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Update(ctx context.Context, owner string, fn func(storage.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.snapshot().clone()
	if err := fn(&memTx{st: next, owner: owner}); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

func (s *Store) View(ctx context.Context, owner string, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{st: s.snapshot(), owner: owner, readOnly: true})
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// RecordEvent implements storage.EventLog
func (s *Store) RecordEvent(ctx context.Context, e storage.EventRecord) (bool, error) {
	written := false
	err := s.Update(ctx, e.Owner, func(tx storage.Tx) error {
		st := tx.(*memTx).st
		if _, ok := st.events[e.ID]; ok {
			return nil
		}
		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now()
		}
		st.events[e.ID] = e
		written = true
		return nil
	})
	return written, err
}

// ListEvents implements storage.EventLog
func (s *Store) ListEvents(_ context.Context, owner string, limit int) ([]storage.EventRecord, error) {
	var out []storage.EventRecord
	for _, e := range s.snapshot().events {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	st       *state
	owner    string
	readOnly bool
}

func (t *memTx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// nextID hands out ids per table, as SQLite's rowids do.
func (t *memTx) nextID(table string) int64 {
	t.st.seq[table]++
	return t.st.seq[table]
}

func sortedByID[T any](m map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (t *memTx) Accounts(context.Context) ([]core.Account, error) {
	return sortedByID(t.st.accounts, func(a core.Account) bool { return a.Owner == t.owner }), nil
}

func (t *memTx) Account(_ context.Context, id int64) (core.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok || a.Owner != t.owner {
		return core.Account{}, core.NotFound("account", id)
	}
	return a, nil
}

func (t *memTx) accountNameTaken(name string, except int64) bool {
	for _, a := range t.st.accounts {
		if a.Owner == t.owner && a.Name == name && a.ID != except {
			return true
		}
	}
	return false
}

func (t *memTx) InsertAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := t.write(); err != nil {
		return a, err
	}
	if t.accountNameTaken(a.Name, 0) {
		return a, core.Conflict("name", "account with this name already exists")
	}
	a.ID = t.nextID("accounts")
	a.Owner = t.owner
	t.st.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) UpdateAccount(ctx context.Context, a core.Account) error {
	if err := t.write(); err != nil {
		return err
	}
	prev, err := t.Account(ctx, a.ID)
	if err != nil {
		return err
	}
	if t.accountNameTaken(a.Name, a.ID) {
		return core.Conflict("name", "account with this name already exists")
	}
	a.Owner = prev.Owner
	a.CreatedAt = prev.CreatedAt
	t.st.accounts[a.ID] = a
	return nil
}

func (t *memTx) DeleteAccount(ctx context.Context, id int64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, err := t.Account(ctx, id); err != nil {
		return err
	}
	for _, al := range t.st.allocations {
		if al.AccountID == id {
			return core.Conflict("", "account is still referenced by other ledger entries")
		}
	}
	for _, tr := range t.st.transactions {
		if tr.AccountID == id {
			return core.Conflict("", "account is still referenced by other ledger entries")
		}
	}
	delete(t.st.accounts, id)
	return nil
}

func (t *memTx) Categories(context.Context) ([]core.Category, error) {
	return sortedByID(t.st.categories, func(c core.Category) bool { return c.Owner == t.owner }), nil
}

func (t *memTx) Category(_ context.Context, id int64) (core.Category, error) {
	c, ok := t.st.categories[id]
	if !ok || c.Owner != t.owner {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (t *memTx) categoryNameTaken(name string, except int64) bool {
	for _, c := range t.st.categories {
		if c.Owner == t.owner && c.Name == name && c.ID != except {
			return true
		}
	}
	return false
}

func (t *memTx) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := t.write(); err != nil {
		return c, err
	}
	if t.categoryNameTaken(c.Name, 0) {
		return c, core.Conflict("name", "category with this name already exists")
	}
	c.ID = t.nextID("categories")
	c.Owner = t.owner
	t.st.categories[c.ID] = c
	return c, nil
}

func (t *memTx) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := t.write(); err != nil {
		return err
	}
	prev, err := t.Category(ctx, c.ID)
	if err != nil {
		return err
	}
	if t.categoryNameTaken(c.Name, c.ID) {
		return core.Conflict("name", "category with this name already exists")
	}
	prev.Name = c.Name
	t.st.categories[c.ID] = prev
	return nil
}

func (t *memTx) DeleteCategory(ctx context.Context, id int64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, err := t.Category(ctx, id); err != nil {
		return err
	}
	for _, al := range t.st.allocations {
		if al.CategoryID == id {
			return core.Conflict("", "category is still referenced by other ledger entries")
		}
	}
	for _, tr := range t.st.transactions {
		if tr.CategoryID != nil && *tr.CategoryID == id {
			return core.Conflict("", "category is still referenced by other ledger entries")
		}
	}
	delete(t.st.categories, id)
	return nil
}

func (t *memTx) Allocations(context.Context) ([]core.Allocation, error) {
	out := sortedByID(t.st.allocations, func(a core.Allocation) bool { return a.Owner == t.owner })
	slices.Reverse(out)
	for i := range out {
		out[i].CategoryName = t.st.categories[out[i].CategoryID].Name
		out[i].AccountName = t.st.accounts[out[i].AccountID].Name
	}
	return out, nil
}

// references checks the foreign keys enforced by the SQLite schema.
func (t *memTx) references(ctx context.Context, accountID int64, categoryID *int64) error {
	if _, err := t.Account(ctx, accountID); err != nil {
		return err
	}
	if categoryID != nil {
		if _, err := t.Category(ctx, *categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) InsertAllocation(ctx context.Context, a core.Allocation) (core.Allocation, error) {
	if err := t.write(); err != nil {
		return a, err
	}
	if err := t.references(ctx, a.AccountID, &a.CategoryID); err != nil {
		return a, fmt.Errorf("create allocation: %w", err)
	}
	a.ID = t.nextID("allocations")
	a.Owner = t.owner
	t.st.allocations[a.ID] = a
	return a, nil
}

func (t *memTx) withNames(tr core.Transaction) core.Transaction {
	tr.AccountName = t.st.accounts[tr.AccountID].Name
	if tr.CategoryID != nil {
		tr.CategoryName = t.st.categories[*tr.CategoryID].Name
	}
	return tr
}

func (t *memTx) Transactions(context.Context) ([]core.Transaction, error) {
	out := sortedByID(t.st.transactions, func(tr core.Transaction) bool { return tr.Owner == t.owner })
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	for i := range out {
		out[i] = t.withNames(out[i])
	}
	return out, nil
}

func (t *memTx) Transaction(_ context.Context, id int64) (core.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok || tr.Owner != t.owner {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return t.withNames(tr), nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr core.Transaction) (core.Transaction, error) {
	if err := t.write(); err != nil {
		return tr, err
	}
	if err := t.references(ctx, tr.AccountID, tr.CategoryID); err != nil {
		return tr, fmt.Errorf("create transaction: %w", err)
	}
	tr.ID = t.nextID("transactions")
	tr.Owner = t.owner
	t.st.transactions[tr.ID] = tr
	return tr, nil
}

func (t *memTx) DeleteTransaction(ctx context.Context, id int64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, err := t.Transaction(ctx, id); err != nil {
		return err
	}
	delete(t.st.transactions, id)
	return nil
}
