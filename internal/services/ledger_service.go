package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"zerobudget/internal/amqp"
	"zerobudget/internal/cache"
	"zerobudget/internal/core"
	"zerobudget/internal/ledger"
	"zerobudget/internal/log"
	"zerobudget/internal/metrics"
	"zerobudget/internal/storage"
)

// EventPublisher is the outbound side of the ledger event stream.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, e amqp.LedgerEvent) error
}

// LedgerService applies the budgeting rules on top of a Store. Every
// mutating call runs in one store transaction, invalidates the owner's
// cached summary and then announces the change.
type LedgerService struct {
	store                  storage.Store
	summaries              cache.Cache[core.Summary]
	publisher              EventPublisher
	logger                 *log.Logger
	now                    func() time.Time
	enforceAllocationLimit bool
	locks                  ownerLocks
}

type Option func(*LedgerService)

func WithSummaryCache(c cache.Cache[core.Summary]) Option {
	return func(s *LedgerService) { s.summaries = c }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l.WithComponent(log.ComponentLedger) }
}

// WithAllocationLimit toggles rejecting allocations above the money
// available to budget. It is on by default.
func WithAllocationLimit(enforce bool) Option {
	return func(s *LedgerService) { s.enforceAllocationLimit = enforce }
}

func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:                  store,
		now:                    time.Now,
		enforceAllocationLimit: true,
		logger:                 log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentLedger}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ownerLocks serializes writers per owner inside this process.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		l.locks[owner] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func summaryKey(owner string) string { return "summary:" + owner }

func (s *LedgerService) timestamp() time.Time { return s.now().UTC() }

// mutate runs fn as one atomic write for owner and, on success, drops the
// cached summary and publishes the event fn produced.
func (s *LedgerService) mutate(ctx context.Context, op, owner string, fn func(tx storage.Tx) (*amqp.LedgerEvent, error)) (err error) {
	defer func() { s.observe(ctx, op, owner, err) }()

	unlock := s.locks.lock(owner)
	defer unlock()

	var event *amqp.LedgerEvent
	err = s.store.Update(ctx, owner, func(tx storage.Tx) error {
		var err error
		event, err = fn(tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.summaries != nil {
		s.summaries.Delete(summaryKey(owner))
	}
	if event != nil {
		s.publish(ctx, *event)
	}
	return nil
}

func (s *LedgerService) observe(ctx context.Context, op, owner string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(core.KindOf(err))
		if outcome == "" {
			outcome = "internal"
			s.logger.ErrorContext(ctx, "Ledger operation failed",
				log.FieldOperation, op, log.FieldOwner, owner, log.FieldError, err)
		}
	}
	metrics.LedgerOperations.WithLabelValues(op, outcome).Inc()
}

func (s *LedgerService) publish(ctx context.Context, e amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, e); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventID, e.ID, log.FieldEventType, e.Type, log.FieldOwner, e.Owner, log.FieldError, err)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

func newEvent(typ amqp.EventType, owner string, id int64, amount core.Money) *amqp.LedgerEvent {
	e := amqp.NewLedgerEvent(typ, owner, id, amount)
	return &e
}

func (s *LedgerService) view(ctx context.Context, op, owner string, fn func(tx storage.Tx) error) (err error) {
	defer func() { s.observe(ctx, op, owner, err) }()
	if err = s.store.View(ctx, owner, fn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ─── Accounts ───────────────────────────────────────────────────────────────

// CreateAccount opens an account with a non-negative starting balance.
func (s *LedgerService) CreateAccount(ctx context.Context, owner string, in core.AccountInput) (core.Account, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.observe(ctx, "create_account", owner, err)
		return core.Account{}, err
	}

	var acc core.Account
	err := s.mutate(ctx, "create_account", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		now := s.timestamp()
		var err error
		acc, err = tx.InsertAccount(ctx, core.Account{Name: in.Name, Balance: in.Balance, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return nil, err
		}
		return newEvent(amqp.AccountCreated, owner, acc.ID, acc.Balance), nil
	})
	if err != nil {
		return core.Account{}, err
	}

	s.logger.InfoContext(ctx, "Account created",
		log.NewFields().WithLedgerEntity(owner, acc.ID, acc.Balance.String()).ToSlice()...)
	return acc, nil
}

// UpdateAccount renames an account or sets its balance explicitly.
func (s *LedgerService) UpdateAccount(ctx context.Context, owner string, id int64, in core.AccountUpdate) (core.Account, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.observe(ctx, "update_account", owner, err)
		return core.Account{}, err
	}

	var acc core.Account
	err := s.mutate(ctx, "update_account", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		var err error
		if acc, err = tx.Account(ctx, id); err != nil {
			return nil, err
		}
		if in.Name != nil {
			acc.Name = *in.Name
		}
		if in.Balance != nil {
			acc.Balance = *in.Balance
		}
		acc.UpdatedAt = s.timestamp()
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return nil, err
		}
		return newEvent(amqp.AccountUpdated, owner, acc.ID, acc.Balance), nil
	})
	if err != nil {
		return core.Account{}, err
	}
	return acc, nil
}

// DeleteAccount removes an account that no allocation or transaction uses.
func (s *LedgerService) DeleteAccount(ctx context.Context, owner string, id int64) error {
	return s.mutate(ctx, "delete_account", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		if err := tx.DeleteAccount(ctx, id); err != nil {
			return nil, err
		}
		return newEvent(amqp.AccountDeleted, owner, id, core.Zero), nil
	})
}

func (s *LedgerService) ListAccounts(ctx context.Context, owner string) ([]core.Account, error) {
	var accounts []core.Account
	err := s.view(ctx, "list_accounts", owner, func(tx storage.Tx) error {
		var err error
		accounts, err = tx.Accounts(ctx)
		return err
	})
	return accounts, err
}

func (s *LedgerService) GetAccount(ctx context.Context, owner string, id int64) (core.Account, error) {
	var acc core.Account
	err := s.view(ctx, "get_account", owner, func(tx storage.Tx) error {
		var err error
		acc, err = tx.Account(ctx, id)
		return err
	})
	return acc, err
}

// ─── Categories ─────────────────────────────────────────────────────────────

func (s *LedgerService) CreateCategory(ctx context.Context, owner string, in core.CategoryInput) (core.Category, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.observe(ctx, "create_category", owner, err)
		return core.Category{}, err
	}

	var cat core.Category
	err := s.mutate(ctx, "create_category", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		var err error
		cat, err = tx.InsertCategory(ctx, core.Category{Name: in.Name, CreatedAt: s.timestamp()})
		if err != nil {
			return nil, err
		}
		return newEvent(amqp.CategoryCreated, owner, cat.ID, core.Zero), nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return cat, nil
}

func (s *LedgerService) RenameCategory(ctx context.Context, owner string, id int64, in core.CategoryInput) (core.Category, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.observe(ctx, "rename_category", owner, err)
		return core.Category{}, err
	}

	var cat core.Category
	err := s.mutate(ctx, "rename_category", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		var err error
		if cat, err = tx.Category(ctx, id); err != nil {
			return nil, err
		}
		cat.Name = in.Name
		if err := tx.UpdateCategory(ctx, cat); err != nil {
			return nil, err
		}
		return newEvent(amqp.CategoryRenamed, owner, cat.ID, core.Zero), nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return cat, nil
}

// DeleteCategory removes a category. Categories that still carry
// allocations or expenses cannot be deleted.
func (s *LedgerService) DeleteCategory(ctx context.Context, owner string, id int64) error {
	return s.mutate(ctx, "delete_category", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		if err := tx.DeleteCategory(ctx, id); err != nil {
			return nil, err
		}
		return newEvent(amqp.CategoryDeleted, owner, id, core.Zero), nil
	})
}

func (s *LedgerService) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	var categories []core.Category
	err := s.view(ctx, "list_categories", owner, func(tx storage.Tx) error {
		var err error
		categories, err = tx.Categories(ctx)
		return err
	})
	return categories, err
}

// ─── Allocations ────────────────────────────────────────────────────────────

type snapshot struct {
	accounts     []core.Account
	categories   []core.Category
	allocations  []core.Allocation
	transactions []core.Transaction
}

func loadSnapshot(ctx context.Context, tx storage.Tx) (snapshot, error) {
	var (
		snap snapshot
		err  error
	)
	if snap.accounts, err = tx.Accounts(ctx); err != nil {
		return snap, err
	}
	if snap.categories, err = tx.Categories(ctx); err != nil {
		return snap, err
	}
	if snap.allocations, err = tx.Allocations(ctx); err != nil {
		return snap, err
	}
	if snap.transactions, err = tx.Transactions(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (snap snapshot) summary() core.Summary {
	return ledger.Summarize(snap.accounts, snap.categories, snap.allocations, snap.transactions)
}

// Allocate assigns unbudgeted money from an account to a category.
func (s *LedgerService) Allocate(ctx context.Context, owner string, in core.AllocationInput) (core.Allocation, error) {
	if err := in.Validate(); err != nil {
		s.observe(ctx, "allocate", owner, err)
		return core.Allocation{}, err
	}

	var alloc core.Allocation
	err := s.mutate(ctx, "allocate", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		acc, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		cat, err := tx.Category(ctx, in.CategoryID)
		if err != nil {
			return nil, err
		}
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := ledger.CheckAllocation(in, snap.summary().AvailableToBudget, s.enforceAllocationLimit); err != nil {
			return nil, err
		}

		if alloc, err = tx.InsertAllocation(ctx, ledger.NewAllocation(in, s.timestamp())); err != nil {
			return nil, err
		}
		alloc.CategoryName, alloc.AccountName = cat.Name, acc.Name
		return newEvent(amqp.AllocationCreated, owner, alloc.ID, alloc.Amount), nil
	})
	if err != nil {
		return core.Allocation{}, err
	}

	s.logger.InfoContext(ctx, "Funds allocated",
		log.NewFields().WithLedgerEntity(owner, alloc.ID, alloc.Amount.String()).ToSlice()...)
	return alloc, nil
}

// MoveMoney shifts allocated money from one category to another. Both
// entries are written together or not at all.
func (s *LedgerService) MoveMoney(ctx context.Context, owner string, in core.MoveInput) (core.MoveResult, error) {
	if err := in.Validate(); err != nil {
		s.observe(ctx, "move_money", owner, err)
		return core.MoveResult{}, err
	}

	var result core.MoveResult
	err := s.mutate(ctx, "move_money", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		acc, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		source, err := tx.Category(ctx, in.SourceCategoryID)
		if err != nil {
			return nil, err
		}
		target, err := tx.Category(ctx, in.TargetCategoryID)
		if err != nil {
			return nil, err
		}
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return nil, err
		}
		balance := ledger.ComputeBalance(source.ID, snap.allocations, snap.transactions)
		if err := ledger.CheckMove(in, balance); err != nil {
			return nil, err
		}

		out, into := ledger.MoveEntries(in, core.NewMoveID(), s.timestamp())
		if result.Source, err = tx.InsertAllocation(ctx, out); err != nil {
			return nil, err
		}
		if result.Allocation, err = tx.InsertAllocation(ctx, into); err != nil {
			return nil, err
		}
		result.Source.CategoryName, result.Source.AccountName = source.Name, acc.Name
		result.Allocation.CategoryName, result.Allocation.AccountName = target.Name, acc.Name
		result.Message = fmt.Sprintf("Moved %s from %s to %s", in.Amount, source.Name, target.Name)
		return newEvent(amqp.AllocationMoved, owner, result.Allocation.ID, in.Amount), nil
	})
	if err != nil {
		return core.MoveResult{}, err
	}
	return result, nil
}

func (s *LedgerService) ListAllocations(ctx context.Context, owner string) ([]core.Allocation, error) {
	var allocations []core.Allocation
	err := s.view(ctx, "list_allocations", owner, func(tx storage.Tx) error {
		var err error
		allocations, err = tx.Allocations(ctx)
		return err
	})
	return allocations, err
}

// ─── Transactions ───────────────────────────────────────────────────────────

// CreateTransaction records income or an expense and applies it to the
// account balance. Overdrafts are allowed.
func (s *LedgerService) CreateTransaction(ctx context.Context, owner string, in core.TransactionInput) (core.Transaction, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.observe(ctx, "create_transaction", owner, err)
		return core.Transaction{}, err
	}

	var tr core.Transaction
	err := s.mutate(ctx, "create_transaction", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		acc, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		var categoryName string
		if in.CategoryID != nil {
			cat, err := tx.Category(ctx, *in.CategoryID)
			if err != nil {
				return nil, err
			}
			categoryName = cat.Name
		}

		date := core.NewDate(s.timestamp())
		if in.Date != nil && !in.Date.IsZero() {
			date = *in.Date
		}
		tr, err = tx.InsertTransaction(ctx, core.Transaction{
			AccountID:   in.AccountID,
			CategoryID:  in.CategoryID,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: in.Description,
			Date:        date,
		})
		if err != nil {
			return nil, err
		}

		if acc.Balance, err = ledger.ApplyTransactionEffect(acc.Balance, tr.Type, tr.Amount); err != nil {
			return nil, err
		}
		acc.UpdatedAt = s.timestamp()
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return nil, err
		}
		tr.AccountName, tr.CategoryName = acc.Name, categoryName
		return newEvent(amqp.TransactionCreated, owner, tr.ID, tr.Amount), nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction recorded",
		log.NewFields().WithLedgerEntity(owner, tr.ID, tr.Amount.String()).ToSlice()...)
	return tr, nil
}

// DeleteTransaction removes a transaction and reverses its account effect.
func (s *LedgerService) DeleteTransaction(ctx context.Context, owner string, id int64) error {
	return s.mutate(ctx, "delete_transaction", owner, func(tx storage.Tx) (*amqp.LedgerEvent, error) {
		tr, err := tx.Transaction(ctx, id)
		if err != nil {
			return nil, err
		}
		acc, err := tx.Account(ctx, tr.AccountID)
		if err != nil {
			return nil, err
		}
		if acc.Balance, err = ledger.ReverseTransactionEffect(acc.Balance, tr.Type, tr.Amount); err != nil {
			return nil, err
		}
		acc.UpdatedAt = s.timestamp()
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return nil, err
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return nil, err
		}
		return newEvent(amqp.TransactionDeleted, owner, id, tr.Amount), nil
	})
}

func (s *LedgerService) ListTransactions(ctx context.Context, owner string) ([]core.Transaction, error) {
	var transactions []core.Transaction
	err := s.view(ctx, "list_transactions", owner, func(tx storage.Tx) error {
		var err error
		transactions, err = tx.Transactions(ctx)
		return err
	})
	return transactions, err
}

// ─── Aggregates ─────────────────────────────────────────────────────────────

// Summary returns the owner's totals and category balances, served from
// the cache until the next mutation.
func (s *LedgerService) Summary(ctx context.Context, owner string) (core.Summary, error) {
	if cached, ok := s.cachedSummary(owner); ok {
		return cached, nil
	}

	// Loading under the owner lock keeps a concurrent write from landing
	// between the read and the cache fill.
	unlock := s.locks.lock(owner)
	defer unlock()
	if cached, ok := s.cachedSummary(owner); ok {
		return cached, nil
	}

	var summary core.Summary
	err := s.view(ctx, "summary", owner, func(tx storage.Tx) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		summary = snap.summary()
		return nil
	})
	if err != nil {
		return core.Summary{}, err
	}

	if s.summaries != nil {
		s.summaries.Set(summaryKey(owner), summary)
	}
	summary.Categories = slices.Clone(summary.Categories)
	return summary, nil
}

func (s *LedgerService) cachedSummary(owner string) (core.Summary, bool) {
	if s.summaries == nil {
		return core.Summary{}, false
	}
	cached, ok := s.summaries.Get(summaryKey(owner))
	if !ok {
		return core.Summary{}, false
	}
	cached.Categories = slices.Clone(cached.Categories)
	return cached, true
}

func (s *LedgerService) CategoryBalances(ctx context.Context, owner string) ([]core.CategoryBalance, error) {
	summary, err := s.Summary(ctx, owner)
	if err != nil {
		return nil, err
	}
	return summary.Categories, nil
}

// Ping reports whether the store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
