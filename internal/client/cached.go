package client

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"zerobudget/internal/cache"
	"zerobudget/internal/core"
	"zerobudget/internal/metrics"
)

// Cache keys of the read models.
const (
	keyAccounts     = "accounts"
	keyCategories   = "categories"
	keyBalances     = "balances"
	keyAllocations  = "allocations"
	keyTransactions = "transactions"
	keySummary      = "summary"
)

// Which read models each kind of write makes stale.
var (
	accountWrites     = []string{keyAccounts, keySummary}
	categoryWrites    = []string{keyCategories, keyBalances, keySummary}
	allocationWrites  = []string{keyAllocations, keyBalances, keySummary}
	transactionWrites = []string{keyTransactions, keyAccounts, keyBalances, keySummary}
)

// Cached serves reads from a local cache and drops the affected entries
// after every successful write. Concurrent loads of the same key share a
// single request.
type Cached struct {
	api   API
	cache cache.Cache[any]
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

var _ API = (*Cached)(nil)

type CachedOption func(*Cached)

// WithCache replaces the default in-process LRU.
func WithCache(c cache.Cache[any]) CachedOption {
	return func(cc *Cached) { cc.cache = c }
}

func NewCached(api API, opts ...CachedOption) *Cached {
	c := &Cached{
		api:         api,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.NewLRUCache[any](32, 5*time.Minute,
			cache.WithObserver(cache.ObserverFunc(metrics.ObserveCache)))
	}
	return c
}

func (c *Cached) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

// Invalidate drops the given read models. A load already in flight for one
// of them will not repopulate the cache.
func (c *Cached) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.generations[key]++
		c.cache.Delete(key)
	}
}

// InvalidateAll drops every cached read model.
func (c *Cached) InvalidateAll() {
	c.Invalidate(keyAccounts, keyCategories, keyBalances, keyAllocations, keyTransactions, keySummary)
}

func (c *Cached) storeIfCurrent(key string, gen uint64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] == gen {
		c.cache.Set(key, v)
	}
}

// load returns the cached value for key or fetches it once for all
// concurrent callers of the same generation.
func load[T any](ctx context.Context, c *Cached, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.generation(key)
	v, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, gen, fresh)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// after invalidates keys once a write has succeeded, or when a transport
// failure leaves its outcome unknown.
func (c *Cached) after(err error, keys []string) error {
	if err == nil || IsTransport(err) {
		c.Invalidate(keys...)
	}
	return err
}

func (c *Cached) ListAccounts(ctx context.Context) ([]core.Account, error) {
	v, err := load(ctx, c, keyAccounts, c.api.ListAccounts)
	return slices.Clone(v), err
}

// GetAccount always goes to the server.
func (c *Cached) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return c.api.GetAccount(ctx, id)
}

func (c *Cached) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	acc, err := c.api.CreateAccount(ctx, in)
	return acc, c.after(err, accountWrites)
}

func (c *Cached) UpdateAccount(ctx context.Context, id int64, in core.AccountUpdate) (core.Account, error) {
	acc, err := c.api.UpdateAccount(ctx, id, in)
	// Account names are denormalized into allocations and transactions.
	return acc, c.after(err, append(slices.Clone(accountWrites), keyAllocations, keyTransactions))
}

func (c *Cached) DeleteAccount(ctx context.Context, id int64) error {
	return c.after(c.api.DeleteAccount(ctx, id), accountWrites)
}

func (c *Cached) ListCategories(ctx context.Context) ([]core.Category, error) {
	v, err := load(ctx, c, keyCategories, c.api.ListCategories)
	return slices.Clone(v), err
}

func (c *Cached) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	cat, err := c.api.CreateCategory(ctx, in)
	return cat, c.after(err, categoryWrites)
}

func (c *Cached) RenameCategory(ctx context.Context, id int64, in core.CategoryInput) (core.Category, error) {
	cat, err := c.api.RenameCategory(ctx, id, in)
	// Names are denormalized into allocations and transactions.
	return cat, c.after(err, append(slices.Clone(categoryWrites), keyAllocations, keyTransactions))
}

func (c *Cached) DeleteCategory(ctx context.Context, id int64) error {
	return c.after(c.api.DeleteCategory(ctx, id), categoryWrites)
}

func (c *Cached) CategoryBalances(ctx context.Context) ([]core.CategoryBalance, error) {
	v, err := load(ctx, c, keyBalances, c.api.CategoryBalances)
	return slices.Clone(v), err
}

func (c *Cached) ListAllocations(ctx context.Context) ([]core.Allocation, error) {
	v, err := load(ctx, c, keyAllocations, c.api.ListAllocations)
	return slices.Clone(v), err
}

func (c *Cached) Allocate(ctx context.Context, in core.AllocationInput) (core.Allocation, error) {
	alloc, err := c.api.Allocate(ctx, in)
	return alloc, c.after(err, allocationWrites)
}

func (c *Cached) MoveMoney(ctx context.Context, in core.MoveInput) (core.MoveResult, error) {
	res, err := c.api.MoveMoney(ctx, in)
	return res, c.after(err, allocationWrites)
}

func (c *Cached) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	v, err := load(ctx, c, keyTransactions, c.api.ListTransactions)
	return slices.Clone(v), err
}

func (c *Cached) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	tr, err := c.api.CreateTransaction(ctx, in)
	return tr, c.after(err, transactionWrites)
}

func (c *Cached) DeleteTransaction(ctx context.Context, id int64) error {
	return c.after(c.api.DeleteTransaction(ctx, id), transactionWrites)
}

func (c *Cached) Summary(ctx context.Context) (core.Summary, error) {
	s, err := load(ctx, c, keySummary, c.api.Summary)
	s.Categories = slices.Clone(s.Categories)
	return s, err
}
