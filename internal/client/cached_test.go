package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerobudget/internal/core"
)

// countingAPI answers the calls the tests need and counts reads.
type countingAPI struct {
	API

	accountReads     atomic.Int32
	summaryReads     atomic.Int32
	transactionReads atomic.Int32
	release      chan struct{}
	started      chan struct{}
	createErr    error

	mu       sync.Mutex
	accounts []core.Account
}

func (f *countingAPI) ListAccounts(context.Context) ([]core.Account, error) {
	f.accountReads.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Account(nil), f.accounts...), nil
}

func (f *countingAPI) CreateAccount(_ context.Context, in core.AccountInput) (core.Account, error) {
	if f.createErr != nil {
		return core.Account{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := core.Account{ID: int64(len(f.accounts) + 1), Name: in.Name, Balance: in.Balance}
	f.accounts = append(f.accounts, acc)
	return acc, nil
}

func (f *countingAPI) UpdateAccount(_ context.Context, id int64, in core.AccountUpdate) (core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == id && in.Name != nil {
			f.accounts[i].Name = *in.Name
			return f.accounts[i], nil
		}
	}
	return core.Account{}, core.NotFound("account", id)
}

// ListTransactions resolves account names at read time like the server.
func (f *countingAPI) ListTransactions(context.Context) ([]core.Transaction, error) {
	f.transactionReads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Transaction, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, core.Transaction{ID: a.ID, AccountID: a.ID, AccountName: a.Name})
	}
	return out, nil
}

func (f *countingAPI) Summary(context.Context) (core.Summary, error) {
	f.summaryReads.Add(1)
	return core.Summary{Categories: []core.CategoryBalance{{CategoryID: 1, CategoryName: "Rent"}}}, nil
}

func (f *countingAPI) Allocate(context.Context, core.AllocationInput) (core.Allocation, error) {
	return core.Allocation{ID: 1}, nil
}

func TestCached_ServesReadsFromCache(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{}
	c := NewCached(api)

	_, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	_, err = c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.accountReads.Load())
}

func TestCached_WriteInvalidatesAffectedKeys(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{}
	c := NewCached(api)

	_, _ = c.ListAccounts(ctx)
	_, _ = c.Summary(ctx)

	_, err := c.CreateAccount(ctx, core.AccountInput{Name: "Checking"})
	require.NoError(t, err)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int32(2), api.accountReads.Load())

	_, _ = c.Summary(ctx)
	assert.Equal(t, int32(2), api.summaryReads.Load(), "account writes change available to budget")

	// An allocation leaves the account list alone.
	_, err = c.Allocate(ctx, core.AllocationInput{})
	require.NoError(t, err)
	_, _ = c.ListAccounts(ctx)
	assert.Equal(t, int32(2), api.accountReads.Load())
	_, _ = c.Summary(ctx)
	assert.Equal(t, int32(3), api.summaryReads.Load())

	// Renaming an account changes the names carried by transactions.
	txs, err := c.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Checking", txs[0].AccountName)

	name := "Main"
	_, err = c.UpdateAccount(ctx, 1, core.AccountUpdate{Name: &name})
	require.NoError(t, err)

	txs, err = c.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Main", txs[0].AccountName)
	assert.Equal(t, int32(2), api.transactionReads.Load())
}

func TestCached_RejectedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{createErr: core.Validation("invalid account", map[string]string{"name": "name is required"})}
	c := NewCached(api)

	_, _ = c.ListAccounts(ctx)
	_, err := c.CreateAccount(ctx, core.AccountInput{})
	require.ErrorIs(t, err, core.ErrValidation)

	_, _ = c.ListAccounts(ctx)
	assert.Equal(t, int32(1), api.accountReads.Load())
}

func TestCached_TransportFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{createErr: core.Transport(errors.New("connection reset"))}
	c := NewCached(api)

	_, _ = c.ListAccounts(ctx)
	_, err := c.CreateAccount(ctx, core.AccountInput{Name: "Checking"})
	require.True(t, IsTransport(err))

	_, _ = c.ListAccounts(ctx)
	assert.Equal(t, int32(2), api.accountReads.Load())
}

func TestCached_ConcurrentLoadsShareOneRequest(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCached(api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.ListAccounts(ctx)
	}()
	<-api.started

	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.ListAccounts(ctx)
		}()
	}
	// Give the followers time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(api.release)
	wg.Wait()

	assert.Equal(t, int32(1), api.accountReads.Load())
}

func TestCached_InvalidationDuringLoadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	api := &countingAPI{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCached(api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.ListAccounts(ctx)
	}()
	<-api.started
	c.Invalidate(keyAccounts)
	close(api.release)
	<-done

	api.started = nil
	api.release = nil
	_, _ = c.ListAccounts(ctx)
	assert.Equal(t, int32(2), api.accountReads.Load(), "a stale load must not refill the cache")
}

func TestCached_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewCached(&countingAPI{})

	s, err := c.Summary(ctx)
	require.NoError(t, err)
	s.Categories[0].CategoryName = "mutated"

	again, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rent", again.Categories[0].CategoryName)
}
