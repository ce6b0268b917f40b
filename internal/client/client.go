// Package client talks to the ledger REST API.
//
// Every error it returns is a *core.Error: validation, not_found and
// conflict responses are decoded from the server's error body, and anything
// that prevented a usable answer (network failure, 5xx, garbled payload) is
// reported as a transport error. Requests are never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zerobudget/internal/core"
	"zerobudget/internal/log"
)

// OwnerHeader must match the server's owner header.
const OwnerHeader = "X-Ledger-Owner"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// API is the full set of ledger calls. Both Client and Cached implement it.
type API interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error)
	UpdateAccount(ctx context.Context, id int64, in core.AccountUpdate) (core.Account, error)
	DeleteAccount(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error)
	RenameCategory(ctx context.Context, id int64, in core.CategoryInput) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CategoryBalances(ctx context.Context) ([]core.CategoryBalance, error)

	ListAllocations(ctx context.Context) ([]core.Allocation, error)
	Allocate(ctx context.Context, in core.AllocationInput) (core.Allocation, error)
	MoveMoney(ctx context.Context, in core.MoveInput) (core.MoveResult, error)

	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	Summary(ctx context.Context) (core.Summary, error)
}

// Client is a thin JSON client for one ledger owner.
type Client struct {
	baseURL    string
	owner      string
	httpClient *http.Client
	logger     *log.Logger
}

var _ API = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentClient) }
}

// New returns a client for the API rooted at baseURL, acting for owner.
func New(baseURL, owner string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", baseURL)
	}

	c := &Client{
		baseURL:    u.String(),
		owner:      owner,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.New(log.Config{Component: log.ComponentClient, Output: io.Discard}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends one request. in, when non-nil, is sent as the JSON body; out,
// when non-nil, receives the decoded success body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return core.Validation("encode request: "+err.Error(), nil)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return core.Transport(fmt.Errorf("build %s %s: %w", method, path, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set(OwnerHeader, c.owner)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Transport(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Ledger API call",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.Transport(fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

// decodeError turns an error response into a *core.Error. Only the kinds a
// caller can act on are passed through; everything else is a transport
// failure.
func decodeError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr core.Error
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		switch apiErr.Kind {
		case core.KindValidation, core.KindNotFound, core.KindConflict:
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
			return &apiErr
		}
	}

	return core.Transport(fmt.Errorf("%s %s: unexpected status %d: %s",
		method, path, resp.StatusCode, strings.TrimSpace(string(raw))))
}

// IsTransport reports whether err means the server could not be reached or
// did not answer usefully.
func IsTransport(err error) bool {
	return errors.Is(err, core.ErrTransport)
}

func itemPath(collection string, id int64) string {
	return collection + "/" + strconv.FormatInt(id, 10)
}

const (
	accountsPath     = "/api/accounts"
	categoriesPath   = "/api/categories"
	balancesPath     = "/api/categories/balances"
	allocationsPath  = "/api/allocations"
	movePath         = "/api/allocations/move"
	transactionsPath = "/api/transactions"
	summaryPath      = "/api/summary"
)

func (c *Client) ListAccounts(ctx context.Context) ([]core.Account, error) {
	var out []core.Account
	err := c.do(ctx, http.MethodGet, accountsPath, nil, &out)
	return out, err
}

func (c *Client) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var out core.Account
	err := c.do(ctx, http.MethodGet, itemPath(accountsPath, id), nil, &out)
	return out, err
}

func (c *Client) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	var out core.Account
	err := c.do(ctx, http.MethodPost, accountsPath, in, &out)
	return out, err
}

func (c *Client) UpdateAccount(ctx context.Context, id int64, in core.AccountUpdate) (core.Account, error) {
	var out core.Account
	err := c.do(ctx, http.MethodPatch, itemPath(accountsPath, id), in, &out)
	return out, err
}

func (c *Client) DeleteAccount(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath(accountsPath, id), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, http.MethodGet, categoriesPath, nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, http.MethodPost, categoriesPath, in, &out)
	return out, err
}

func (c *Client) RenameCategory(ctx context.Context, id int64, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, http.MethodPatch, itemPath(categoriesPath, id), in, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath(categoriesPath, id), nil, nil)
}

func (c *Client) CategoryBalances(ctx context.Context) ([]core.CategoryBalance, error) {
	var out []core.CategoryBalance
	err := c.do(ctx, http.MethodGet, balancesPath, nil, &out)
	return out, err
}

func (c *Client) ListAllocations(ctx context.Context) ([]core.Allocation, error) {
	var out []core.Allocation
	err := c.do(ctx, http.MethodGet, allocationsPath, nil, &out)
	return out, err
}

func (c *Client) Allocate(ctx context.Context, in core.AllocationInput) (core.Allocation, error) {
	var out core.Allocation
	err := c.do(ctx, http.MethodPost, allocationsPath, in, &out)
	return out, err
}

func (c *Client) MoveMoney(ctx context.Context, in core.MoveInput) (core.MoveResult, error) {
	var out core.MoveResult
	err := c.do(ctx, http.MethodPost, movePath, in, &out)
	return out, err
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	err := c.do(ctx, http.MethodGet, transactionsPath, nil, &out)
	return out, err
}

func (c *Client) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	var out core.Transaction
	err := c.do(ctx, http.MethodPost, transactionsPath, in, &out)
	return out, err
}

func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath(transactionsPath, id), nil, nil)
}

func (c *Client) Summary(ctx context.Context) (core.Summary, error) {
	var out core.Summary
	err := c.do(ctx, http.MethodGet, summaryPath, nil, &out)
	return out, err
}
