package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	AllocationAllocate AllocationKind = "allocate"
	AllocationMoveOut  AllocationKind = "move_out"
	AllocationMoveIn   AllocationKind = "move_in"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

// DateLayout is the wire and storage layout of transaction dates.
const DateLayout = "2006-01-02"

type (
	TransactionType string
	AllocationKind  string

	Date struct {
		time.Time
	}

	Account struct {
		ID        int64     `json:"id"`
		Owner     string    `json:"user"`
		Name      string    `json:"name"`
		Balance   Money     `json:"balance"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	Category struct {
		ID        int64     `json:"id"`
		Owner     string    `json:"user"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Allocation earmarks an amount of an account's money for a category.
	// Move entries come in pairs sharing MoveID.
	Allocation struct {
		ID           int64          `json:"id"`
		Owner        string         `json:"user"`
		CategoryID   int64          `json:"category"`
		CategoryName string         `json:"category_name"`
		AccountID    int64          `json:"account"`
		AccountName  string         `json:"account_name"`
		Amount       Money          `json:"amount"`
		Kind         AllocationKind `json:"kind"`
		MoveID       string         `json:"move_id,omitempty"`
		AllocatedAt  time.Time      `json:"allocated_at"`
	}

	Transaction struct {
		ID           int64           `json:"id"`
		Owner        string          `json:"user"`
		AccountID    int64           `json:"account"`
		AccountName  string          `json:"account_name"`
		CategoryID   *int64          `json:"category"`
		CategoryName string          `json:"category_name,omitempty"`
		Type         TransactionType `json:"transaction_type"`
		Amount       Money           `json:"amount"`
		Description  string          `json:"description"`
		Date         Date            `json:"date"`
	}
)

var (
	ErrInvalidMoney           = errors.New("amount must be a valid decimal number")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrNegativeBalance        = errors.New("balance cannot be negative")
	ErrEmptyName              = errors.New("name is required")
	ErrNameTooLong            = errors.New("name cannot exceed 100 characters")
	ErrDescriptionTooLong     = errors.New("description cannot exceed 500 characters")
	ErrInvalidTransactionType = errors.New("transaction type must be income or expense")
	ErrCategoryRequired       = errors.New("category is required for expenses")
	ErrIncomeWithCategory     = errors.New("income transactions cannot have a category")
	ErrAccountRequired        = errors.New("account is required")
	ErrCategoryMissing        = errors.New("category is required")
	ErrSameCategory           = errors.New("source and target categories must differ")
	ErrExceedsAvailable       = errors.New("amount exceeds available balance")
	ErrInvalidDate            = errors.New("date must be formatted as YYYY-MM-DD")
	ErrNothingToUpdate        = errors.New("no fields to update")
	ErrAmountOutOfRange       = errors.New("amount is too large")
	ErrBalanceOutOfRange      = errors.New("resulting account balance is too large")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewMoveID returns the identifier linking the two entries of a move.
func NewMoveID() string {
	return uuid.NewString()
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

type (
	AccountInput struct {
		Name    string `json:"name"`
		Balance Money  `json:"balance"`
	}

	// AccountUpdate carries the fields of a partial account edit.
	AccountUpdate struct {
		Name    *string `json:"name,omitempty"`
		Balance *Money  `json:"balance,omitempty"`
	}

	CategoryInput struct {
		Name string `json:"name"`
	}

	AllocationInput struct {
		CategoryID int64 `json:"category"`
		AccountID  int64 `json:"account"`
		Amount     Money `json:"amount"`
	}

	MoveInput struct {
		SourceCategoryID int64 `json:"source_category"`
		TargetCategoryID int64 `json:"target_category"`
		AccountID        int64 `json:"account"`
		Amount           Money `json:"amount"`
	}

	TransactionInput struct {
		AccountID   int64           `json:"account"`
		CategoryID  *int64          `json:"category"`
		Type        TransactionType `json:"transaction_type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		Date        *Date           `json:"date,omitempty"`
	}

	// MoveResult is returned by a successful move. Allocation is the entry
	// credited to the target category.
	MoveResult struct {
		Message    string     `json:"message"`
		Allocation Allocation `json:"allocation"`
		Source     Allocation `json:"source_allocation"`
	}
)

// Normalize trims the name in place.
func (in *AccountInput) Normalize() { in.Name = strings.TrimSpace(in.Name) }

func (in AccountInput) Validate() error {
	var fe fieldErrors
	fe.add("name", validateName(in.Name))
	if in.Balance.IsNegative() {
		fe.add("balance", ErrNegativeBalance)
	}
	return fe.err("invalid account")
}

func (in *AccountUpdate) Normalize() {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
}

func (in AccountUpdate) Validate() error {
	var fe fieldErrors
	if in.Name == nil && in.Balance == nil {
		fe.add("non_field_errors", ErrNothingToUpdate)
	}
	if in.Name != nil {
		fe.add("name", validateName(*in.Name))
	}
	if in.Balance != nil && in.Balance.IsNegative() {
		fe.add("balance", ErrNegativeBalance)
	}
	return fe.err("invalid account update")
}

func (in *CategoryInput) Normalize() { in.Name = strings.TrimSpace(in.Name) }

func (in CategoryInput) Validate() error {
	var fe fieldErrors
	fe.add("name", validateName(in.Name))
	return fe.err("invalid category")
}

func (in AllocationInput) Validate() error {
	var fe fieldErrors
	if in.CategoryID <= 0 {
		fe.add("category", ErrCategoryMissing)
	}
	if in.AccountID <= 0 {
		fe.add("account", ErrAccountRequired)
	}
	fe.add("amount", in.Amount.Validate())
	return fe.err("invalid allocation")
}

func (in MoveInput) Validate() error {
	var fe fieldErrors
	if in.SourceCategoryID <= 0 {
		fe.add("source_category", ErrCategoryMissing)
	}
	if in.TargetCategoryID <= 0 {
		fe.add("target_category", ErrCategoryMissing)
	}
	if in.SourceCategoryID > 0 && in.SourceCategoryID == in.TargetCategoryID {
		fe.add("target_category", ErrSameCategory)
	}
	if in.AccountID <= 0 {
		fe.add("account", ErrAccountRequired)
	}
	fe.add("amount", in.Amount.Validate())
	return fe.err("invalid move")
}

func (in *TransactionInput) Normalize() {
	in.Description = strings.TrimSpace(in.Description)
}

func (in TransactionInput) Validate() error {
	var fe fieldErrors
	if in.AccountID <= 0 {
		fe.add("account", ErrAccountRequired)
	}
	switch in.Type {
	case Expense:
		if in.CategoryID == nil || *in.CategoryID <= 0 {
			fe.add("category", ErrCategoryRequired)
		}
	case Income:
		if in.CategoryID != nil {
			fe.add("category", ErrIncomeWithCategory)
		}
	default:
		fe.add("transaction_type", ErrInvalidTransactionType)
	}
	fe.add("amount", in.Amount.Validate())
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		fe.add("description", ErrDescriptionTooLong)
	}
	return fe.err("invalid transaction")
}
