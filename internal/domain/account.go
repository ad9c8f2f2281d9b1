// Package domain provides definitions of all ledger entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Column widths of the accounts table, in characters.
const (
	MaxAccountNumberLen = 32
	MaxOwnerNameLen     = 128
)

var (
	// ErrAccountNotFound indicates that the account is absent or inactive.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount indicates that an account with the given number already exists.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrNonZeroBalance indicates that the account cannot be deactivated while it holds funds.
	ErrNonZeroBalance = errors.New("account balance is not zero")
	// ErrInvalidAccountNumber indicates an empty or overlong account number.
	ErrInvalidAccountNumber = errors.New("invalid account number")
	// ErrInvalidOwnerName indicates an empty or overlong owner name.
	ErrInvalidOwnerName = errors.New("invalid owner name")
)

// Account holds the current balance of a single ledger account.
type Account struct {
	ID            int32           `json:"id"`
	AccountNumber string          `json:"account_number"`
	OwnerName     string          `json:"owner_name"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	Active        bool            `json:"active"`
}

// CreateAccountParams is the input data to open an account.
type CreateAccountParams struct {
	AccountNumber  string          `json:"account_number"`
	OwnerName      string          `json:"owner_name"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// AccountStatus describes whether an account row exists and is active.
type AccountStatus int

// Account statuses reported by a locked lookup.
const (
	AccountAbsent AccountStatus = iota
	AccountActive
	AccountInactive
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountInactive:
		return "inactive"
	default:
		return "absent"
	}
}
