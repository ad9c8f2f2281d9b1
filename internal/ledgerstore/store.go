// Package ledgerstore defines the contract between the ledger engine and the
// transactional store that holds balances and the transaction log.
package ledgerstore

import (
	"context"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// UnitOfWork is an atomic, isolated sequence of reads and writes.
//
// Locks taken by LookupAccount and LockBalance are held until Commit or
// Rollback. Nothing written through a UnitOfWork is visible to other readers
// before Commit.
//
//go:generate mockgen -source store.go -destination store_mock.go -package ledgerstore
type UnitOfWork interface {
	// LookupAccount locks the account row, if any, and reports its status.
	LookupAccount(ctx context.Context, number string) (domain.AccountStatus, error)
	// LockBalance locks an active account row and returns its balance.
	LockBalance(ctx context.Context, number string) (decimal.Decimal, error)
	WriteBalance(ctx context.Context, number string, balance decimal.Decimal) error
	InsertAccount(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error)
	SetActive(ctx context.Context, number string, active bool) error
	// AppendEntry adds an entry to the transaction log and returns it with
	// the store-assigned ID and timestamp.
	AppendEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error)
	Commit() error
	Rollback() error
}

// Store opens units of work and serves committed read-only projections.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	// GetAccount returns the active account with the given number.
	GetAccount(ctx context.Context, number string) (domain.Account, error)
	// ListAccounts returns active accounts ordered by account number.
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	// ListEntries returns entries newest first.
	ListEntries(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error)
}
