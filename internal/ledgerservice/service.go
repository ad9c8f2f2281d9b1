// Package ledgerservice manages business logic layer of the ledger.
//
// Every mutating operation runs inside exactly one unit of work. Business
// rejections that must be audited (insufficient funds) are committed together
// with their FAILED entry. Every other failure rolls the unit of work back.
package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds tunables of the ledger service.
type Config struct {
	DefaultListLimit int32
	MaxListLimit     int32
}

// Service facilitates ledger service layer logic.
type Service struct {
	store    ledgerstore.Store
	registry *Registry
	config   Config
}

// New returns ledger service struct to manage ledger business logic.
func New(store ledgerstore.Store, config Config) *Service {
	if config.DefaultListLimit <= 0 {
		config.DefaultListLimit = 50
	}

	if config.MaxListLimit < config.DefaultListLimit {
		config.MaxListLimit = config.DefaultListLimit
	}

	return &Service{
		store:    store,
		registry: NewRegistry(store),
		config:   config,
	}
}

// ledgerErrors is the closed set of errors passed to callers unchanged.
var ledgerErrors = []error{
	domain.ErrInvalidAmount,
	domain.ErrAccountNotFound,
	domain.ErrDuplicateAccount,
	domain.ErrSameAccount,
	domain.ErrInsufficientFunds,
	domain.ErrNonZeroBalance,
	domain.ErrInvalidAccountNumber,
	domain.ErrInvalidOwnerName,
	errorspkg.ErrStoreUnavailable,
}

// storeError maps anything outside the ledger error set to ErrStoreUnavailable.
func storeError(err error) error {
	for _, known := range ledgerErrors {
		if errors.Is(err, known) {
			return known
		}
	}

	return errorspkg.ErrStoreUnavailable
}

// execTx runs fn inside a unit of work.
//
// The unit of work commits when fn succeeds or fails with ErrInsufficientFunds
// and rolls back otherwise.
func (s *Service) execTx(ctx context.Context, fn func(uow ledgerstore.UnitOfWork) error) error {
	l := zerolog.Ctx(ctx)

	uow, err := s.store.Begin(ctx)
	if err != nil {
		l.Error().Err(err).Msg("begin unit of work")
		return errorspkg.ErrStoreUnavailable
	}

	txErr := fn(uow)
	if txErr != nil && !errors.Is(txErr, domain.ErrInsufficientFunds) {
		if err := uow.Rollback(); err != nil {
			l.Error().Err(err).Msg("rollback unit of work")
		}

		return storeError(txErr)
	}

	if err := uow.Commit(); err != nil {
		l.Error().Err(err).Msg("commit unit of work")
		return errorspkg.ErrStoreUnavailable
	}

	return txErr
}

func normalizeNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" || utf8.RuneCountInString(number) > domain.MaxAccountNumberLen {
		return "", domain.ErrInvalidAccountNumber
	}

	return number, nil
}

// lockAccount re-checks the account inside uow and returns its locked balance.
func lockAccount(ctx context.Context, uow ledgerstore.UnitOfWork, number string) (decimal.Decimal, error) {
	ok, err := existsTx(ctx, uow, number)
	if err != nil {
		return decimal.Zero, err
	}

	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}

	return uow.LockBalance(ctx, number)
}

// lockOrder returns the two account numbers in the order their rows must be
// locked. The order depends only on the numbers, never on transfer direction.
func lockOrder(a, b string) (first, second string) {
	if a < b {
		return a, b
	}

	return b, a
}

// CreateAccount opens an account and records its opening balance.
func (s *Service) CreateAccount(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	number, err := normalizeNumber(arg.AccountNumber)
	if err != nil {
		return domain.Account{}, err
	}

	arg.AccountNumber = number
	arg.OwnerName = strings.TrimSpace(arg.OwnerName)

	if arg.OwnerName == "" || utf8.RuneCountInString(arg.OwnerName) > domain.MaxOwnerNameLen {
		return domain.Account{}, domain.ErrInvalidOwnerName
	}

	if !moneypkg.IsNonNegative(arg.InitialBalance) {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	var account domain.Account

	err = s.execTx(ctx, func(uow ledgerstore.UnitOfWork) error {
		status, err := uow.LookupAccount(ctx, number)
		if err != nil {
			return err
		}

		if status != domain.AccountAbsent {
			return domain.ErrDuplicateAccount
		}

		account, err = uow.InsertAccount(ctx, arg)
		if err != nil {
			return err
		}

		if !arg.InitialBalance.IsPositive() {
			return nil
		}

		_, err = uow.AppendEntry(ctx, domain.Entry{
			Type:              domain.EntryDeposit,
			DestAccount:       domain.Ref(number),
			Amount:            arg.InitialBalance,
			BalanceBeforeDest: domain.Balance(decimal.Zero),
			BalanceAfterDest:  domain.Balance(arg.InitialBalance),
			Description:       "initial deposit on account creation",
			Status:            domain.StatusSuccess,
		})

		return err
	})
	if err != nil {
		l.Info().Err(err).Str("account", number).Msg("create account")
		return domain.Account{}, err
	}

	return account, nil
}

// DeactivateAccount logically deletes an account whose balance is zero.
func (s *Service) DeactivateAccount(ctx context.Context, number string) error {
	l := zerolog.Ctx(ctx)

	number, err := normalizeNumber(number)
	if err != nil {
		return err
	}

	err = s.execTx(ctx, func(uow ledgerstore.UnitOfWork) error {
		balance, err := lockAccount(ctx, uow, number)
		if err != nil {
			return err
		}

		if !balance.IsZero() {
			return domain.ErrNonZeroBalance
		}

		return uow.SetActive(ctx, number, false)
	})
	if err != nil {
		l.Info().Err(err).Str("account", number).Msg("deactivate account")
		return err
	}

	return nil
}

// Deposit credits amount to the account.
func (s *Service) Deposit(ctx context.Context, number string, amount decimal.Decimal) (domain.BalanceChange, error) {
	l := zerolog.Ctx(ctx)

	if !moneypkg.IsPositive(amount) {
		return domain.BalanceChange{}, domain.ErrInvalidAmount
	}

	number, err := normalizeNumber(number)
	if err != nil {
		return domain.BalanceChange{}, err
	}

	result := domain.BalanceChange{AccountNumber: number}

	err = s.execTx(ctx, func(uow ledgerstore.UnitOfWork) error {
		balance, err := lockAccount(ctx, uow, number)
		if err != nil {
			return err
		}

		result.OldBalance = balance
		result.NewBalance = balance.Add(amount)
		if !moneypkg.FitsPrecision(result.NewBalance) {
			return domain.ErrInvalidAmount
		}

		if err := uow.WriteBalance(ctx, number, result.NewBalance); err != nil {
			return err
		}

		result.Entry, err = uow.AppendEntry(ctx, domain.Entry{
			Type:              domain.EntryDeposit,
			DestAccount:       domain.Ref(number),
			Amount:            amount,
			BalanceBeforeDest: domain.Balance(result.OldBalance),
			BalanceAfterDest:  domain.Balance(result.NewBalance),
			Description:       "deposit of " + amount.String(),
			Status:            domain.StatusSuccess,
		})

		return err
	})
	if err != nil {
		l.Info().Err(err).Str("account", number).Msg("deposit")
		return domain.BalanceChange{}, err
	}

	return result, nil
}

// Withdraw debits amount from the account.
//
// When the balance is too low the attempt is committed as a FAILED entry and
// ErrInsufficientFunds is returned together with a result carrying that entry.
func (s *Service) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (domain.BalanceChange, error) {
	l := zerolog.Ctx(ctx)

	if !moneypkg.IsPositive(amount) {
		return domain.BalanceChange{}, domain.ErrInvalidAmount
	}

	number, err := normalizeNumber(number)
	if err != nil {
		return domain.BalanceChange{}, err
	}

	result := domain.BalanceChange{AccountNumber: number}

	err = s.execTx(ctx, func(uow ledgerstore.UnitOfWork) error {
		balance, err := lockAccount(ctx, uow, number)
		if err != nil {
			return err
		}

		result.OldBalance = balance

		if balance.LessThan(amount) {
			result.NewBalance = balance

			result.Entry, err = uow.AppendEntry(ctx, domain.Entry{
				Type:                domain.EntryWithdraw,
				SourceAccount:       domain.Ref(number),
				Amount:              amount,
				BalanceBeforeSource: domain.Balance(balance),
				BalanceAfterSource:  domain.Balance(balance),
				Description:         "attempted withdrawal of " + amount.String(),
				Status:              domain.StatusFailed,
				FailureReason:       domain.FailureInsufficientFunds,
			})
			if err != nil {
				return err
			}

			return domain.ErrInsufficientFunds
		}

		result.NewBalance = balance.Sub(amount)

		if err := uow.WriteBalance(ctx, number, result.NewBalance); err != nil {
			return err
		}

		result.Entry, err = uow.AppendEntry(ctx, domain.Entry{
			Type:                domain.EntryWithdraw,
			SourceAccount:       domain.Ref(number),
			Amount:              amount,
			BalanceBeforeSource: domain.Balance(result.OldBalance),
			BalanceAfterSource:  domain.Balance(result.NewBalance),
			Description:         "withdrawal of " + amount.String(),
			Status:              domain.StatusSuccess,
		})

		return err
	})

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		l.Info().Err(err).Str("account", number).Msg("withdraw")
		return result, err
	case err != nil:
		l.Info().Err(err).Str("account", number).Msg("withdraw")
		return domain.BalanceChange{}, err
	}

	return result, nil
}

// Transfer moves amount from source to dest.
//
// Both rows are locked in lockOrder, so two transfers between the same pair
// of accounts never wait on each other in a cycle. When the source balance is
// too low the attempt is committed as a FAILED entry and ErrInsufficientFunds
// is returned together with a result carrying that entry.
func (s *Service) Transfer(ctx context.Context, source, dest string, amount decimal.Decimal) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	if !moneypkg.IsPositive(amount) {
		return domain.TransferResult{}, domain.ErrInvalidAmount
	}

	source, err := normalizeNumber(source)
	if err != nil {
		return domain.TransferResult{}, err
	}

	dest, err = normalizeNumber(dest)
	if err != nil {
		return domain.TransferResult{}, err
	}

	if source == dest {
		return domain.TransferResult{}, domain.ErrSameAccount
	}

	result := domain.TransferResult{SourceAccount: source, DestAccount: dest}

	err = s.execTx(ctx, func(uow ledgerstore.UnitOfWork) error {
		first, second := lockOrder(source, dest)

		balances := make(map[string]decimal.Decimal, 2)
		for _, number := range []string{first, second} {
			balance, err := lockAccount(ctx, uow, number)
			if err != nil {
				return err
			}

			balances[number] = balance
		}

		sourceBefore, destBefore := balances[source], balances[dest]

		entry := domain.Entry{
			Type:                domain.EntryTransfer,
			SourceAccount:       domain.Ref(source),
			DestAccount:         domain.Ref(dest),
			Amount:              amount,
			BalanceBeforeSource: domain.Balance(sourceBefore),
			BalanceBeforeDest:   domain.Balance(destBefore),
		}

		if sourceBefore.LessThan(amount) {
			result.SourceBalance, result.DestBalance = sourceBefore, destBefore

			entry.BalanceAfterSource = domain.Balance(sourceBefore)
			entry.BalanceAfterDest = domain.Balance(destBefore)
			entry.Description = fmt.Sprintf("attempted transfer of %s from %s to %s", amount, source, dest)
			entry.Status = domain.StatusFailed
			entry.FailureReason = domain.FailureInsufficientFunds

			var err error

			result.Entry, err = uow.AppendEntry(ctx, entry)
			if err != nil {
				return err
			}

			return domain.ErrInsufficientFunds
		}

		result.SourceBalance = sourceBefore.Sub(amount)
		result.DestBalance = destBefore.Add(amount)
		if !moneypkg.FitsPrecision(result.DestBalance) {
			return domain.ErrInvalidAmount
		}

		// Writes follow the lock order too.
		for _, number := range []string{first, second} {
			balance := result.DestBalance
			if number == source {
				balance = result.SourceBalance
			}

			if err := uow.WriteBalance(ctx, number, balance); err != nil {
				return err
			}
		}

		entry.BalanceAfterSource = domain.Balance(result.SourceBalance)
		entry.BalanceAfterDest = domain.Balance(result.DestBalance)
		entry.Description = fmt.Sprintf("transfer of %s from %s to %s", amount, source, dest)
		entry.Status = domain.StatusSuccess

		var err error

		result.Entry, err = uow.AppendEntry(ctx, entry)

		return err
	})

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		l.Info().Err(err).Str("source", source).Str("dest", dest).Msg("transfer")
		return result, err
	case err != nil:
		l.Info().Err(err).Str("source", source).Str("dest", dest).Msg("transfer")
		return domain.TransferResult{}, err
	}

	return result, nil
}

// GetAccount returns the committed state of the active account.
func (s *Service) GetAccount(ctx context.Context, number string) (domain.Account, error) {
	number, err := normalizeNumber(number)
	if err != nil {
		return domain.Account{}, err
	}

	account, err := s.store.GetAccount(ctx, number)
	if err != nil {
		return domain.Account{}, storeError(err)
	}

	return account, nil
}

// GetBalance returns the committed balance of the active account.
func (s *Service) GetBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}

	return account.Balance, nil
}

// AccountExists reports whether an active account holds the number.
func (s *Service) AccountExists(ctx context.Context, number string) (bool, error) {
	number, err := normalizeNumber(number)
	if err != nil {
		return false, err
	}

	return s.registry.Exists(ctx, number)
}

// ListAccounts returns active accounts ordered by account number.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	return accounts, nil
}

// ListTransactions returns log entries newest first.
//
// A valid arg.Account keeps only entries in which the account is the source
// or the destination. A non-positive limit means the configured default.
func (s *Service) ListTransactions(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error) {
	if arg.Account.Valid {
		number, err := normalizeNumber(arg.Account.Number)
		if err != nil {
			return nil, err
		}

		arg.Account = domain.Ref(number)
	}

	switch {
	case arg.Limit <= 0:
		arg.Limit = s.config.DefaultListLimit
	case arg.Limit > s.config.MaxListLimit:
		arg.Limit = s.config.MaxListLimit
	}

	entries, err := s.store.ListEntries(ctx, arg)
	if err != nil {
		return nil, storeError(err)
	}

	return entries, nil
}
