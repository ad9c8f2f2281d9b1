// Package accountrepo manages the balance store: the accounts table.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns account RepoPGS.
//
// Pass a *sql.Tx to run the locking methods inside a unit of work.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const lookupQuery = `
SELECT active
FROM accounts
WHERE account_number = $1
FOR UPDATE
`

// Lookup locks the account row, if any, and reports whether it is active.
func (r *RepoPGS) Lookup(ctx context.Context, number string) (domain.AccountStatus, error) {
	l := zerolog.Ctx(ctx)

	var active bool

	err := r.db.QueryRowContext(ctx, lookupQuery, number).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccountAbsent, nil
		}

		l.Error().Err(err).Str("account", number).Msg("lookup account")

		return domain.AccountAbsent, errorspkg.ErrStoreUnavailable
	}

	if !active {
		return domain.AccountInactive, nil
	}

	return domain.AccountActive, nil
}

const lockBalanceQuery = `
SELECT balance
FROM accounts
WHERE account_number = $1 AND active
FOR UPDATE
`

// LockBalance locks the active account row and returns its balance.
func (r *RepoPGS) LockBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	var balance decimal.Decimal

	err := r.db.QueryRowContext(ctx, lockBalanceQuery, number).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return balance, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Str("account", number).Msg("lock balance")

		return balance, errorspkg.ErrStoreUnavailable
	}

	return balance, nil
}

const writeBalanceQuery = `
UPDATE accounts
SET balance = $1
WHERE account_number = $2 AND active
`

// WriteBalance sets the balance of the active account.
func (r *RepoPGS) WriteBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, writeBalanceQuery, balance, number)
	if err != nil {
		l.Error().Err(err).Str("account", number).Msg("write balance")
		return errorspkg.ErrStoreUnavailable
	}

	return requireOneRow(ctx, res)
}

const createQuery = `
INSERT INTO
    accounts (account_number, owner_name, balance)
VALUES
    ($1, $2, $3)
RETURNING id, account_number, owner_name, balance, created_at, active
`

// Create creates the account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, arg.AccountNumber, arg.OwnerName, arg.InitialBalance)

	a, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx context.Context, %+v)", arg)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "accounts_account_number_key":
				return domain.Account{}, domain.ErrDuplicateAccount
			case "accounts_balance_check":
				return domain.Account{}, domain.ErrInvalidAmount
			}
		}

		return domain.Account{}, errorspkg.ErrStoreUnavailable
	}

	return a, nil
}

const setActiveQuery = `
UPDATE accounts
SET active = $1
WHERE account_number = $2
`

// SetActive flips the activity flag of the account.
func (r *RepoPGS) SetActive(ctx context.Context, number string, active bool) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, setActiveQuery, active, number)
	if err != nil {
		l.Error().Err(err).Str("account", number).Msg("set active")
		return errorspkg.ErrStoreUnavailable
	}

	return requireOneRow(ctx, res)
}

const getQuery = `
SELECT
	id, account_number, owner_name, balance, created_at, active
FROM accounts
WHERE account_number = $1 AND active
`

// Get returns the active account with the given number.
func (r *RepoPGS) Get(ctx context.Context, number string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, errorspkg.ErrStoreUnavailable
	}

	return a, nil
}

const listQuery = `
SELECT
	id, account_number, owner_name, balance, created_at, active
FROM accounts
WHERE active
ORDER BY account_number
`

// List returns all active accounts ordered by account number.
func (r *RepoPGS) List(ctx context.Context) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrStoreUnavailable
		}

		items = append(items, a)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.OwnerName,
		&a.Balance,
		&a.CreatedAt,
		&a.Active,
	)

	return a, err
}

func requireOneRow(ctx context.Context, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return errorspkg.ErrStoreUnavailable
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}
